package recording

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/memorylane-ai/memorylane/pkg/core"
	"github.com/memorylane-ai/memorylane/pkg/core/audio"
	"github.com/memorylane-ai/memorylane/pkg/core/memories"
)

type stubDevice struct {
	onFrame audio.FrameFunc
}

func (d *stubDevice) Start(ctx context.Context, onFrame audio.FrameFunc) error {
	d.onFrame = onFrame
	return nil
}

func (d *stubDevice) Stop() error { return nil }

type fakePersistence struct {
	memories.Persistence

	mu         sync.Mutex
	saveErrs   []error       // popped per SaveRecording call
	saveDelay  time.Duration // simulated store latency
	recordings []*memories.RecordingMetadata
}

func (p *fakePersistence) SaveRecording(ctx context.Context, meta *memories.RecordingMetadata, audio []byte) error {
	if p.saveDelay > 0 {
		time.Sleep(p.saveDelay)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.saveErrs) > 0 {
		err := p.saveErrs[0]
		p.saveErrs = p.saveErrs[1:]
		if err != nil {
			return err
		}
	}
	p.recordings = append(p.recordings, meta)
	return nil
}

func (p *fakePersistence) saved() []*memories.RecordingMetadata {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*memories.RecordingMetadata(nil), p.recordings...)
}

func newTestSession(t *testing.T, p memories.Persistence) (*Session, *stubDevice) {
	t.Helper()
	dev := &stubDevice{}
	cfg := audio.DefaultEngineConfig()
	engine := audio.NewEngine(cfg, dev)
	s := NewSession("owner-1", ModeVoiceLoop, engine, p, nil)
	if err := s.Start(context.Background(), audio.StartOptions{}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return s, dev
}

func TestAppendTranscriptIgnoredWhenNotRecording(t *testing.T) {
	p := &fakePersistence{}
	s, _ := newTestSession(t, p)

	s.AppendTranscript(SpeakerUser, "while recording", 0)
	if _, err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	s.AppendTranscript(SpeakerUser, "after stop", 0)

	entries := s.Transcript()
	if len(entries) != 1 {
		t.Fatalf("transcript len = %d, want 1", len(entries))
	}
	if entries[0].Text != "while recording" {
		t.Errorf("entry text = %q", entries[0].Text)
	}
}

func TestLinkMemoryDeduplicates(t *testing.T) {
	p := &fakePersistence{}
	s, _ := newTestSession(t, p)

	s.LinkMemory("mem-1", "Graduation")
	s.LinkMemory("mem-1", "Graduation")
	s.LinkMemory("mem-2", "Wedding")

	ids, titles := s.LinkedMemories()
	if len(ids) != 2 {
		t.Errorf("linked ids = %v, want 2 entries", ids)
	}
	if titles[0] != "Graduation" || titles[1] != "Wedding" {
		t.Errorf("titles = %v, insertion order lost", titles)
	}
}

func TestSummarySingleMemory(t *testing.T) {
	p := &fakePersistence{}
	s, _ := newTestSession(t, p)
	s.LinkMemory("mem-1", "Graduation")

	meta, err := s.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if meta.Summary != "Graduation" {
		t.Errorf("Summary = %q, want %q", meta.Summary, "Graduation")
	}
}

func TestSummaryThreeMemories(t *testing.T) {
	p := &fakePersistence{}
	s, _ := newTestSession(t, p)
	s.LinkMemory("mem-1", "Graduation")
	s.LinkMemory("mem-2", "Wedding")
	s.LinkMemory("mem-3", "Move")

	meta, err := s.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	want := "3 memories: Graduation, Wedding, Move"
	if meta.Summary != want {
		t.Errorf("Summary = %q, want %q", meta.Summary, want)
	}
}

func TestSummaryTruncatesBeyondThree(t *testing.T) {
	p := &fakePersistence{}
	s, _ := newTestSession(t, p)
	for _, title := range []string{"A", "B", "C", "D", "E"} {
		s.LinkMemory("mem-"+title, title)
	}

	meta, err := s.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	want := "5 memories: A, B, C +2 more"
	if meta.Summary != want {
		t.Errorf("Summary = %q, want %q", meta.Summary, want)
	}
}

func TestSummaryGenericWhenNoMemories(t *testing.T) {
	p := &fakePersistence{}
	s, _ := newTestSession(t, p)

	meta, err := s.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if !strings.Contains(meta.Summary, "microphone_only") {
		t.Errorf("Summary = %q, want capture mode mentioned", meta.Summary)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	p := &fakePersistence{}
	s, _ := newTestSession(t, p)

	first, err := s.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	second, err := s.Stop(context.Background())
	if err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
	if first.SessionID != second.SessionID || first.Summary != second.Summary {
		t.Error("second Stop() returned different metadata")
	}
	if len(p.recordings) != 1 {
		t.Errorf("persisted %d times, want 1", len(p.recordings))
	}
}

func TestSessionConsumesEngineEvents(t *testing.T) {
	p := &fakePersistence{}
	dev := &stubDevice{}
	cfg := audio.DefaultEngineConfig()
	cfg.QualityIntervalMs = 5
	engine := audio.NewEngine(cfg, dev)
	s := NewSession("owner-1", ModeVoiceLoop, engine, p, nil)
	if err := s.Start(context.Background(), audio.StartOptions{}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	loud := make([]byte, 480)
	for i := 0; i+1 < len(loud); i += 2 {
		loud[i+1] = 0x40 // 16384
	}
	dev.onFrame(loud)
	engine.SubmitAgentFrame(loud, time.Now())

	time.Sleep(50 * time.Millisecond)
	if s.Quality().MicLevel <= 0 {
		t.Error("MicLevel = 0, want periodic quality snapshot folded in")
	}

	if _, err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	mic, agent := s.ChunkCounts()
	if mic != 1 || agent != 1 {
		t.Errorf("ChunkCounts() = (%d, %d), want (1, 1)", mic, agent)
	}
	// Stop returns only after the event stream has been fully drained.
	if _, ok := <-engine.Events(); ok {
		t.Error("engine events left undrained after Stop")
	}
}

func TestConcurrentStopPersistsOnce(t *testing.T) {
	p := &fakePersistence{saveDelay: 20 * time.Millisecond}
	s, _ := newTestSession(t, p)

	var wg sync.WaitGroup
	metas := make([]*memories.RecordingMetadata, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			metas[i], errs[i] = s.Stop(context.Background())
		}(i)
	}
	wg.Wait()

	for i := 0; i < 2; i++ {
		if errs[i] != nil {
			t.Fatalf("Stop() call %d error = %v", i, errs[i])
		}
		if metas[i] == nil || metas[i].SessionID != s.ID {
			t.Errorf("Stop() call %d metadata = %+v", i, metas[i])
		}
	}
	if n := len(p.saved()); n != 1 {
		t.Errorf("persisted %d times, want 1", n)
	}
}

func TestLinkMemoryIgnoredAfterFinalize(t *testing.T) {
	p := &fakePersistence{}
	s, _ := newTestSession(t, p)
	s.LinkMemory("mem-1", "Graduation")

	if _, err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	s.LinkMemory("mem-2", "Wedding")

	ids, _ := s.LinkedMemories()
	if len(ids) != 1 || ids[0] != "mem-1" {
		t.Errorf("linked ids = %v, want only mem-1", ids)
	}
}

func TestFinalizeRetriesOnce(t *testing.T) {
	p := &fakePersistence{saveErrs: []error{errors.New("transient")}}
	s, _ := newTestSession(t, p)

	if _, err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if s.State() != StateFinalized {
		t.Errorf("state = %v, want %v", s.State(), StateFinalized)
	}
	if len(p.recordings) != 1 {
		t.Errorf("persisted %d times, want 1", len(p.recordings))
	}
}

func TestFinalizeFailurePreservesSession(t *testing.T) {
	p := &fakePersistence{saveErrs: []error{errors.New("down"), errors.New("down")}}
	s, dev := newTestSession(t, p)
	dev.onFrame(make([]byte, 480))
	s.AppendTranscript(SpeakerUser, "keep me", 0)

	_, err := s.Stop(context.Background())
	if err == nil {
		t.Fatal("Stop() succeeded with persistence down")
	}
	if core.TypeOf(err) != core.ErrPersistence {
		t.Errorf("error type = %v, want %v", core.TypeOf(err), core.ErrPersistence)
	}
	if s.State() != StateFailed {
		t.Errorf("state = %v, want %v", s.State(), StateFailed)
	}
	if len(s.Transcript()) != 1 {
		t.Error("transcript discarded after failed finalize")
	}

	// A later Stop re-attempts the save.
	meta, err := s.Stop(context.Background())
	if err != nil {
		t.Fatalf("re-save Stop() error = %v", err)
	}
	if s.State() != StateFinalized {
		t.Errorf("state = %v, want %v", s.State(), StateFinalized)
	}
	if meta.Transcript != "[0s] USER: keep me" {
		t.Errorf("Transcript = %q", meta.Transcript)
	}
}

func TestManagerStopsOldSessionFirst(t *testing.T) {
	p := &fakePersistence{}
	factory := func() *audio.Engine {
		return audio.NewEngine(audio.DefaultEngineConfig(), &stubDevice{})
	}
	m := NewManager(factory, p, nil)

	first, err := m.Start(context.Background(), "owner-1", ModeVoiceLoop, audio.StartOptions{})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	second, err := m.Start(context.Background(), "owner-1", ModeVoiceLoop, audio.StartOptions{})
	if err != nil {
		t.Fatalf("second Start() error = %v", err)
	}

	if first.State() != StateFinalized {
		t.Errorf("first session state = %v, want %v", first.State(), StateFinalized)
	}
	if second.State() != StateRecording {
		t.Errorf("second session state = %v, want %v", second.State(), StateRecording)
	}
	if m.ActiveCount() != 1 {
		t.Errorf("ActiveCount() = %d, want 1", m.ActiveCount())
	}

	active, ok := m.Active("owner-1")
	if !ok || active != second {
		t.Error("Active() did not return the new session")
	}
}
