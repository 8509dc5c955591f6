package voiceloop

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/memorylane-ai/memorylane/pkg/core/audio"
	"github.com/memorylane-ai/memorylane/pkg/core/extract"
	"github.com/memorylane-ai/memorylane/pkg/core/memories"
	"github.com/memorylane-ai/memorylane/pkg/core/recording"
	"github.com/memorylane-ai/memorylane/pkg/core/speech/tts"
)

type stubDevice struct{}

func (stubDevice) Start(ctx context.Context, onFrame audio.FrameFunc) error { return nil }
func (stubDevice) Stop() error                                              { return nil }

type fakeCompleter struct {
	mu      sync.Mutex
	replies []extract.Reply
	inputs  []string
}

func (c *fakeCompleter) Complete(ctx context.Context, systemPrompt string, history []extract.Message, userMessage string) (extract.Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inputs = append(c.inputs, userMessage)
	if len(c.replies) > 0 {
		reply := c.replies[0]
		c.replies = c.replies[1:]
		return reply, nil
	}
	return extract.Reply{Text: "Tell me more."}, nil
}

func (c *fakeCompleter) calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.inputs...)
}

type fakeSynth struct{}

func (fakeSynth) Name() string { return "fake" }

func (fakeSynth) Synthesize(ctx context.Context, text string, opts tts.SynthesizeOptions) ([]byte, error) {
	return []byte{0, 0}, nil
}

type fakePersistence struct {
	memories.Persistence

	mu       sync.Mutex
	Memories []*memories.MemoryRecord
	Metas    []*memories.RecordingMetadata
}

func (p *fakePersistence) SaveMemory(ctx context.Context, record *memories.MemoryRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Memories = append(p.Memories, record)
	return nil
}

func (p *fakePersistence) SaveRecording(ctx context.Context, meta *memories.RecordingMetadata, audio []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Metas = append(p.Metas, meta)
	return nil
}

func (p *fakePersistence) savedMemories() []*memories.MemoryRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*memories.MemoryRecord(nil), p.Memories...)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SilenceWindow = 10 * time.Millisecond
	cfg.Cooldown = 5 * time.Millisecond
	return cfg
}

func newTestController(t *testing.T, c extract.Completer, p *fakePersistence) (*Controller, *recording.Session) {
	t.Helper()
	engine := audio.NewEngine(audio.DefaultEngineConfig(), stubDevice{})
	session := recording.NewSession("owner-1", recording.ModeVoiceLoop, engine, p, nil)
	if err := session.Start(context.Background(), audio.StartOptions{}); err != nil {
		t.Fatalf("session Start() error = %v", err)
	}
	ctrl := NewController(testConfig(), session, c, fakeSynth{}, p, nil)
	ctrl.Start(context.Background())
	return ctrl, session
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitDone(t *testing.T, ctrl *Controller) {
	t.Helper()
	select {
	case <-ctrl.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("controller never finished")
	}
}

func transcriptContains(s *recording.Session, text string) bool {
	for _, e := range s.Transcript() {
		if strings.Contains(e.Text, text) {
			return true
		}
	}
	return false
}

func TestTurnFlow(t *testing.T) {
	c := &fakeCompleter{replies: []extract.Reply{{Text: "What grade were you in?"}}}
	p := &fakePersistence{}
	ctrl, session := newTestController(t, c, p)

	ctrl.OnTranscript("I remember my first day at school")
	waitFor(t, "turn processed", func() bool { return len(c.calls()) == 1 })

	if got := c.calls()[0]; got != "I remember my first day at school" {
		t.Errorf("completer input = %q", got)
	}
	waitFor(t, "transcript entries", func() bool {
		return transcriptContains(session, "What grade were you in?")
	})

	// The same utterance resurfacing after re-listen is not processed twice.
	time.Sleep(50 * time.Millisecond) // speech playback plus cool-down
	ctrl.OnTranscript("I remember my first day at school")
	time.Sleep(50 * time.Millisecond)
	if n := len(c.calls()); n != 1 {
		t.Errorf("completer calls = %d, want 1 (duplicate utterance reprocessed)", n)
	}

	ctrl.Terminate()
	waitFor(t, "save prompt", func() bool { return transcriptContains(session, savePrompt) })

	// Decline the save; the session still finalizes.
	time.Sleep(50 * time.Millisecond)
	ctrl.OnTranscript("no thanks")
	waitDone(t, ctrl)

	if len(p.savedMemories()) != 0 {
		t.Errorf("memories saved = %d, want 0", len(p.savedMemories()))
	}
	if session.State() != recording.StateFinalized {
		t.Errorf("session state = %v, want %v", session.State(), recording.StateFinalized)
	}
	if ctrl.Result() == nil {
		t.Error("Result() = nil after Done")
	}
}

func TestEndPhraseBypassesSilenceWindow(t *testing.T) {
	c := &fakeCompleter{}
	p := &fakePersistence{}
	cfg := testConfig()
	cfg.SilenceWindow = time.Hour // the end phrase must not depend on it

	engine := audio.NewEngine(audio.DefaultEngineConfig(), stubDevice{})
	session := recording.NewSession("owner-1", recording.ModeVoiceLoop, engine, p, nil)
	if err := session.Start(context.Background(), audio.StartOptions{}); err != nil {
		t.Fatalf("session Start() error = %v", err)
	}
	ctrl := NewController(cfg, session, c, fakeSynth{}, p, nil)
	ctrl.Start(context.Background())

	ctrl.OnTranscript("okay let's end conversation now")
	waitFor(t, "save prompt", func() bool { return transcriptContains(session, savePrompt) })

	if n := len(c.calls()); n != 0 {
		t.Errorf("completer calls = %d, want 0 for an end phrase", n)
	}
}

func TestSaveConfirmationCreatesMemory(t *testing.T) {
	c := &fakeCompleter{}
	p := &fakePersistence{}
	ctrl, session := newTestController(t, c, p)

	ctrl.OnTranscript("The summer we drove across the country in an old van")
	waitFor(t, "turn processed", func() bool { return len(c.calls()) == 1 })

	ctrl.Terminate()
	waitFor(t, "save prompt", func() bool { return transcriptContains(session, savePrompt) })

	time.Sleep(50 * time.Millisecond)
	ctrl.OnTranscript("yes please")
	waitDone(t, ctrl)

	saved := p.savedMemories()
	if len(saved) != 1 {
		t.Fatalf("memories saved = %d, want 1", len(saved))
	}
	if !strings.HasPrefix(saved[0].Title, "The summer we drove across the country") {
		t.Errorf("Title = %q, want derived from first utterance", saved[0].Title)
	}
	if saved[0].RecordingID != session.ID {
		t.Errorf("RecordingID = %q, want %q", saved[0].RecordingID, session.ID)
	}

	meta := ctrl.Result()
	if meta == nil {
		t.Fatal("Result() = nil")
	}
	if meta.Summary != saved[0].Title {
		t.Errorf("Summary = %q, want %q", meta.Summary, saved[0].Title)
	}
}

func TestSaveDirectiveLinksMemoryMidConversation(t *testing.T) {
	c := &fakeCompleter{replies: []extract.Reply{
		{Text: "What a story. Saved it for you.", SaveTitle: "Cross-country Drive"},
	}}
	p := &fakePersistence{}
	ctrl, session := newTestController(t, c, p)

	ctrl.OnTranscript("We drove across the country in 1999")
	waitFor(t, "memory saved", func() bool { return len(p.savedMemories()) == 1 })

	ids, titles := session.LinkedMemories()
	if len(ids) != 1 || titles[0] != "Cross-country Drive" {
		t.Errorf("linked = %v/%v, want one Cross-country Drive", ids, titles)
	}
	ctrl.Terminate()
}
