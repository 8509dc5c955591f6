package recording

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/memorylane-ai/memorylane/pkg/core"
	"github.com/memorylane-ai/memorylane/pkg/core/audio"
	"github.com/memorylane-ai/memorylane/pkg/core/memories"
)

// State is the session lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
	StateStopping  State = "stopping"
	StateFinalized State = "finalized"
	// StateFailed means persistence failed after a retry. Audio and
	// transcript stay in memory so the save can be re-attempted.
	StateFailed State = "failed"
)

// Mode distinguishes the two capture channels.
type Mode string

const (
	ModeVoiceLoop Mode = "voice-loop"
	ModeMessaging Mode = "messaging"
)

// Session is one recording. All mutation goes through its methods; the
// owning controller serializes calls per session.
type Session struct {
	ID        string
	OwnerID   string
	Mode      Mode
	StartTime time.Time

	engine      *audio.Engine
	persistence memories.Persistence
	logger      *slog.Logger

	mu          sync.Mutex
	state       State
	transcript  []TranscriptEntry
	memoryIDs   []string
	titles      []string
	metrics     audio.QualityMetrics
	micChunks   int
	agentChunks int
	result      *audio.Result
	finalErr    error

	// drained is closed once the engine's event stream has been fully
	// consumed; finalize waits on it.
	drained  chan struct{}
	stopDone chan struct{}
}

// NewSession creates an idle session over the given engine.
func NewSession(ownerID string, mode Mode, engine *audio.Engine, persistence memories.Persistence, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		ID:          uuid.Must(uuid.NewV7()).String(),
		OwnerID:     ownerID,
		Mode:        mode,
		engine:      engine,
		persistence: persistence,
		logger:      logger,
		state:       StateIdle,
	}
}

// Start acquires the audio graph and begins recording.
func (s *Session) Start(ctx context.Context, opts audio.StartOptions) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return core.NewInvalidRequestError("session already started")
	}
	s.mu.Unlock()

	if err := s.engine.Start(ctx, opts); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = StateRecording
	s.StartTime = time.Now()
	s.drained = make(chan struct{})
	s.mu.Unlock()

	go s.drainEvents()

	s.logger.Info("recording started", "session_id", s.ID, "owner_id", s.OwnerID, "mode", s.Mode)
	return nil
}

// drainEvents consumes the engine's event stream for the life of the
// session: chunk events feed the per-leg counters, quality snapshots
// fold into the rolling metrics, and the stream closing after the
// drained event releases finalize.
func (s *Session) drainEvents() {
	for ev := range s.engine.Events() {
		switch ev := ev.(type) {
		case audio.ChunkReadyEvent:
			s.mu.Lock()
			if ev.Leg == audio.LegAgent {
				s.agentChunks++
			} else {
				s.micChunks++
			}
			s.mu.Unlock()
		case audio.QualityUpdatedEvent:
			s.mu.Lock()
			s.metrics = ev.Metrics
			s.mu.Unlock()
		case audio.SessionDrainedEvent:
			if ev.Result != nil {
				s.mu.Lock()
				s.metrics = ev.Result.Metrics
				s.mu.Unlock()
			}
		}
	}
	close(s.drained)
}

// Quality returns the latest observed quality snapshot; after Stop it
// is the final snapshot that gets persisted.
func (s *Session) Quality() audio.QualityMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics
}

// ChunkCounts returns how many microphone and agent chunks the engine
// has reported for this session.
func (s *Session) ChunkCounts() (mic, agent int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.micChunks, s.agentChunks
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Engine exposes the underlying audio graph to the owning controller.
func (s *Session) Engine() *audio.Engine {
	return s.engine
}

// AppendTranscript records one transcript entry. Calls outside the
// Recording state are ignored, not errors.
func (s *Session) AppendTranscript(speaker Speaker, text string, confidence float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRecording {
		return
	}
	offset := int(time.Since(s.StartTime).Seconds())
	if offset < 0 {
		offset = 0
	}
	s.transcript = append(s.transcript, TranscriptEntry{
		OffsetSeconds: offset,
		Speaker:       speaker,
		Text:          text,
		Confidence:    confidence,
	})
}

// Transcript returns a copy of the accumulated entries.
func (s *Session) Transcript() []TranscriptEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TranscriptEntry, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// LinkMemory records a memory id and title against the session.
// Set-insert semantics: linking the same id twice is a no-op. The set
// only grows while the session is active; calls after finalization are
// ignored like late transcript appends.
func (s *Session) LinkMemory(memoryID, title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRecording && s.state != StateStopping {
		return
	}
	for _, id := range s.memoryIDs {
		if id == memoryID {
			return
		}
	}
	s.memoryIDs = append(s.memoryIDs, memoryID)
	s.titles = append(s.titles, title)
}

// LinkedMemories returns copies of the linked id and title lists.
func (s *Session) LinkedMemories() (ids, titles []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids = append(ids, s.memoryIDs...)
	titles = append(titles, s.titles...)
	return ids, titles
}

// Stop drains the audio graph and finalizes the session. Idempotent:
// once finalized, repeated calls return the same metadata. A session
// that failed to persist retries the save on the next Stop call.
func (s *Session) Stop(ctx context.Context) (*memories.RecordingMetadata, error) {
	s.mu.Lock()
	switch s.state {
	case StateIdle:
		s.mu.Unlock()
		return nil, core.NewInvalidRequestError("session not recording")
	case StateFinalized:
		meta := s.metadataLocked()
		s.mu.Unlock()
		return meta, nil
	case StateStopping:
		// Another caller is finalizing; wait for it and return its
		// outcome instead of persisting twice.
		done := s.stopDone
		s.mu.Unlock()
		<-done
		return s.Stop(ctx)
	case StateFailed:
		// Manual re-save path: audio and transcript were retained.
		s.mu.Unlock()
		return s.finalize(ctx)
	}
	s.state = StateStopping
	done := make(chan struct{})
	s.stopDone = done
	s.mu.Unlock()
	defer close(done)

	s.logger.Info("recording stopping", "session_id", s.ID)

	result, err := s.engine.Stop()
	if err != nil {
		s.mu.Lock()
		s.state = StateFailed
		s.finalErr = err
		s.mu.Unlock()
		return nil, err
	}

	// Finalize only proceeds once the graph's event stream has drained.
	<-s.drained

	s.mu.Lock()
	s.result = result
	s.metrics = result.Metrics
	s.mu.Unlock()

	return s.finalize(ctx)
}

// finalize persists the mixed audio, transcript, and metadata. The save
// is retried once; a second failure marks the session failed without
// discarding in-memory state.
func (s *Session) finalize(ctx context.Context) (*memories.RecordingMetadata, error) {
	s.mu.Lock()
	meta := s.metadataLocked()
	var blob []byte
	if s.result != nil {
		blob = s.result.Blob
	}
	s.mu.Unlock()

	err := s.persistence.SaveRecording(ctx, meta, blob)
	if err != nil {
		s.logger.Warn("recording save failed, retrying once", "session_id", s.ID, "error", err)
		err = s.persistence.SaveRecording(ctx, meta, blob)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = StateFailed
		s.finalErr = core.NewPersistenceError(err)
		s.logger.Error("recording save failed, session marked failed", "session_id", s.ID, "error", err)
		return nil, s.finalErr
	}
	s.state = StateFinalized
	s.logger.Info("recording finalized",
		"session_id", s.ID,
		"duration_s", meta.DurationSeconds,
		"memories", len(meta.MemoryIDs))
	return meta, nil
}

func (s *Session) metadataLocked() *memories.RecordingMetadata {
	var result audio.Result
	if s.result != nil {
		result = *s.result
	}
	return &memories.RecordingMetadata{
		OwnerID:         s.OwnerID,
		SessionID:       s.ID,
		DurationSeconds: result.DurationSeconds,
		ByteSize:        result.ByteSize,
		SampleRate:      result.SampleRate,
		BitRate:         result.BitRate,
		CaptureMode:     string(result.CaptureMode),
		Transcript:      FormatTranscript(s.transcript),
		Summary:         s.summaryLocked(result),
		MemoryIDs:       append([]string(nil), s.memoryIDs...),
		MemoryTitles:    append([]string(nil), s.titles...),
	}
}

// summaryLocked builds the recording summary. One linked memory uses
// its title; several use a truncated comma-joined list; none falls back
// to a generic description with duration and capture mode.
func (s *Session) summaryLocked(result audio.Result) string {
	switch n := len(s.titles); {
	case n == 1:
		return s.titles[0]
	case n > 1:
		shown := s.titles
		extra := 0
		if len(shown) > 3 {
			extra = len(shown) - 3
			shown = shown[:3]
		}
		summary := fmt.Sprintf("%d memories: %s", n, strings.Join(shown, ", "))
		if extra > 0 {
			summary += fmt.Sprintf(" +%d more", extra)
		}
		return summary
	default:
		return fmt.Sprintf("Recording (%.0fs, %s)", result.DurationSeconds, result.CaptureMode)
	}
}
