package webhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/memorylane-ai/memorylane/pkg/core"
	"github.com/memorylane-ai/memorylane/pkg/core/dialogue"
	"github.com/memorylane-ai/memorylane/pkg/core/extract"
	"github.com/memorylane-ai/memorylane/pkg/core/memories"
	"github.com/memorylane-ai/memorylane/pkg/core/speech/stt"
)

type echoCompleter struct{}

func (echoCompleter) Complete(ctx context.Context, systemPrompt string, history []extract.Message, userMessage string) (extract.Reply, error) {
	return extract.Reply{Text: "heard: " + userMessage}, nil
}

type noopTranscriber struct{}

func (noopTranscriber) Name() string { return "noop" }

func (noopTranscriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	return "voice text", nil
}

func (noopTranscriber) NewStream(ctx context.Context, opts stt.StreamOptions) (*stt.Stream, error) {
	return nil, errors.New("not supported")
}

type noopPersistence struct{ memories.Persistence }

func (noopPersistence) SaveMemory(ctx context.Context, record *memories.MemoryRecord) error {
	return nil
}

func (noopPersistence) SaveAttachment(ctx context.Context, att *memories.Attachment, data []byte) error {
	return nil
}

type captureSender struct {
	mu    sync.Mutex
	sends []string
}

func (s *captureSender) Send(ctx context.Context, ownerID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends = append(s.sends, ownerID+": "+text)
	return nil
}

func (s *captureSender) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sends...)
}

// flakySender fails a fixed number of sends with a retryable error
// before delegating to the capture sender.
type flakySender struct {
	captureSender
	failures int
}

func (s *flakySender) Send(ctx context.Context, ownerID, text string) error {
	s.mu.Lock()
	fail := s.failures > 0
	if fail {
		s.failures--
	}
	s.mu.Unlock()
	if fail {
		return core.NewAPIError("send message: status 500")
	}
	return s.captureSender.Send(ctx, ownerID, text)
}

type fakeDownloader struct {
	data []byte
	mime string
	err  error
}

func (d *fakeDownloader) Download(ctx context.Context, mediaID string) ([]byte, string, error) {
	return d.data, d.mime, d.err
}

func newTestHandler(t *testing.T, sender *captureSender, dl MediaDownloader) *Handler {
	t.Helper()
	factory := func(ownerID string) *dialogue.Dialogue {
		return dialogue.New(ownerID, echoCompleter{}, noopTranscriber{}, noopPersistence{}, nil)
	}
	hub := NewHub(context.Background(), factory, sender, slog.Default())
	t.Cleanup(hub.Close)
	return &Handler{
		VerifyToken: "secret-token",
		Hub:         hub,
		Downloader:  dl,
	}
}

func TestWebhookVerification(t *testing.T) {
	h := newTestHandler(t, &captureSender{}, nil)

	req := httptest.NewRequest("GET", "/webhook?hub.verify_token=secret-token&hub.challenge=12345", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if string(body) != "12345" {
		t.Errorf("challenge echo = %q, want %q", body, "12345")
	}
}

func TestWebhookVerificationRejectsBadToken(t *testing.T) {
	h := newTestHandler(t, &captureSender{}, nil)

	req := httptest.NewRequest("GET", "/webhook?hub.verify_token=wrong&hub.challenge=12345", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != 403 {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestWebhookInboundTextGetsReply(t *testing.T) {
	sender := &captureSender{}
	h := newTestHandler(t, sender, nil)

	req := httptest.NewRequest("POST", "/webhook",
		strings.NewReader(`{"from":"user-1","text":"I remember the lake house"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		sends := sender.all()
		if len(sends) == 1 {
			if sends[0] != "user-1: heard: I remember the lake house" {
				t.Fatalf("send = %q", sends[0])
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("no reply sent")
}

func TestWebhookInboundBadJSON(t *testing.T) {
	h := newTestHandler(t, &captureSender{}, nil)

	req := httptest.NewRequest("POST", "/webhook", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != 400 {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestReplySendRetriedWhenRetryable(t *testing.T) {
	sender := &flakySender{failures: 1}
	factory := func(ownerID string) *dialogue.Dialogue {
		return dialogue.New(ownerID, echoCompleter{}, noopTranscriber{}, noopPersistence{}, nil)
	}
	hub := NewHub(context.Background(), factory, sender, slog.Default())
	defer hub.Close()

	if !hub.Deliver("user-1", dialogue.Inbound{Text: "I remember the lake house"}) {
		t.Fatal("Deliver() = false, queue unexpectedly full")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sends := sender.all(); len(sends) == 1 {
			if !strings.HasPrefix(sends[0], "user-1: ") {
				t.Errorf("send = %q, want user-1 reply", sends[0])
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("reply not delivered after retry: %v", sender.all())
}

func TestWebhookMediaDownloadFailure(t *testing.T) {
	h := newTestHandler(t, &captureSender{}, &fakeDownloader{err: errors.New("gone")})

	req := httptest.NewRequest("POST", "/webhook",
		strings.NewReader(`{"from":"user-1","media_id":"m-1","media_kind":"image"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != 502 {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}
