package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/memorylane-ai/memorylane/pkg/core"
)

const (
	cartesiaBaseURL = "https://api.cartesia.ai"
	cartesiaVersion = "2025-04-16"
	defaultModel    = "ink-whisper"
)

// Cartesia implements Provider using Cartesia's STT API.
type Cartesia struct {
	apiKey     string
	httpClient *http.Client
}

// NewCartesia creates a Cartesia STT provider.
func NewCartesia(apiKey string) *Cartesia {
	return &Cartesia{apiKey: apiKey, httpClient: &http.Client{}}
}

// Name returns the provider identifier.
func (c *Cartesia) Name() string { return "cartesia" }

// Transcribe converts audio to text via the batch endpoint.
func (c *Cartesia) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile("file", "audio."+extensionFor(mimeType))
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := fw.Write(audio); err != nil {
		return "", fmt.Errorf("write audio data: %w", err)
	}
	if err := mw.WriteField("model", defaultModel); err != nil {
		return "", fmt.Errorf("write model field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", cartesiaBaseURL+"/stt", &buf)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Cartesia-Version", cartesiaVersion)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", core.NewTranscriptionError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", core.NewTranscriptionError(
			fmt.Errorf("cartesia error %d: %s", resp.StatusCode, string(body)))
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", core.NewTranscriptionError(fmt.Errorf("parse response: %w", err))
	}
	return out.Text, nil
}

// Stream is a live transcription session over a WebSocket.
type Stream struct {
	conn    *websocket.Conn
	deltas  chan Delta
	done    chan struct{}
	closed  atomic.Bool
	writeMu sync.Mutex
	cancel  context.CancelFunc
	ctx     context.Context
}

// NewStream opens a live transcription session.
func (c *Cartesia) NewStream(ctx context.Context, opts StreamOptions) (*Stream, error) {
	u, _ := url.Parse("wss://api.cartesia.ai/stt/websocket")

	q := u.Query()
	model := opts.Model
	if model == "" {
		model = defaultModel
	}
	q.Set("model", model)
	language := opts.Language
	if language == "" {
		language = "en"
	}
	q.Set("language", language)
	q.Set("encoding", "pcm_s16le")
	sampleRate := opts.SampleRate
	if sampleRate == 0 {
		sampleRate = 16000
	}
	q.Set("sample_rate", fmt.Sprintf("%d", sampleRate))
	// Silence handling is ours; keep interim transcripts flowing and
	// only filter obvious background noise.
	q.Set("min_volume", "0.01")
	q.Set("api_key", c.apiKey)
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("X-API-Key", c.apiKey)
	headers.Set("Cartesia-Version", cartesiaVersion)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			if len(body) > 0 {
				return nil, core.NewAPIError(fmt.Sprintf("websocket connect (status %d): %s", resp.StatusCode, string(body)))
			}
		}
		return nil, core.NewAPIError(fmt.Sprintf("websocket connect: %v", err))
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Stream{
		conn:   conn,
		deltas: make(chan Delta, 100),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
	go s.readLoop()
	return s, nil
}

func (s *Stream) readLoop() {
	defer func() {
		close(s.deltas)
		close(s.done)
	}()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg struct {
			Type    string `json:"type"`
			Text    string `json:"text"`
			IsFinal bool   `json:"is_final"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "transcript":
			select {
			case s.deltas <- Delta{Text: msg.Text, IsFinal: msg.IsFinal}:
			case <-s.ctx.Done():
				return
			}
		case "flush_done":
			continue
		case "done", "error":
			return
		}
	}
}

// SendAudio sends PCM audio to the session.
func (s *Stream) SendAudio(data []byte) error {
	if s.closed.Load() {
		return fmt.Errorf("session closed")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, data)
}

// Finalize flushes buffered audio without closing the session.
func (s *Stream) Finalize() error {
	if s.closed.Load() {
		return fmt.Errorf("session closed")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, []byte("finalize"))
}

// Deltas returns the channel of transcript updates.
func (s *Stream) Deltas() <-chan Delta {
	return s.deltas
}

// Done is closed when the session ends.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Close ends the session.
func (s *Stream) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.cancel()

	s.writeMu.Lock()
	s.conn.WriteMessage(websocket.TextMessage, []byte("done"))
	s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()

	return s.conn.Close()
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "audio/wav", "audio/x-wav":
		return "wav"
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/ogg":
		return "ogg"
	case "audio/webm":
		return "webm"
	case "audio/mp4", "audio/m4a":
		return "m4a"
	case "audio/flac":
		return "flac"
	default:
		return "wav"
	}
}
