// Package webhook implements the messaging-channel webhook: GET
// provisioning verification and POST inbound message delivery.
package webhook

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/memorylane-ai/memorylane/pkg/core/dialogue"
	"github.com/memorylane-ai/memorylane/pkg/core/memories"
)

// Sender delivers outbound replies on the messaging channel.
type Sender interface {
	Send(ctx context.Context, ownerID, text string) error
}

// MediaDownloader fetches a media payload referenced by an inbound
// message. Platforms deliver media as a reference requiring a separate
// download step.
type MediaDownloader interface {
	Download(ctx context.Context, mediaID string) (data []byte, mimeType string, err error)
}

// inboundPayload is one inbound message as posted by the platform
// adapter. Exactly one message arrives per request.
type inboundPayload struct {
	From      string `json:"from"`
	Text      string `json:"text,omitempty"`
	Caption   string `json:"caption,omitempty"`
	MediaID   string `json:"media_id,omitempty"`
	MediaKind string `json:"media_kind,omitempty"`
	MimeType  string `json:"mime_type,omitempty"`
	VoiceNote bool   `json:"voice_note,omitempty"`
}

// Handler serves the webhook endpoint.
type Handler struct {
	VerifyToken  string
	Hub          *Hub
	Downloader   MediaDownloader
	MaxBodyBytes int64
	Logger       *slog.Logger
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.verify(w, r)
	case http.MethodPost:
		h.inbound(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// verify echoes the provisioning challenge when the token matches.
func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if h.VerifyToken == "" || q.Get("hub.verify_token") != h.VerifyToken {
		http.Error(w, "verification failed", http.StatusForbidden)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(q.Get("hub.challenge")))
}

func (h *Handler) inbound(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, h.maxBody())
	var payload inboundPayload
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if payload.From == "" {
		http.Error(w, "missing sender", http.StatusBadRequest)
		return
	}

	msg := dialogue.Inbound{Text: payload.Text, Caption: payload.Caption}

	if payload.MediaID != "" {
		data, mimeType, err := h.Downloader.Download(r.Context(), payload.MediaID)
		if err != nil {
			h.logger().Warn("media download failed",
				"owner_id", payload.From, "media_id", payload.MediaID, "error", err)
			http.Error(w, "media unavailable", http.StatusBadGateway)
			return
		}
		if payload.VoiceNote {
			msg.VoiceNote = data
			msg.VoiceMimeType = mimeType
		} else {
			msg.Media = data
			msg.MediaKind = memories.MediaKind(payload.MediaKind)
			if msg.MediaKind == "" {
				msg.MediaKind = memories.MediaImage
			}
		}
	}

	if !h.Hub.Deliver(payload.From, msg) {
		http.Error(w, "conversation busy", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) maxBody() int64 {
	if h.MaxBodyBytes > 0 {
		return h.MaxBodyBytes
	}
	return 10 << 20
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}
