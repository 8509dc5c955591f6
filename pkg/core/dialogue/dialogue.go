// Package dialogue implements the slot-filling capture conversation for
// the asynchronous messaging channel: explore a story, extract date and
// place, confirm the save, then collect attachments.
package dialogue

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/memorylane-ai/memorylane/pkg/core/extract"
	"github.com/memorylane-ai/memorylane/pkg/core/memories"
	"github.com/memorylane-ai/memorylane/pkg/core/speech/stt"
)

// TranscriptionPlaceholder replaces voice-note text when transcription
// fails. The turn proceeds with this literal instead of aborting.
const TranscriptionPlaceholder = "[voice message - transcription unavailable]"

// FallbackReply is used when the language-model collaborator fails.
const FallbackReply = "Sorry, I lost my train of thought. Could you say that again?"

// substantiveLen is the length above which an inbound message counts as
// substantive discussion on its own.
const substantiveLen = 15

// historyWindow bounds how many turns feed a saved narrative.
const historyWindow = 12

// State is the dialogue state.
type State string

const (
	StateIdle                 State = "idle"
	StateDiscussing           State = "discussing"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateAwaitingMedia        State = "awaiting_media"
)

// SessionContext holds the per-conversation slots. It is mutated only
// by the owning Dialogue and reset when a memory is finalized or
// abandoned.
type SessionContext struct {
	DiscussionCount          int
	HasDate                  bool
	HasPlace                 bool
	AwaitingSaveConfirmation bool
	AwaitingMediaForMemoryID string
	MediaCount               int
}

// Inbound is one normalized message from the messaging channel.
type Inbound struct {
	Text    string
	Caption string

	// Media is set when the message carries an attachment.
	Media     []byte
	MediaKind memories.MediaKind

	// VoiceNote is set when the message is a voice recording that must
	// be transcribed before text analysis.
	VoiceNote     []byte
	VoiceMimeType string
}

// Dialogue drives one conversation session.
type Dialogue struct {
	ownerID string

	completer   extract.Completer
	transcriber stt.Provider
	persistence memories.Persistence
	logger      *slog.Logger

	slots        SessionContext
	history      []extract.Message
	lastAsked    bool // previous outbound message was a question
	pendingTitle string
	date         string
	place        string

	systemPrompt string
}

// New creates a dialogue for one conversation session.
func New(ownerID string, completer extract.Completer, transcriber stt.Provider, persistence memories.Persistence, logger *slog.Logger) *Dialogue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dialogue{
		ownerID:      ownerID,
		completer:    completer,
		transcriber:  transcriber,
		persistence:  persistence,
		logger:       logger,
		systemPrompt: defaultSystemPrompt,
	}
}

const defaultSystemPrompt = `You help people capture personal memories through conversation.
Draw the story out gently. Ask about when and where it happened.
Once you know both, offer to save the memory. When the user confirms,
include [SAVE_MEMORY: <short title>] at the end of your reply.`

// Slots returns a copy of the current session slots.
func (d *Dialogue) Slots() SessionContext {
	return d.slots
}

// State derives the observable dialogue state from the slots.
func (d *Dialogue) State() State {
	switch {
	case d.slots.AwaitingMediaForMemoryID != "":
		return StateAwaitingMedia
	case d.slots.AwaitingSaveConfirmation:
		return StateAwaitingConfirmation
	case d.slots.DiscussionCount > 0:
		return StateDiscussing
	default:
		return StateIdle
	}
}

// HandleInbound processes one inbound message and returns the reply
// text to send back on the channel.
func (d *Dialogue) HandleInbound(ctx context.Context, msg Inbound) (string, error) {
	text := d.resolveText(ctx, msg)

	// Attachment collection runs before any text analysis.
	if d.slots.AwaitingMediaForMemoryID != "" {
		if len(msg.Media) > 0 {
			return d.storeMedia(ctx, msg), nil
		}
		if IsCompletion(text) {
			d.logger.Info("media collection finished",
				"owner_id", d.ownerID,
				"memory_id", d.slots.AwaitingMediaForMemoryID,
				"media_count", d.slots.MediaCount)
			d.slots = SessionContext{}
			return "Lovely. The memory is saved with everything you sent.", nil
		}
		// Plain conversation continues while the media window stays open.
	}

	if d.slots.AwaitingSaveConfirmation {
		// Denial always overrides confirmation. Ambiguous input is a
		// non-save that keeps the question open.
		switch {
		case IsDenial(text):
			d.slots.AwaitingSaveConfirmation = false
			d.pushTurn(text, "No problem, we can keep talking about it.")
			return "No problem, we can keep talking about it.", nil
		case IsConfirmation(text):
			return d.saveMemory(ctx, text)
		}
	}

	d.observeDiscussion(text)

	reply, err := d.completer.Complete(ctx, d.systemPrompt, d.history, text)
	if err != nil {
		d.logger.Warn("completion failed, using fallback reply",
			"owner_id", d.ownerID, "error", err)
		d.pushTurn(text, FallbackReply)
		return FallbackReply, nil
	}

	if reply.SaveTitle != "" {
		d.pendingTitle = reply.SaveTitle
	}
	if d.slots.HasDate && d.slots.HasPlace && OffersSave(reply.Text) {
		d.slots.AwaitingSaveConfirmation = true
	}

	d.pushTurn(text, reply.Text)
	d.lastAsked = strings.Contains(reply.Text, "?")
	return reply.Text, nil
}

// resolveText transcribes voice notes before analysis; failures degrade
// to a placeholder rather than aborting the turn.
func (d *Dialogue) resolveText(ctx context.Context, msg Inbound) string {
	if len(msg.VoiceNote) > 0 {
		transcribed, err := d.transcriber.Transcribe(ctx, msg.VoiceNote, msg.VoiceMimeType)
		if err != nil {
			d.logger.Warn("voice note transcription failed",
				"owner_id", d.ownerID, "error", err)
			return TranscriptionPlaceholder
		}
		return transcribed
	}
	if msg.Text != "" {
		return msg.Text
	}
	return msg.Caption
}

func (d *Dialogue) observeDiscussion(text string) {
	if len(text) > substantiveLen || d.lastAsked {
		d.slots.DiscussionCount++
	}
	// Slots are sticky until the memory attempt resolves.
	if !d.slots.HasDate && HasDateToken(text) {
		d.slots.HasDate = true
		d.date = DateFrom(text)
	}
	if !d.slots.HasPlace && HasPlaceToken(text) {
		d.slots.HasPlace = true
		d.place = PlaceFrom(text)
	}
}

func (d *Dialogue) saveMemory(ctx context.Context, confirmText string) (string, error) {
	title := d.pendingTitle
	narrative := d.narrative()
	if title == "" {
		title = extract.TitleFromUtterance(narrative)
	}

	record := &memories.MemoryRecord{
		ID:        uuid.Must(uuid.NewV7()).String(),
		OwnerID:   d.ownerID,
		Title:     title,
		Narrative: narrative,
		Date:      d.date,
		Place:     d.place,
		CreatedAt: time.Now(),
	}
	if err := d.persistence.SaveMemory(ctx, record); err != nil {
		d.logger.Error("memory save failed", "owner_id", d.ownerID, "error", err)
		// Confirmation stands; the user can confirm again to retry.
		return "I couldn't save that just now. Want me to try again?", err
	}

	d.logger.Info("memory saved", "owner_id", d.ownerID, "memory_id", record.ID, "title", title)

	reply := "Saved! If you have photos or recordings from that time, send them along. Say \"done\" when you're finished."
	d.pushTurn(confirmText, reply)

	// Reset the slots and open the media window for the new record.
	d.slots = SessionContext{
		AwaitingMediaForMemoryID: record.ID,
		MediaCount:               0,
	}
	d.pendingTitle = ""
	d.date = ""
	d.place = ""
	return reply, nil
}

func (d *Dialogue) storeMedia(ctx context.Context, msg Inbound) string {
	att := &memories.Attachment{
		ID:        uuid.Must(uuid.NewV7()).String(),
		MemoryID:  d.slots.AwaitingMediaForMemoryID,
		Kind:      msg.MediaKind,
		CreatedAt: time.Now(),
	}
	if err := d.persistence.SaveAttachment(ctx, att, msg.Media); err != nil {
		d.logger.Error("attachment save failed",
			"owner_id", d.ownerID, "memory_id", att.MemoryID, "error", err)
		return "I couldn't store that one. Try sending it again?"
	}
	d.slots.MediaCount++
	d.logger.Info("attachment stored",
		"owner_id", d.ownerID, "memory_id", att.MemoryID, "count", d.slots.MediaCount)
	return "Got it, added to the memory. Send more or say \"done\"."
}

// narrative joins the recent user turns into the saved story text.
func (d *Dialogue) narrative() string {
	start := 0
	if len(d.history) > historyWindow {
		start = len(d.history) - historyWindow
	}
	var parts []string
	for _, m := range d.history[start:] {
		if m.Role == extract.RoleUser {
			parts = append(parts, m.Content)
		}
	}
	return strings.Join(parts, " ")
}

func (d *Dialogue) pushTurn(userText, replyText string) {
	d.history = append(d.history,
		extract.Message{Role: extract.RoleUser, Content: userText},
		extract.Message{Role: extract.RoleAssistant, Content: replyText},
	)
}
