package webhook

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/memorylane-ai/memorylane/internal/actor"
	"github.com/memorylane-ai/memorylane/pkg/core"
	"github.com/memorylane-ai/memorylane/pkg/core/dialogue"
)

// DialogueFactory builds the dialogue for a new conversation session.
type DialogueFactory func(ownerID string) *dialogue.Dialogue

// Hub routes inbound messages to per-owner conversations. Each owner
// has exactly one dialogue, and its messages are handled one at a time
// through a mailbox, so no two turns for the same owner ever interleave.
type Hub struct {
	mu            sync.Mutex
	conversations map[string]*conversation

	newDialogue DialogueFactory
	sender      Sender
	logger      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

type conversation struct {
	dialogue *dialogue.Dialogue
	mailbox  *actor.Mailbox[dialogue.Inbound]
}

// NewHub creates a conversation hub.
func NewHub(ctx context.Context, newDialogue DialogueFactory, sender Sender, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Hub{
		conversations: make(map[string]*conversation),
		newDialogue:   newDialogue,
		sender:        sender,
		logger:        logger,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Deliver hands one inbound message to the owner's conversation actor.
// It returns false if the conversation's queue is full.
func (h *Hub) Deliver(ownerID string, msg dialogue.Inbound) bool {
	h.mu.Lock()
	conv, ok := h.conversations[ownerID]
	if !ok {
		conv = &conversation{
			dialogue: h.newDialogue(ownerID),
			mailbox:  actor.New[dialogue.Inbound](32),
		}
		h.conversations[ownerID] = conv
		go conv.mailbox.Run(h.ctx, func(m dialogue.Inbound) {
			h.handleTurn(ownerID, conv, m)
		})
	}
	h.mu.Unlock()

	return conv.mailbox.Post(msg)
}

func (h *Hub) handleTurn(ownerID string, conv *conversation, msg dialogue.Inbound) {
	reply, err := conv.dialogue.HandleInbound(h.ctx, msg)
	if err != nil {
		h.logger.Warn("dialogue turn failed", "owner_id", ownerID, "error", err)
	}
	if reply == "" {
		return
	}
	if err := h.sender.Send(h.ctx, ownerID, reply); err != nil {
		var perr *core.Error
		if errors.As(err, &perr) && perr.IsRetryable() {
			h.logger.Warn("reply send failed, retrying once", "owner_id", ownerID, "error", err)
			err = h.sender.Send(h.ctx, ownerID, reply)
		}
		if err != nil {
			h.logger.Error("reply send failed", "owner_id", ownerID, "error", err)
		}
	}
}

// Close stops all conversation actors.
func (h *Hub) Close() {
	h.cancel()
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, conv := range h.conversations {
		conv.mailbox.Close()
	}
}
