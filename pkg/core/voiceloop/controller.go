// Package voiceloop drives the live voice conversation: turn and
// silence detection, end-of-conversation phrases, auto re-listen, and
// the save-confirmation step before the session is finalized.
package voiceloop

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/memorylane-ai/memorylane/internal/actor"
	"github.com/memorylane-ai/memorylane/pkg/core/dialogue"
	"github.com/memorylane-ai/memorylane/pkg/core/extract"
	"github.com/memorylane-ai/memorylane/pkg/core/memories"
	"github.com/memorylane-ai/memorylane/pkg/core/recording"
	"github.com/memorylane-ai/memorylane/pkg/core/speech/tts"
)

const savePrompt = "We can save this memory now. Should I save it?"

// event is the closed set of messages the controller's actor handles.
type event interface {
	eventType() string
}

type transcriptUpdated struct{ text string }
type silenceElapsed struct{}
type speechSynthesized struct{ playTime time.Duration }
type agentSpeechEnded struct{}
type cooldownElapsed struct{}
type terminateRequested struct{}

func (transcriptUpdated) eventType() string { return "transcript_updated" }

func (silenceElapsed) eventType() string { return "silence_elapsed" }

func (speechSynthesized) eventType() string { return "speech_synthesized" }

func (agentSpeechEnded) eventType() string { return "agent_speech_ended" }

func (cooldownElapsed) eventType() string { return "cooldown_elapsed" }

func (terminateRequested) eventType() string { return "terminate_requested" }

// Controller runs one voice-loop conversation over a recording session.
// All state below the mailbox is touched only by the actor goroutine.
type Controller struct {
	config  Config
	session *recording.Session

	completer   extract.Completer
	synth       tts.Provider
	persistence memories.Persistence
	logger      *slog.Logger

	mailbox *actor.Mailbox[event]
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}

	listening      bool
	agentSpeaking  bool
	processingTurn bool
	awaitingSave   bool
	terminated     bool

	buffer         string
	lastProcessed  string
	firstUtterance string
	history        []extract.Message
	result         *memories.RecordingMetadata

	silenceTimer  *time.Timer
	cooldownTimer *time.Timer
	speechTimer   *time.Timer
}

// NewController creates a controller over an already started session.
func NewController(config Config, session *recording.Session, completer extract.Completer, synth tts.Provider, persistence memories.Persistence, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		config:      config,
		session:     session,
		completer:   completer,
		synth:       synth,
		persistence: persistence,
		logger:      logger,
		mailbox:     actor.New[event](64),
		done:        make(chan struct{}),
	}
}

// Start launches the actor goroutine and begins listening.
func (c *Controller) Start(ctx context.Context) {
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.listening = true
	go c.mailbox.Run(c.ctx, c.handle)
	c.logger.Info("voice loop started", "session_id", c.session.ID)
}

// OnTranscript feeds an interim transcript update from the live
// speech-to-text stream.
func (c *Controller) OnTranscript(text string) {
	c.mailbox.Post(transcriptUpdated{text: text})
}

// Terminate requests conversation termination, as if an end phrase had
// been spoken.
func (c *Controller) Terminate() {
	c.mailbox.Post(terminateRequested{})
}

// Done is closed once the session has been finalized.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Result returns the finalized recording metadata, valid after Done.
func (c *Controller) Result() *memories.RecordingMetadata {
	return c.result
}

func (c *Controller) handle(ev event) {
	if c.terminated {
		return
	}
	switch ev := ev.(type) {
	case transcriptUpdated:
		c.onTranscript(ev.text)
	case silenceElapsed:
		c.onSilence()
	case speechSynthesized:
		c.speechTimer = time.AfterFunc(ev.playTime, func() {
			c.mailbox.Post(agentSpeechEnded{})
		})
	case agentSpeechEnded:
		c.onSpeechEnded()
	case cooldownElapsed:
		c.onCooldown()
	case terminateRequested:
		c.terminate()
	}
}

func (c *Controller) onTranscript(text string) {
	if !c.listening {
		return
	}
	c.buffer = text

	// End phrases short-circuit the silence window, except while the
	// save question is pending, where yes/no answers flow normally.
	if !c.awaitingSave && c.matchesEndPhrase(text) {
		c.logger.Info("end phrase detected", "session_id", c.session.ID)
		c.terminate()
		return
	}

	if c.silenceTimer != nil {
		c.silenceTimer.Stop()
	}
	c.silenceTimer = time.AfterFunc(c.config.SilenceWindow, func() {
		c.mailbox.Post(silenceElapsed{})
	})
}

func (c *Controller) onSilence() {
	text := strings.TrimSpace(c.buffer)
	if !c.listening || c.processingTurn || text == "" || text == c.lastProcessed {
		return
	}
	if c.awaitingSave {
		c.onSaveAnswer(text)
		return
	}
	c.processTurn(text)
}

func (c *Controller) processTurn(text string) {
	c.processingTurn = true
	c.listening = false
	c.lastProcessed = text
	if c.firstUtterance == "" {
		c.firstUtterance = text
	}

	if c.matchesEndPhrase(text) {
		c.terminate()
		return
	}

	reply, err := c.completer.Complete(c.ctx, c.config.SystemPrompt, c.history, text)
	if err != nil {
		c.logger.Warn("completion failed, using fallback reply",
			"session_id", c.session.ID, "error", err)
		reply = extract.Reply{Text: dialogue.FallbackReply}
	}

	c.history = append(c.history,
		extract.Message{Role: extract.RoleUser, Content: text},
		extract.Message{Role: extract.RoleAssistant, Content: reply.Text},
	)
	c.session.AppendTranscript(recording.SpeakerUser, text, 0)
	c.session.AppendTranscript(recording.SpeakerAgent, reply.Text, 0)

	if reply.SaveTitle != "" {
		c.saveMemoryRecord(reply.SaveTitle)
	}

	c.speak(reply.Text)
}

// speak synthesizes off the actor goroutine, submits the audio to the
// mixing graph, and schedules the speech-ended event for when playback
// should finish.
func (c *Controller) speak(text string) {
	c.agentSpeaking = true
	c.session.Engine().SetDucking(true)

	go func() {
		cfg := c.session.Engine().Config().Audio
		pcm, err := c.synth.Synthesize(c.ctx, text, tts.SynthesizeOptions{
			Voice:      c.config.Voice,
			SampleRate: cfg.SampleRate,
		})
		if err != nil {
			c.logger.Warn("synthesis failed, reply recorded as text only",
				"session_id", c.session.ID, "error", err)
			c.mailbox.Post(agentSpeechEnded{})
			return
		}
		c.session.Engine().SubmitAgentFrame(pcm, time.Now())
		c.mailbox.Post(speechSynthesized{playTime: cfg.Duration(len(pcm))})
	}()
}

func (c *Controller) onSpeechEnded() {
	c.agentSpeaking = false
	// Ducking releases together with the re-listen cool-down.
	c.session.Engine().ScheduleDuckingRelease(c.config.Cooldown)
	c.cooldownTimer = time.AfterFunc(c.config.Cooldown, func() {
		c.mailbox.Post(cooldownElapsed{})
	})
}

func (c *Controller) onCooldown() {
	c.processingTurn = false
	c.buffer = ""
	c.listening = true
}

// terminate stops normal turn handling and asks the save question. The
// session finalizes after the answer.
func (c *Controller) terminate() {
	if c.awaitingSave {
		return
	}
	c.awaitingSave = true
	c.listening = false
	c.processingTurn = false
	c.buffer = ""
	c.session.AppendTranscript(recording.SpeakerAgent, savePrompt, 0)
	c.speak(savePrompt)
}

func (c *Controller) onSaveAnswer(text string) {
	c.processingTurn = true
	c.listening = false
	c.lastProcessed = text

	switch {
	case dialogue.IsConfirmation(text):
		c.session.AppendTranscript(recording.SpeakerUser, text, 0)
		title := extract.TitleFromUtterance(c.firstUtterance)
		if title == "" {
			title = "Voice memory"
		}
		c.saveMemoryRecord(title)
		c.finalize()
	case dialogue.IsDenial(text):
		c.session.AppendTranscript(recording.SpeakerUser, text, 0)
		c.finalize()
	default:
		// Ambiguous answer: keep the question open.
		c.processingTurn = false
		c.buffer = ""
		c.listening = true
	}
}

// saveMemoryRecord persists a memory built from the conversation so far
// and links it to the recording session.
func (c *Controller) saveMemoryRecord(title string) {
	var parts []string
	for _, m := range c.history {
		if m.Role == extract.RoleUser {
			parts = append(parts, m.Content)
		}
	}
	record := &memories.MemoryRecord{
		ID:          uuid.Must(uuid.NewV7()).String(),
		OwnerID:     c.session.OwnerID,
		Title:       title,
		Narrative:   strings.Join(parts, " "),
		RecordingID: c.session.ID,
		CreatedAt:   time.Now(),
	}
	if err := c.persistence.SaveMemory(c.ctx, record); err != nil {
		c.logger.Error("memory save failed", "session_id", c.session.ID, "error", err)
		return
	}
	c.session.LinkMemory(record.ID, record.Title)
	c.logger.Info("memory saved from voice loop",
		"session_id", c.session.ID, "memory_id", record.ID, "title", record.Title)
}

func (c *Controller) finalize() {
	c.terminated = true
	c.stopTimers()
	c.session.Engine().SetDucking(false)

	meta, err := c.session.Stop(c.ctx)
	if err != nil {
		c.logger.Error("session finalize failed", "session_id", c.session.ID, "error", err)
	}
	c.result = meta

	c.mailbox.Close()
	c.cancel()
	close(c.done)
	c.logger.Info("voice loop ended", "session_id", c.session.ID)
}

func (c *Controller) stopTimers() {
	if c.silenceTimer != nil {
		c.silenceTimer.Stop()
	}
	if c.cooldownTimer != nil {
		c.cooldownTimer.Stop()
	}
	if c.speechTimer != nil {
		c.speechTimer.Stop()
	}
}

func (c *Controller) matchesEndPhrase(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range c.config.EndPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
