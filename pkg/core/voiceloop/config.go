package voiceloop

import "time"

// Config tunes the voice loop. The silence window and cool-down are
// configuration values, not constants; the defaults match the live
// product behavior.
type Config struct {
	// SilenceWindow is how long the transcript must stay unchanged
	// before the buffered utterance is processed. Default: 3s.
	SilenceWindow time.Duration

	// Cooldown is the pause after agent speech ends before listening
	// resumes, so the agent's own tail audio is not captured as user
	// speech. Default: 1s.
	Cooldown time.Duration

	// EndPhrases terminate the conversation on a case-insensitive
	// substring match, without waiting for the silence window.
	EndPhrases []string

	// SystemPrompt steers the completion collaborator.
	SystemPrompt string

	// Voice selects the synthesis voice.
	Voice string
}

// DefaultConfig returns the standard voice loop configuration.
func DefaultConfig() Config {
	return Config{
		SilenceWindow: 3 * time.Second,
		Cooldown:      time.Second,
		EndPhrases: []string{
			"end conversation",
			"save memory",
			"goodbye",
			"that's all for now",
			"stop recording",
		},
		SystemPrompt: defaultSystemPrompt,
	}
}

const defaultSystemPrompt = `You are a warm conversation partner helping someone record a spoken memory.
Keep replies short and spoken-friendly. Ask one question at a time.
If the story feels complete, you may include [SAVE_MEMORY: <short title>] at the end of a reply.`
