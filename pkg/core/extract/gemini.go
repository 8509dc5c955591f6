package extract

import (
	"context"

	"google.golang.org/genai"

	"github.com/memorylane-ai/memorylane/pkg/core"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.0-flash"

// GeminiCompleter implements Completer over the Gemini API.
type GeminiCompleter struct {
	client *genai.Client
	model  string
}

// GeminiOption configures a GeminiCompleter.
type GeminiOption func(*GeminiCompleter)

// WithModel overrides the default model.
func WithModel(model string) GeminiOption {
	return func(g *GeminiCompleter) { g.model = model }
}

// NewGeminiCompleter creates a completer backed by the Gemini API.
func NewGeminiCompleter(ctx context.Context, apiKey string, opts ...GeminiOption) (*GeminiCompleter, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, core.NewCollaboratorError(err)
	}
	g := &GeminiCompleter{client: client, model: DefaultGeminiModel}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Complete sends the history plus the new user message and parses the
// reply for a save directive.
func (g *GeminiCompleter) Complete(ctx context.Context, systemPrompt string, history []Message, userMessage string) (Reply, error) {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, m := range history {
		role := genai.Role(genai.RoleUser)
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	contents = append(contents, genai.NewContentFromText(userMessage, genai.RoleUser))

	config := &genai.GenerateContentConfig{}
	if systemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return Reply{}, core.NewCollaboratorError(err)
	}
	return ParseReply(resp.Text()), nil
}
