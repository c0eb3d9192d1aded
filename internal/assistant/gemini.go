package assistant

import (
	"context"
	"fmt"

	"cloud.google.com/go/vertexai/genai"

	"github.com/vexmx/avotex/internal/ml"
)

// Gemini is a Generator backed by a Vertex AI chat session.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGemini creates the Vertex AI client with the assistant's system
// instruction.
func NewGemini(ctx context.Context, cfg ml.GoogleConfig) (*Gemini, error) {
	client, err := ml.NewGoogleClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	model := client.GenerativeModel(cfg.Model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemInstruction)},
	}
	return &Gemini{client: client, model: model}, nil
}

// Generate replays history into a new chat session and sends text.
func (g *Gemini) Generate(ctx context.Context, history []Message, text string) (string, error) {
	cs := g.model.StartChat()
	for _, m := range history {
		cs.History = append(cs.History, &genai.Content{
			Role:  string(m.Role),
			Parts: []genai.Part{genai.Text(m.Text)},
		})
	}

	resp, err := cs.SendMessage(ctx, genai.Text(text))
	if err != nil {
		return "", fmt.Errorf("failed to call ai: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no response generated")
	}

	answer := ml.ResponseText(resp.Candidates[0].Content)
	if answer == "" {
		return "", fmt.Errorf("no content in response")
	}
	return answer, nil
}

// Close closes the underlying client.
func (g *Gemini) Close() error {
	return g.client.Close()
}
