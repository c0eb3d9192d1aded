package ml

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/option"
)

const classifyPrompt = `You are diagnosing avocado orchard photos. Look at the leaf or fruit in this image
and classify it as exactly one of: "Saludable", "Antracnosis", "Costra", "Roya".
If the image does not show an avocado leaf or fruit, use "NoAguacate".

Answer with a single JSON object and nothing else:
{"label": "string", "score": number}
where score is your confidence between 0 and 1.`

// GoogleConfig holds configuration for Vertex AI
type GoogleConfig struct {
	ProjectID       string `json:"project_id"`
	Location        string `json:"location"`
	CredentialsFile string `json:"credentials_file"`
	Model           string `json:"model"`
}

// Enabled reports whether enough is configured to create a client.
func (c GoogleConfig) Enabled() bool {
	return c.ProjectID != "" && c.Location != ""
}

// NewGoogleClient creates a Vertex AI client from the configuration.
func NewGoogleClient(ctx context.Context, cfg GoogleConfig) (*genai.Client, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("google project and location are required")
	}

	opts := []option.ClientOption{}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := genai.NewClient(ctx, cfg.ProjectID, cfg.Location, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return client, nil
}

// GoogleTransport asks a Gemini model for the diagnosis. Its reply is the
// {label, score} response shape.
type GoogleTransport struct {
	config GoogleConfig
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGoogleTransport creates a Gemini-backed strategy. Load must be called
// before Submit.
func NewGoogleTransport(config GoogleConfig) *GoogleTransport {
	return &GoogleTransport{config: config}
}

func (t *GoogleTransport) Name() string { return "google" }

// Load initializes the Vertex AI client
func (t *GoogleTransport) Load(ctx context.Context) error {
	client, err := NewGoogleClient(ctx, t.config)
	if err != nil {
		return err
	}
	t.client = client
	t.model = client.GenerativeModel(t.config.Model)
	return nil
}

// Submit sends the image with the classification prompt.
func (t *GoogleTransport) Submit(ctx context.Context, image []byte) ([]byte, error) {
	if t.model == nil {
		return nil, fmt.Errorf("google: %w", ErrModelNotLoaded)
	}

	resp, err := t.model.GenerateContent(ctx, genai.Text(classifyPrompt), genai.ImageData("jpeg", image))
	if err != nil {
		return nil, fmt.Errorf("google: failed to call ai: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("google: no response generated")
	}

	text := ResponseText(resp.Candidates[0].Content)
	if text == "" {
		return nil, fmt.Errorf("google: no content in response")
	}
	return []byte(StripFence(text)), nil
}

// Close closes the underlying client.
func (t *GoogleTransport) Close() error {
	if t.client == nil {
		return nil
	}
	return t.client.Close()
}

// ResponseText concatenates the text parts of a candidate.
func ResponseText(content *genai.Content) string {
	var b strings.Builder
	for _, part := range content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String()
}

// StripFence removes a surrounding ```json fence from a model reply.
func StripFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
