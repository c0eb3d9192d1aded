package ml

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"
)

const maxResponseBytes = 1 << 20

// Transport submits an image to the classification service and returns the
// raw response body. Non-2xx replies are errors.
type Transport interface {
	Name() string
	Submit(ctx context.Context, image []byte) ([]byte, error)
}

// StatusError is returned when the service answers with a non-2xx status.
type StatusError struct {
	Transport  string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Transport, e.StatusCode)
}

// NewHTTPClient builds the client shared by the HTTP transports.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// MultipartTransport uploads the JPEG as a single multipart file field.
type MultipartTransport struct {
	URL      string
	Field    string
	FileName string
	Client   *http.Client
}

// NewMultipartTransport creates the primary upload strategy.
func NewMultipartTransport(url string, client *http.Client) *MultipartTransport {
	return &MultipartTransport{URL: url, Field: "file", FileName: "photo.jpg", Client: client}
}

func (t *MultipartTransport) Name() string { return "multipart" }

func (t *MultipartTransport) Submit(ctx context.Context, image []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, t.Field, t.FileName))
	h.Set("Content-Type", "image/jpeg")
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form part: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("failed to write image: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, &buf)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	return do(client, t.Name(), req)
}

// Base64Transport posts {"data": "<base64 jpeg>"} as JSON.
type Base64Transport struct {
	URL    string
	Client *http.Client
}

// NewBase64Transport creates the fallback strategy.
func NewBase64Transport(url string, client *http.Client) *Base64Transport {
	return &Base64Transport{URL: url, Client: client}
}

func (t *Base64Transport) Name() string { return "base64" }

func (t *Base64Transport) Submit(ctx context.Context, image []byte) ([]byte, error) {
	payload, err := json.Marshal(map[string]string{
		"data": base64.StdEncoding.EncodeToString(image),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	return do(client, t.Name(), req)
}

func do(client *http.Client, name string, req *http.Request) ([]byte, error) {
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, &StatusError{Transport: name, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: error reading response body: %w", name, err)
	}
	return body, nil
}
