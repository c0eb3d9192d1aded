package ml

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/vexmx/avotex/internal/models"
)

var (
	// ErrNoPrediction means no transport produced a recognizable response.
	ErrNoPrediction = errors.New("no valid prediction")
	// ErrModelNotLoaded is returned by transports used before Load.
	ErrModelNotLoaded = errors.New("model not loaded")
)

// Model represents a classifier that can diagnose an image
type Model interface {
	// Load initializes the model with its configuration
	Load(ctx context.Context) error
	// ProcessImage takes an image and returns the normalized diagnosis
	ProcessImage(ctx context.Context, imageData []byte) (*models.PredictionResult, error)
}

// Recorder receives per-attempt observations. Implemented by metrics.Metrics.
type Recorder interface {
	TransportAttempt(transport, status string)
	ClassifyDuration(d time.Duration)
}

// loader is implemented by transports that need set-up before use.
type loader interface {
	Load(ctx context.Context) error
}

// Chain tries its transports in order and stops at the first response that
// normalizes to a prediction.
type Chain struct {
	transports []Transport
	recorder   Recorder
	logger     *slog.Logger
}

// NewChain creates a Chain. recorder may be nil.
func NewChain(logger *slog.Logger, recorder Recorder, transports ...Transport) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{
		transports: transports,
		recorder:   recorder,
		logger:     logger.With("component", "classifier"),
	}
}

// Transports returns the strategy names in the order they are tried.
func (c *Chain) Transports() []string {
	names := make([]string, len(c.transports))
	for i, t := range c.transports {
		names[i] = t.Name()
	}
	return names
}

// Load prepares every transport that needs it.
func (c *Chain) Load(ctx context.Context) error {
	if len(c.transports) == 0 {
		return fmt.Errorf("no transports configured")
	}
	for _, t := range c.transports {
		if l, ok := t.(loader); ok {
			if err := l.Load(ctx); err != nil {
				return fmt.Errorf("failed to load %s transport: %w", t.Name(), err)
			}
		}
	}
	return nil
}

// ProcessImage submits the image through each transport in turn.
func (c *Chain) ProcessImage(ctx context.Context, imageData []byte) (*models.PredictionResult, error) {
	start := time.Now()
	defer func() {
		if c.recorder != nil {
			c.recorder.ClassifyDuration(time.Since(start))
		}
	}()

	var errs []error
	for _, t := range c.transports {
		body, err := t.Submit(ctx, imageData)
		if err != nil {
			c.logger.Warn("transport failed", "transport", t.Name(), "error", err)
			c.record(t.Name(), "error")
			errs = append(errs, err)
			continue
		}

		pred, shape, ok := normalize(body)
		if !ok {
			c.logger.Warn("unrecognized response", "transport", t.Name(), "bytes", len(body))
			c.record(t.Name(), "invalid")
			errs = append(errs, fmt.Errorf("%s: unrecognized response shape", t.Name()))
			continue
		}

		c.record(t.Name(), "ok")
		c.logger.Debug("prediction received",
			"transport", t.Name(), "shape", shape, "label", pred.Label, "score", pred.Score)
		return &pred, nil
	}
	return nil, errors.Join(append([]error{ErrNoPrediction}, errs...)...)
}

// Close releases transports holding clients.
func (c *Chain) Close() error {
	var errs []error
	for _, t := range c.transports {
		if cl, ok := t.(io.Closer); ok {
			errs = append(errs, cl.Close())
		}
	}
	return errors.Join(errs...)
}

func (c *Chain) record(transport, status string) {
	if c.recorder != nil {
		c.recorder.TransportAttempt(transport, status)
	}
}

// NewModel creates the transport chain described by settings
func NewModel(settings Settings, logger *slog.Logger, recorder Recorder) (*Chain, error) {
	client := NewHTTPClient(settings.Timeout)

	var transports []Transport
	for _, name := range settings.Transports {
		switch name {
		case "multipart":
			transports = append(transports, NewMultipartTransport(settings.PrimaryURL, client))
		case "base64":
			transports = append(transports, NewBase64Transport(settings.FallbackURL, client))
		case "google":
			transports = append(transports, NewGoogleTransport(settings.Google))
		default:
			return nil, fmt.Errorf("unsupported transport: %s", name)
		}
	}
	if len(transports) == 0 {
		return nil, fmt.Errorf("no transports configured")
	}
	return NewChain(logger, recorder, transports...), nil
}
