package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
)

// ErrNoFrame is returned by a FrameCamera before the first frame arrives.
var ErrNoFrame = errors.New("no frame available")

// StaticCamera always returns the same image.
type StaticCamera []byte

// Capture implements Camera.
func (c StaticCamera) Capture(context.Context) ([]byte, error) {
	if len(c) == 0 {
		return nil, ErrNoFrame
	}
	return c, nil
}

// FrameCamera holds the latest frame pushed by a streaming client.
type FrameCamera struct {
	mu    sync.RWMutex
	frame []byte
}

// Push replaces the current frame.
func (c *FrameCamera) Push(frame []byte) {
	c.mu.Lock()
	c.frame = frame
	c.mu.Unlock()
}

// Ready reports whether a frame has been pushed.
func (c *FrameCamera) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.frame) > 0
}

// Capture implements Camera.
func (c *FrameCamera) Capture(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.frame) == 0 {
		return nil, ErrNoFrame
	}
	return c.frame, nil
}

// FileCamera reads the image from disk on every capture.
type FileCamera struct {
	Path string
}

// Capture implements Camera.
func (c FileCamera) Capture(context.Context) ([]byte, error) {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		return nil, fmt.Errorf("error reading image: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("image %s: %w", c.Path, ErrNoFrame)
	}
	return data, nil
}
