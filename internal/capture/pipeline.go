// Package capture runs the scan cycle: grab a frame, classify it, show the
// diagnosis and store it for the signed-in grower.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vexmx/avotex/internal/models"
)

var (
	// ErrBusy is returned when a trigger arrives while a cycle is running.
	// The trigger is dropped, not queued.
	ErrBusy = errors.New("capture already in progress")
	// ErrClosed is returned by triggers after Close.
	ErrClosed = errors.New("capture pipeline closed")
)

const (
	saveFailedTitle  = "Error al Guardar"
	saveFailedDetail = "No se pudieron guardar los datos."
	savedTitle       = "Diagnóstico Guardado"
)

// Camera produces one encoded image per call.
type Camera interface {
	Capture(ctx context.Context) ([]byte, error)
}

// Classifier turns an image into a prediction. Implemented by ml.Chain.
type Classifier interface {
	ProcessImage(ctx context.Context, imageData []byte) (*models.PredictionResult, error)
}

// ScanStore persists diagnoses. Implemented by database.SQLDB.
type ScanStore interface {
	SaveScan(ctx context.Context, scan *models.ScanRecord) error
}

// Identity provides the grower a scan is attributed to.
type Identity interface {
	CurrentUser() (models.User, bool)
}

// Notifier shows transient notices to the user.
type Notifier interface {
	Notify(n models.Notification)
}

// Recorder receives cycle observations. Implemented by metrics.Metrics.
type Recorder interface {
	CaptureCycle(outcome string)
	ScanSave(status string)
}

// Options configures a Pipeline. Camera and Classifier are required.
type Options struct {
	Camera     Camera
	Classifier Classifier
	Store      ScanStore
	Identity   Identity
	Notifier   Notifier
	Recorder   Recorder
	Logger     *slog.Logger
	// OnStatus is called after every state change.
	OnStatus func(Status)
	// OnResult is called once per completed cycle, after the pipeline is
	// idle again.
	OnResult func(Outcome)
}

// Pipeline owns the capture state machine. All methods are safe for
// concurrent use.
type Pipeline struct {
	camera     Camera
	classifier Classifier
	store      ScanStore
	identity   Identity
	notifier   Notifier
	recorder   Recorder
	onStatus   func(Status)
	onResult   func(Outcome)
	logger     *slog.Logger

	mu     sync.Mutex
	status Status
	busy   bool
	closed bool
	wg     sync.WaitGroup
}

// New creates an idle Pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Camera == nil {
		return nil, fmt.Errorf("capture: camera is required")
	}
	if opts.Classifier == nil {
		return nil, fmt.Errorf("capture: classifier is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		camera:     opts.Camera,
		classifier: opts.Classifier,
		store:      opts.Store,
		identity:   opts.Identity,
		notifier:   opts.Notifier,
		recorder:   opts.Recorder,
		onStatus:   opts.OnStatus,
		onResult:   opts.OnResult,
		logger:     logger.With("component", "capture"),
		status:     Status{State: StateIdle},
	}, nil
}

// Status returns the current snapshot.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Trigger runs one cycle and returns its outcome. It returns ErrBusy without
// side effects when a cycle is already running.
func (p *Pipeline) Trigger(ctx context.Context) (Outcome, error) {
	if err := p.acquire(); err != nil {
		return Outcome{}, err
	}
	return p.run(ctx), nil
}

// TriggerAsync starts a cycle in the background. It reports false when the
// trigger was dropped because the pipeline is busy or closed.
func (p *Pipeline) TriggerAsync(ctx context.Context) bool {
	if err := p.acquire(); err != nil {
		return false
	}
	go p.run(ctx)
	return true
}

// Close stops publishing status and notifications and waits for the running
// cycle, if any. A running cycle still persists its result.
func (p *Pipeline) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
}

// acquire is the busy guard. On success the cycle owns the pipeline until
// release.
func (p *Pipeline) acquire() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if p.busy {
		p.mu.Unlock()
		p.logger.Debug("trigger dropped, capture in progress")
		p.recordCycle("skipped")
		return ErrBusy
	}
	p.wg.Add(1)
	p.busy = true
	p.status.State = StateCapturing
	p.status.Processing = true
	snapshot := p.status
	p.mu.Unlock()

	p.publish(snapshot)
	return nil
}

func (p *Pipeline) run(ctx context.Context) (out Outcome) {
	defer p.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("capture cycle panicked", "panic", r)
			out = p.fail(models.LabelCaptureError)
		}
		p.release()
		p.deliver(out)
	}()

	image, err := p.camera.Capture(ctx)
	if err != nil {
		p.logger.Warn("capture failed", "error", err)
		return p.fail(models.LabelCaptureError)
	}

	p.transition(StateSubmitting)
	pred, err := p.classifier.ProcessImage(ctx, image)
	if err != nil || pred == nil {
		p.logger.Warn("classification failed", "error", err)
		return p.fail(models.LabelInvalidResponse)
	}

	out = p.show(StateSucceeded, *pred)
	p.recordCycle("succeeded")
	out.Record, out.Saved = p.persist(ctx, *pred, out.Display)
	return out
}

// fail shows a synthetic zero-score prediction.
func (p *Pipeline) fail(label string) Outcome {
	p.recordCycle("failed")
	return p.show(StateFailed, models.PredictionResult{Label: label})
}

func (p *Pipeline) show(state State, pred models.PredictionResult) Outcome {
	out := Outcome{
		State:      state,
		Prediction: pred,
		Display:    pred.Display(),
		Healthy:    models.IsHealthy(pred.Label),
	}
	if state == StateFailed {
		// synthetic labels are shown bare
		out.Display = pred.Label
	}

	p.mu.Lock()
	p.status.State = state
	p.status.Prediction = &out.Prediction
	p.status.Display = out.Display
	p.status.Healthy = out.Healthy
	snapshot := p.status
	p.mu.Unlock()

	p.publish(snapshot)
	p.logger.Debug("diagnosis", "state", state, "display", out.Display)
	return out
}

// persist stores a storable prediction for the current user. Failures are
// reported to the user and never retried.
func (p *Pipeline) persist(ctx context.Context, pred models.PredictionResult, display string) (*models.ScanRecord, bool) {
	if !pred.Storable() || p.store == nil {
		p.recordSave("skipped")
		return nil, false
	}
	var user models.User
	ok := false
	if p.identity != nil {
		user, ok = p.identity.CurrentUser()
	}
	if !ok {
		p.logger.Debug("no signed-in user, scan not saved", "label", pred.Label)
		p.recordSave("skipped")
		return nil, false
	}

	p.setSaving(true)
	defer p.setSaving(false)

	rec := &models.ScanRecord{
		UserID:    user.ID,
		UserEmail: user.Email,
		Label:     pred.Label,
		Score:     pred.Score,
	}
	if err := p.store.SaveScan(ctx, rec); err != nil {
		p.logger.Error("failed to save scan", "user_id", user.ID, "label", pred.Label, "error", err)
		p.recordSave("error")
		p.notify(models.Notification{Kind: models.NotificationError, Title: saveFailedTitle, Detail: saveFailedDetail})
		return nil, false
	}

	p.logger.Info("scan saved", "id", rec.ID, "user_id", user.ID, "label", rec.Label)
	p.recordSave("success")
	p.notify(models.Notification{Kind: models.NotificationSuccess, Title: savedTitle, Detail: display})
	return rec, true
}

func (p *Pipeline) transition(state State) {
	p.mu.Lock()
	p.status.State = state
	snapshot := p.status
	p.mu.Unlock()
	p.publish(snapshot)
}

func (p *Pipeline) setSaving(saving bool) {
	p.mu.Lock()
	p.status.Saving = saving
	snapshot := p.status
	p.mu.Unlock()
	p.publish(snapshot)
}

// release returns the pipeline to idle. The last diagnosis stays displayed.
func (p *Pipeline) release() {
	p.mu.Lock()
	p.busy = false
	p.status.State = StateIdle
	p.status.Processing = false
	p.status.Saving = false
	snapshot := p.status
	p.mu.Unlock()
	p.publish(snapshot)
}

func (p *Pipeline) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Pipeline) publish(s Status) {
	if p.onStatus == nil || p.isClosed() {
		return
	}
	p.onStatus(s)
}

func (p *Pipeline) deliver(out Outcome) {
	if p.onResult == nil || p.isClosed() {
		return
	}
	p.onResult(out)
}

func (p *Pipeline) notify(n models.Notification) {
	if p.notifier == nil || p.isClosed() {
		return
	}
	p.notifier.Notify(n)
}

func (p *Pipeline) recordCycle(outcome string) {
	if p.recorder != nil {
		p.recorder.CaptureCycle(outcome)
	}
}

func (p *Pipeline) recordSave(status string) {
	if p.recorder != nil {
		p.recorder.ScanSave(status)
	}
}
