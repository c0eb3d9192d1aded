package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/vexmx/avotex/internal/assistant"
	"github.com/vexmx/avotex/internal/capture"
	"github.com/vexmx/avotex/internal/database"
	"github.com/vexmx/avotex/internal/models"
	"github.com/vexmx/avotex/internal/recommend"
)

// envelope is the wire format of every message in both directions.
type envelope struct {
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

type outbound struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type imagePayload struct {
	Image string `json:"image"`
}

type identifyPayload struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

type taskPayload struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

type chatPayload struct {
	Message string `json:"message"`
}

// session is one websocket client: its identity, its camera feed, its own
// capture pipeline and its chat history.
type session struct {
	id     string
	server *Server
	conn   *websocket.Conn
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex

	userMu sync.RWMutex
	user   *models.User

	frames   *capture.FrameCamera
	pipeline *capture.Pipeline
	auto     *capture.AutoCapture
	chat     *assistant.Session

	wg sync.WaitGroup
}

func (s *Server) newSession(parent context.Context, id string, conn *websocket.Conn) (*session, error) {
	ctx, cancel := context.WithCancel(parent)
	sess := &session{
		id:     id,
		server: s,
		conn:   conn,
		logger: s.logger.With("client_id", id),
		ctx:    ctx,
		cancel: cancel,
		frames: &capture.FrameCamera{},
		chat:   s.assistant.NewSession(),
	}

	pipeline, err := capture.New(capture.Options{
		Camera:     sess.frames,
		Classifier: s.classifier,
		Store:      s.db,
		Identity:   sess,
		Notifier:   sess,
		Recorder:   s.metrics,
		Logger:     sess.logger,
		OnStatus:   func(st capture.Status) { sess.send("capture_status", st) },
		OnResult:   func(out capture.Outcome) { sess.send("scan_result", out) },
	})
	if err != nil {
		cancel()
		return nil, err
	}
	sess.pipeline = pipeline
	sess.auto = capture.NewAutoCapture(pipeline, s.interval)
	// ticks before the first frame would only report capture errors
	sess.auto.Ready = sess.frames.Ready
	return sess, nil
}

// CurrentUser implements capture.Identity.
func (sess *session) CurrentUser() (models.User, bool) {
	sess.userMu.RLock()
	defer sess.userMu.RUnlock()
	if sess.user == nil {
		return models.User{}, false
	}
	return *sess.user, true
}

// Notify implements capture.Notifier.
func (sess *session) Notify(n models.Notification) {
	sess.send("notification", n)
}

// close stops the timer, disposes the pipeline and waits for handlers still
// running in the background.
func (sess *session) close() {
	sess.auto.Blur()
	sess.pipeline.Close()
	sess.cancel()
	sess.wg.Wait()
}

func (sess *session) readLoop() {
	for {
		_, message, err := sess.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				sess.logger.Warn("error reading message", "error", err)
			}
			return
		}

		var msg envelope
		if err := json.Unmarshal(message, &msg); err != nil {
			sess.logger.Debug("error parsing message", "error", err)
			sess.sendError("Invalid message format")
			continue
		}
		sess.handleMessage(msg)
	}
}

func (sess *session) handleMessage(msg envelope) {
	switch msg.Type {
	case "identify":
		sess.handleIdentify(msg.Data)
	case "scan":
		sess.handleScan(msg.Data)
	case "frame":
		sess.handleFrame(msg.Data)
	case "focus":
		sess.handleFocus()
	case "blur":
		sess.auto.Blur()
	case "get_history":
		sess.handleGetHistory()
	case "get_summary":
		sess.handleGetSummary()
	case "get_recommendations":
		sess.handleGetRecommendations()
	case "get_tasks":
		sess.handleGetTasks()
	case "add_task":
		sess.handleAddTask(msg.Data)
	case "toggle_task":
		sess.handleToggleTask(msg.Data)
	case "delete_task":
		sess.handleDeleteTask(msg.Data)
	case "chat":
		sess.handleChat(msg.Data)
	default:
		sess.sendError("Unknown message type")
	}
}

func (sess *session) handleIdentify(data json.RawMessage) {
	var p identifyPayload
	if err := json.Unmarshal(data, &p); err != nil || strings.TrimSpace(p.UserID) == "" {
		sess.sendError("Invalid identity")
		return
	}
	user := models.User{ID: strings.TrimSpace(p.UserID), Email: p.Email}

	sess.userMu.Lock()
	sess.user = &user
	sess.userMu.Unlock()
	sess.logger.Debug("client identified", "user_id", user.ID)
}

func (sess *session) handleScan(data json.RawMessage) {
	image, err := decodeImage(data)
	if err != nil {
		sess.logger.Debug("error decoding image", "error", err)
		sess.sendError("Invalid image format")
		return
	}
	sess.frames.Push(image)
	if !sess.pipeline.TriggerAsync(sess.ctx) {
		sess.sendError("Capture already in progress")
	}
}

func (sess *session) handleFrame(data json.RawMessage) {
	image, err := decodeImage(data)
	if err != nil {
		sess.sendError("Invalid image format")
		return
	}
	sess.frames.Push(image)
}

func (sess *session) handleFocus() {
	if !sess.server.autoCapture {
		sess.sendError("Auto capture is disabled")
		return
	}
	sess.auto.Focus(sess.ctx)
}

func (sess *session) handleGetHistory() {
	user, ok := sess.requireUser()
	if !ok {
		return
	}
	scans, err := sess.server.db.ListScans(sess.ctx, user.ID)
	if err != nil {
		sess.logger.Error("error retrieving history", "error", err)
		sess.sendError("Failed to retrieve history")
		return
	}
	if scans == nil {
		scans = []models.ScanRecord{}
	}
	sess.send("history", scans)
}

func (sess *session) handleGetSummary() {
	user, ok := sess.requireUser()
	if !ok {
		return
	}
	scans, err := sess.server.db.ListScans(sess.ctx, user.ID)
	if err != nil {
		sess.logger.Error("error retrieving scans", "error", err)
		sess.sendError("Failed to retrieve summary")
		return
	}
	sess.send("summary", recommend.Summarize(scans))
}

func (sess *session) handleGetRecommendations() {
	user, ok := sess.requireUser()
	if !ok {
		return
	}
	labels, err := sess.server.db.ScanLabels(sess.ctx, user.ID)
	if err != nil {
		sess.logger.Error("error retrieving scans", "error", err)
		sess.sendError("Failed to retrieve recommendations")
		return
	}
	sess.send("recommendations", recommend.Recommend(labels))
}

func (sess *session) handleGetTasks() {
	user, ok := sess.requireUser()
	if !ok {
		return
	}
	sess.sendTasks(user)
}

func (sess *session) handleAddTask(data json.RawMessage) {
	user, ok := sess.requireUser()
	if !ok {
		return
	}
	var p taskPayload
	if err := json.Unmarshal(data, &p); err != nil || strings.TrimSpace(p.Title) == "" {
		sess.sendError("Invalid task")
		return
	}
	task := &models.Task{UserID: user.ID, Title: p.Title, Detail: p.Detail}
	if err := sess.server.db.AddTask(sess.ctx, task); err != nil {
		sess.logger.Error("error adding task", "error", err)
		sess.sendError("Failed to add task")
		return
	}
	sess.sendTasks(user)
}

func (sess *session) handleToggleTask(data json.RawMessage) {
	user, ok := sess.requireUser()
	if !ok {
		return
	}
	var p taskPayload
	if err := json.Unmarshal(data, &p); err != nil || p.ID == 0 {
		sess.sendError("Invalid task id")
		return
	}
	if _, err := sess.server.db.ToggleTask(sess.ctx, user.ID, p.ID); err != nil {
		sess.taskError("error updating task", err)
		return
	}
	sess.sendTasks(user)
}

func (sess *session) handleDeleteTask(data json.RawMessage) {
	user, ok := sess.requireUser()
	if !ok {
		return
	}
	var p taskPayload
	if err := json.Unmarshal(data, &p); err != nil || p.ID == 0 {
		sess.sendError("Invalid task id")
		return
	}
	if err := sess.server.db.DeleteTask(sess.ctx, user.ID, p.ID); err != nil {
		sess.taskError("error deleting task", err)
		return
	}
	sess.sendTasks(user)
}

func (sess *session) taskError(msg string, err error) {
	if errors.Is(err, database.ErrNotFound) {
		sess.sendError("Task not found")
		return
	}
	sess.logger.Error(msg, "error", err)
	sess.sendError("Failed to update task")
}

func (sess *session) sendTasks(user models.User) {
	tasks, err := sess.server.db.ListTasks(sess.ctx, user.ID)
	if err != nil {
		sess.logger.Error("error retrieving tasks", "error", err)
		sess.sendError("Failed to retrieve tasks")
		return
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	sess.send("tasks", tasks)
}

// handleChat answers in the background so frames keep flowing while the
// model thinks.
func (sess *session) handleChat(data json.RawMessage) {
	var p chatPayload
	if err := json.Unmarshal(data, &p); err != nil || strings.TrimSpace(p.Message) == "" {
		sess.sendError("Invalid chat message")
		return
	}
	if !sess.server.assistant.Enabled() {
		sess.sendError("Assistant is not available")
		return
	}

	sess.wg.Add(1)
	go func() {
		defer sess.wg.Done()
		reply, err := sess.chat.Send(sess.ctx, p.Message)
		if err != nil {
			reply = assistant.Reply{Text: assistant.FailureReply}
		}
		sess.send("chat_reply", reply)
	}()
}

func (sess *session) requireUser() (models.User, bool) {
	user, ok := sess.CurrentUser()
	if !ok {
		sess.sendError("Not identified")
	}
	return user, ok
}

func (sess *session) send(messageType string, data any) {
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()

	if err := sess.conn.WriteJSON(outbound{Type: messageType, Data: data}); err != nil {
		sess.logger.Debug("error sending message", "type", messageType, "error", err)
	}
}

func (sess *session) sendError(message string) {
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()

	if err := sess.conn.WriteJSON(envelope{Type: "error", Message: message}); err != nil {
		sess.logger.Debug("error sending error message", "error", err)
	}
}

// decodeImage accepts plain base64 or a data URL.
func decodeImage(data json.RawMessage) ([]byte, error) {
	var p imagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	encoded := p.Image
	if i := strings.Index(encoded, ";base64,"); i >= 0 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[i+len(";base64,"):]
	}
	image, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	if len(image) == 0 {
		return nil, fmt.Errorf("empty image")
	}
	return image, nil
}
