package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vexmx/avotex/internal/assistant"
	"github.com/vexmx/avotex/internal/capture"
	"github.com/vexmx/avotex/internal/database"
	"github.com/vexmx/avotex/internal/metrics"
	"github.com/vexmx/avotex/internal/models"
	"github.com/vexmx/avotex/internal/recommend"
)

type classifierFunc func(ctx context.Context, image []byte) (*models.PredictionResult, error)

func (f classifierFunc) ProcessImage(ctx context.Context, image []byte) (*models.PredictionResult, error) {
	return f(ctx, image)
}

type echoGenerator struct{}

func (echoGenerator) Generate(_ context.Context, _ []assistant.Message, text string) (string, error) {
	return "eco: " + text, nil
}

var jpeg = base64.StdEncoding.EncodeToString([]byte("\xff\xd8\xff fake jpeg"))

type testEnv struct {
	db      *database.SQLDB
	httpSrv *httptest.Server
	metrics *metrics.Metrics
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	db, err := database.NewSQLiteDB(filepath.Join(t.TempDir(), "avotex.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)

	opts.DB = db
	opts.Metrics = m
	if opts.Classifier == nil {
		opts.Classifier = classifierFunc(func(context.Context, []byte) (*models.PredictionResult, error) {
			return &models.PredictionResult{Label: "Antracnosis", Score: 0.9}, nil
		})
	}
	httpSrv := httptest.NewServer(New(opts).Handler())
	t.Cleanup(httpSrv.Close)
	return &testEnv{db: db, httpSrv: httpSrv, metrics: m}
}

func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.httpSrv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msgType string, data any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]any{"type": msgType, "data": data}))
}

// readUntil skips messages until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var msg envelope
		require.NoError(t, conn.ReadJSON(&msg), "waiting for %s", msgType)
		if msg.Type == msgType {
			return msg
		}
	}
}

func decode[T any](t *testing.T, msg envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(msg.Data, &v))
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, Options{})

	resp, err := http.Get(env.httpSrv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))
}

func TestScanIsSavedAndFeedsRecommendations(t *testing.T) {
	env := newTestEnv(t, Options{})
	conn := env.dial(t)

	send(t, conn, "identify", map[string]string{"user_id": "grower-1", "email": "grower@example.com"})
	send(t, conn, "scan", map[string]string{"image": "data:image/jpeg;base64," + jpeg})

	note := decode[models.Notification](t, readUntil(t, conn, "notification"))
	assert.Equal(t, models.NotificationSuccess, note.Kind)

	out := decode[capture.Outcome](t, readUntil(t, conn, "scan_result"))
	assert.Equal(t, capture.StateSucceeded, out.State)
	assert.Equal(t, "Antracnosis: 90.0%", out.Display)
	assert.True(t, out.Saved)

	send(t, conn, "get_history", nil)
	history := decode[[]models.ScanRecord](t, readUntil(t, conn, "history"))
	require.Len(t, history, 1)
	assert.Equal(t, "grower-1", history[0].UserID)
	assert.Equal(t, "grower@example.com", history[0].UserEmail)

	send(t, conn, "get_summary", nil)
	summary := decode[recommend.Summary](t, readUntil(t, conn, "summary"))
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, "Antracnosis", summary.MostFrequentDisease)

	send(t, conn, "get_recommendations", nil)
	entries := decode[[]models.AdvisoryEntry](t, readUntil(t, conn, "recommendations"))
	var ids []string
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"scan-more", "tier-high", "disease-antracnosis", "tool-sanitation", "irrigation", "log-treatments"}, ids)

	resp, err := http.Get(env.httpSrv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `avotex_capture_cycles_total{outcome="succeeded"} 1`)
	assert.Contains(t, string(body), `avotex_scan_saves_total{status="success"} 1`)
}

func TestScanWithoutIdentityIsNotSaved(t *testing.T) {
	env := newTestEnv(t, Options{})
	conn := env.dial(t)

	send(t, conn, "scan", map[string]string{"image": jpeg})
	out := decode[capture.Outcome](t, readUntil(t, conn, "scan_result"))
	assert.Equal(t, capture.StateSucceeded, out.State)
	assert.False(t, out.Saved)

	send(t, conn, "get_history", nil)
	assert.Equal(t, "Not identified", readUntil(t, conn, "error").Message)
}

func TestScanFailureShowsSyntheticLabel(t *testing.T) {
	env := newTestEnv(t, Options{Classifier: classifierFunc(func(context.Context, []byte) (*models.PredictionResult, error) {
		return nil, assert.AnError
	})})
	conn := env.dial(t)

	send(t, conn, "identify", map[string]string{"user_id": "grower-1"})
	send(t, conn, "scan", map[string]string{"image": jpeg})
	out := decode[capture.Outcome](t, readUntil(t, conn, "scan_result"))
	assert.Equal(t, capture.StateFailed, out.State)
	assert.Equal(t, models.LabelInvalidResponse, out.Prediction.Label)

	scans, err := env.db.ListScans(testContext(t), "grower-1")
	require.NoError(t, err)
	assert.Empty(t, scans)
}

func TestTaskMessages(t *testing.T) {
	env := newTestEnv(t, Options{})
	conn := env.dial(t)

	send(t, conn, "identify", map[string]string{"user_id": "grower-1"})
	send(t, conn, "add_task", map[string]string{"title": "Riego", "detail": "Lote 3"})
	tasks := decode[[]models.Task](t, readUntil(t, conn, "tasks"))
	require.Len(t, tasks, 1)
	assert.Equal(t, "Riego", tasks[0].Title)
	assert.False(t, tasks[0].Completed)

	send(t, conn, "toggle_task", map[string]int64{"id": tasks[0].ID})
	tasks = decode[[]models.Task](t, readUntil(t, conn, "tasks"))
	require.Len(t, tasks, 1)
	assert.True(t, tasks[0].Completed)

	send(t, conn, "delete_task", map[string]int64{"id": tasks[0].ID})
	tasks = decode[[]models.Task](t, readUntil(t, conn, "tasks"))
	assert.Empty(t, tasks)

	send(t, conn, "toggle_task", map[string]int64{"id": 999})
	assert.Equal(t, "Task not found", readUntil(t, conn, "error").Message)

	send(t, conn, "add_task", map[string]string{"title": "  "})
	assert.Equal(t, "Invalid task", readUntil(t, conn, "error").Message)
}

func TestChat(t *testing.T) {
	env := newTestEnv(t, Options{Assistant: assistant.New(echoGenerator{}, "team@example.com", nil)})
	conn := env.dial(t)

	send(t, conn, "chat", map[string]string{"message": "hola"})
	reply := decode[assistant.Reply](t, readUntil(t, conn, "chat_reply"))
	assert.Equal(t, "eco: hola", reply.Text)
}

func TestChatDisabled(t *testing.T) {
	env := newTestEnv(t, Options{})
	conn := env.dial(t)

	send(t, conn, "chat", map[string]string{"message": "hola"})
	assert.Equal(t, "Assistant is not available", readUntil(t, conn, "error").Message)
}

func TestAutoCaptureFromFrames(t *testing.T) {
	env := newTestEnv(t, Options{AutoCapture: true, CaptureInterval: 10 * time.Millisecond})
	conn := env.dial(t)

	send(t, conn, "identify", map[string]string{"user_id": "grower-1"})
	send(t, conn, "frame", map[string]string{"image": jpeg})
	send(t, conn, "focus", nil)

	out := decode[capture.Outcome](t, readUntil(t, conn, "scan_result"))
	assert.Equal(t, capture.StateSucceeded, out.State)
	send(t, conn, "blur", nil)
}

func TestFocusBeforeFirstFrameWaits(t *testing.T) {
	env := newTestEnv(t, Options{AutoCapture: true, CaptureInterval: 10 * time.Millisecond})
	conn := env.dial(t)

	send(t, conn, "identify", map[string]string{"user_id": "grower-1"})
	send(t, conn, "focus", nil)
	time.Sleep(50 * time.Millisecond)
	send(t, conn, "frame", map[string]string{"image": jpeg})

	out := decode[capture.Outcome](t, readUntil(t, conn, "scan_result"))
	assert.Equal(t, capture.StateSucceeded, out.State)
	send(t, conn, "blur", nil)
}

func TestFocusRejectedWhenAutoCaptureDisabled(t *testing.T) {
	env := newTestEnv(t, Options{})
	conn := env.dial(t)

	send(t, conn, "focus", nil)
	assert.Equal(t, "Auto capture is disabled", readUntil(t, conn, "error").Message)
}

func TestInvalidMessages(t *testing.T) {
	env := newTestEnv(t, Options{})
	conn := env.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	assert.Equal(t, "Invalid message format", readUntil(t, conn, "error").Message)

	send(t, conn, "teleport", nil)
	assert.Equal(t, "Unknown message type", readUntil(t, conn, "error").Message)

	send(t, conn, "scan", map[string]string{"image": "%%%"})
	assert.Equal(t, "Invalid image format", readUntil(t, conn, "error").Message)

	send(t, conn, "identify", map[string]string{"email": "nobody@example.com"})
	assert.Equal(t, "Invalid identity", readUntil(t, conn, "error").Message)
}

func TestUserAPI(t *testing.T) {
	env := newTestEnv(t, Options{})
	for _, label := range []string{"Saludable", "Saludable", "Roya"} {
		require.NoError(t, env.db.SaveScan(testContext(t), &models.ScanRecord{UserID: "grower-1", Label: label, Score: 0.9}))
	}

	get := func(path string, v any) {
		t.Helper()
		resp, err := http.Get(env.httpSrv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}

	var scans []models.ScanRecord
	get("/api/users/grower-1/scans", &scans)
	assert.Len(t, scans, 3)

	var summary recommend.Summary
	get("/api/users/grower-1/summary", &summary)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, "Roya", summary.MostFrequentDisease)

	var entries []models.AdvisoryEntry
	get("/api/users/grower-1/recommendations", &entries)
	require.NotEmpty(t, entries)
	assert.Equal(t, "scan-more", entries[0].ID)

	var empty []models.ScanRecord
	get("/api/users/nobody/scans", &empty)
	assert.Empty(t, empty)

	resp, err := http.Post(env.httpSrv.URL+"/api/users/grower-1/scans", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestStaticFilesKeepMethodNotAllowed(t *testing.T) {
	static := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(static, "index.html"), []byte("<h1>avotex</h1>"), 0o600))
	env := newTestEnv(t, Options{StaticDir: static})

	resp, err := http.Get(env.httpSrv.URL + "/")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<h1>avotex</h1>", string(body))

	for _, path := range []string{"/api/users/grower-1/scans", "/api/users/grower-1/summary", "/ws"} {
		resp, err := http.Post(env.httpSrv.URL+path, "application/json", strings.NewReader("{}"))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode, path)
	}
}
