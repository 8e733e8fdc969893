package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"bagmachine-remote/config"
	"bagmachine-remote/internal/db"
	"bagmachine-remote/internal/device"
	"bagmachine-remote/internal/logging"
	"bagmachine-remote/internal/notify"
	"bagmachine-remote/internal/params"
	"bagmachine-remote/internal/session"
	"bagmachine-remote/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	router *gin.Engine
	device *device.MockServer
	ctrl   *session.Controller
	store  store.Store
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gormDB))
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return store.NewGormStore(gormDB)
}

func newTestEnv(t *testing.T, withStore bool, wp *webpush.Options) *testEnv {
	t.Helper()
	srv := device.NewMockServer()
	t.Cleanup(srv.Close)

	log := logging.Discard()
	var s store.Store
	opts := []session.Option{session.WithLogger(log)}
	if withStore {
		s = newTestStore(t)
		opts = append(opts, session.WithJournal(s))
	}

	client := device.New(srv.URL(), time.Second, device.WithLogger(log))
	ctrl := session.New(client, params.NewStore(), notify.New(time.Hour), opts...)
	t.Cleanup(ctrl.Close)

	cfg := config.Default().Server
	cfg.RateLimitPerSec = 1000
	cfg.RateLimitBurst = 1000
	h := NewHandler(ctrl, s, wp, log)

	return &testEnv{router: NewRouter(h, &cfg), device: srv, ctrl: ctrl, store: s}
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeSnapshot(t *testing.T, w *httptest.ResponseRecorder) session.Snapshot {
	t.Helper()
	var snap session.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	return snap
}

func TestSessionFlow(t *testing.T) {
	env := newTestEnv(t, true, nil)

	w := env.do(http.MethodGet, "/api/session", "")
	require.Equal(t, http.StatusOK, w.Code)
	snap := decodeSnapshot(t, w)
	assert.Equal(t, session.StatusUnknown, snap.Status)

	w = env.do(http.MethodPost, "/api/session/refresh", "")
	require.Equal(t, http.StatusOK, w.Code)
	snap = decodeSnapshot(t, w)
	assert.Equal(t, session.StatusStopped, snap.Status)
	assert.Equal(t, 20, snap.BagLength.Value)
	assert.Equal(t, 30, snap.Speed.Value)

	w = env.do(http.MethodPost, "/api/bag-length/adjust", `{"delta":1}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 21, decodeSnapshot(t, w).BagLength.Value)

	w = env.do(http.MethodPost, "/api/bag-length/commit", "")
	require.Equal(t, http.StatusOK, w.Code)
	snap = decodeSnapshot(t, w)
	require.NotNil(t, snap.Notification)
	assert.Equal(t, "Bag length updated: 21 cm", snap.Notification.Message)
	assert.False(t, snap.Pending[session.ActionSaveBagLength])
	assert.Equal(t, "21", env.device.LastData("/baglength"))

	w = env.do(http.MethodPost, "/api/speed/adjust", `{"delta":-100}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 20, decodeSnapshot(t, w).Speed.Value)

	w = env.do(http.MethodPost, "/api/speed/commit", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "BPM set to 20", decodeSnapshot(t, w).Notification.Message)

	w = env.do(http.MethodPost, "/api/machine/start", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, session.StatusRunning, decodeSnapshot(t, w).Status)

	env.device.SetFailures("/machinestop", 1)
	w = env.do(http.MethodPost, "/api/machine/stop", "")
	require.Equal(t, http.StatusOK, w.Code, "device failures are reported as notifications")
	snap = decodeSnapshot(t, w)
	assert.Equal(t, session.StatusRunning, snap.Status)
	assert.Equal(t, "Stop failed", snap.Notification.Message)

	w = env.do(http.MethodGet, "/api/journal?limit=10", "")
	require.Equal(t, http.StatusOK, w.Code)
	var journal struct {
		Entries []struct {
			Action  string `json:"action"`
			Outcome string `json:"outcome"`
		} `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &journal))
	require.Len(t, journal.Entries, 5)
	assert.Equal(t, "stop", journal.Entries[0].Action)
	assert.Equal(t, "rejected", journal.Entries[0].Outcome)
}

func TestAdjust_InvalidBody(t *testing.T) {
	env := newTestEnv(t, false, nil)

	w := env.do(http.MethodPost, "/api/bag-length/adjust", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"invalid request"}`, w.Body.String())

	w = env.do(http.MethodPost, "/api/speed/adjust", `{"delta":"x"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdjust_ZeroDelta(t *testing.T) {
	env := newTestEnv(t, false, nil)
	w := env.do(http.MethodPost, "/api/bag-length/adjust", `{"delta":0}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 15, decodeSnapshot(t, w).BagLength.Value)
}

func TestPendingActionConflict(t *testing.T) {
	env := newTestEnv(t, false, nil)
	env.device.SetDelay("/machinestart", 300*time.Millisecond)

	first := make(chan *httptest.ResponseRecorder, 1)
	go func() { first <- env.do(http.MethodPost, "/api/machine/start", "") }()

	require.Eventually(t, func() bool {
		return env.ctrl.Pending(session.ActionStart)
	}, time.Second, 5*time.Millisecond)

	w := env.do(http.MethodPost, "/api/machine/start", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"error":"action already in progress"}`, w.Body.String())

	w = env.do(http.MethodGet, "/api/session", "")
	assert.True(t, decodeSnapshot(t, w).Pending[session.ActionStart])

	assert.Equal(t, http.StatusOK, (<-first).Code)
	assert.Equal(t, 1, env.device.Calls("/machinestart"))
}

func TestJournal_Disabled(t *testing.T) {
	env := newTestEnv(t, false, nil)
	w := env.do(http.MethodGet, "/api/journal", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestJournal_BadLimit(t *testing.T) {
	env := newTestEnv(t, true, nil)
	w := env.do(http.MethodGet, "/api/journal?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVAPIDPublicKey(t *testing.T) {
	env := newTestEnv(t, false, nil)
	w := env.do(http.MethodGet, "/api/vapid_public_key", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	env = newTestEnv(t, false, &webpush.Options{VAPIDPublicKey: "BPub"})
	w = env.do(http.MethodGet, "/api/vapid_public_key", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"public_key":"BPub"}`, w.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, false, nil)
	env.do(http.MethodPost, "/api/session/refresh", "")

	w := env.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "bagremote_device_requests_total")
}

func TestEvents(t *testing.T) {
	env := newTestEnv(t, false, nil)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/session/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	lines := make(chan string, 64)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	nextData := func() session.Snapshot {
		for {
			select {
			case line, ok := <-lines:
				require.True(t, ok, "stream closed")
				if strings.HasPrefix(line, "data:") {
					var snap session.Snapshot
					require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &snap))
					return snap
				}
			case <-time.After(2 * time.Second):
				t.Fatal("no event received")
			}
		}
	}

	initial := nextData()
	assert.Equal(t, 15, initial.BagLength.Value)

	env.ctrl.AdjustBagLength(5)
	deadline := time.Now().Add(3 * time.Second)
	for {
		if nextData().BagLength.Value == 20 {
			break
		}
		require.True(t, time.Now().Before(deadline), "update not streamed")
	}
}

func TestRouter_OperatorControlsAreNotRateLimited(t *testing.T) {
	env := newTestEnv(t, false, nil)
	cfg := config.Default().Server
	env.router = NewRouter(NewHandler(env.ctrl, nil, nil, logging.Discard()), &cfg)

	taps := cfg.RateLimitBurst + 5
	for i := 0; i < taps; i++ {
		w := env.do(http.MethodPost, "/api/bag-length/adjust", `{"delta":1}`)
		require.Equal(t, http.StatusOK, w.Code, "tap %d", i)
	}
	for i := 0; i < taps; i++ {
		require.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/session", "").Code)
	}
	assert.Equal(t, 15+taps, decodeSnapshot(t, env.do(http.MethodGet, "/api/session", "")).BagLength.Value)

	codes := make([]int, 0, cfg.RateLimitBurst+1)
	for i := 0; i <= cfg.RateLimitBurst; i++ {
		codes = append(codes, env.do(http.MethodGet, "/api/journal", "").Code)
	}
	assert.Equal(t, http.StatusServiceUnavailable, codes[0])
	assert.Equal(t, http.StatusTooManyRequests, codes[len(codes)-1])
}
