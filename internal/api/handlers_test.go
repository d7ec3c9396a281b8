package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relief-alert-service/internal/config"
	"relief-alert-service/internal/db"
	"relief-alert-service/internal/intake"
	"relief-alert-service/internal/logging"
	"relief-alert-service/internal/metrics"
	"relief-alert-service/internal/models"
	"relief-alert-service/internal/notification"
	"relief-alert-service/internal/ratelimit"
	"relief-alert-service/internal/risk"
	"relief-alert-service/internal/scheduler"
)

type okSender struct {
	failFor string
}

func (s okSender) Send(_ context.Context, msg models.PushMessage) (models.PushResult, error) {
	if msg.To == s.failFor {
		return models.PushResult{StatusCode: http.StatusInternalServerError, Body: "boom"}, nil
	}
	return models.PushResult{StatusCode: http.StatusOK, Body: `{"data":{"status":"ok"}}`}, nil
}

type testEnv struct {
	router *gin.Engine
	store  *db.Memory
	hub    *Hub
}

func newTestEnv(t *testing.T, limit int, sender notification.Sender) *testEnv {
	t.Helper()
	return newTestEnvWithProxies(t, limit, sender, nil)
}

func newTestEnvWithProxies(t *testing.T, limit int, sender notification.Sender, trustedProxies []string) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := logging.Discard()
	store := db.NewMemory()

	m, err := metrics.New()
	require.NoError(t, err)
	hub := NewHub(logger, 0)

	in := intake.NewService(store, ratelimit.New(limit, time.Minute), risk.NewClassifier(store, config.DefaultRiskKeywords), m, logger)
	settings := notification.NewSettings(store, sender, logger)
	dispatcher := notification.NewDispatcher(notification.NewFilter(store), sender, logger, notification.Options{}, m, hub)
	sched, err := scheduler.New(dispatcher, scheduler.Options{Interval: time.Minute, Title: "Deprem Uyarısı", Body: "Güvende misiniz?"}, logger, m)
	require.NoError(t, err)

	h := NewHandler(in, settings, sched, logger)
	router, err := NewRouter(h, hub, m.Handler(), trustedProxies, logger)
	require.NoError(t, err)
	return &testEnv{router: router, store: store, hub: hub}
}

func (e *testEnv) do(method, path string, userID string, body interface{}) *httptest.ResponseRecorder {
	return e.doWithHeaders(method, path, userID, body, nil)
}

func (e *testEnv) doWithHeaders(method, path string, userID string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(userIDHeader, userID)
	}
	req.RemoteAddr = "10.1.1.1:5555"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func helpCall(msg string) gin.H {
	return gin.H{"message": msg, "latitude": 37.0, "longitude": 35.3}
}

func TestCreateHelpCall(t *testing.T) {
	env := newTestEnv(t, 5, okSender{})

	rec := env.do(http.MethodPost, "/user/help-calls", "7", helpCall("Enkaz altındayım"))
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "success", body["status"])
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "critical", data["user_risk"])
	assert.Equal(t, "low", data["zone_risk"])
	assert.Equal(t, float64(7), data["user_id"])
}

func TestCreateHelpCallRequiresUser(t *testing.T) {
	env := newTestEnv(t, 5, okSender{})

	rec := env.do(http.MethodPost, "/user/help-calls", "", helpCall("x"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodPost, "/user/help-calls", "abc", helpCall("x"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateHelpCallValidation(t *testing.T) {
	env := newTestEnv(t, 5, okSender{})

	rec := env.do(http.MethodPost, "/user/help-calls", "1", gin.H{"message": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "error", decode(t, rec)["status"])
}

func TestCreateHelpCallRateLimited(t *testing.T) {
	env := newTestEnv(t, 5, okSender{})

	for i := 0; i < 5; i++ {
		rec := env.do(http.MethodPost, "/user/help-calls", "1", helpCall("help"))
		require.Equal(t, http.StatusCreated, rec.Code, "call %d", i+1)
	}
	rec := env.do(http.MethodPost, "/user/help-calls", "1", helpCall("help"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// other routes are not throttled
	rec = env.do(http.MethodGet, "/user/help-calls", "1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestForwardedForIgnoredWithoutTrustedProxy(t *testing.T) {
	env := newTestEnv(t, 5, okSender{})

	for i := 0; i < 5; i++ {
		rec := env.doWithHeaders(http.MethodPost, "/user/help-calls", "1", helpCall("help"),
			map[string]string{"X-Forwarded-For": "1.2.3." + strconv.Itoa(i)})
		require.Equal(t, http.StatusCreated, rec.Code, "call %d", i+1)
	}
	rec := env.doWithHeaders(http.MethodPost, "/user/help-calls", "1", helpCall("help"),
		map[string]string{"X-Forwarded-For": "1.2.3.99"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestForwardedForHonouredFromTrustedProxy(t *testing.T) {
	env := newTestEnvWithProxies(t, 1, okSender{}, []string{"10.1.1.1"})

	rec := env.doWithHeaders(http.MethodPost, "/user/help-calls", "1", helpCall("help"),
		map[string]string{"X-Forwarded-For": "203.0.113.1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = env.doWithHeaders(http.MethodPost, "/user/help-calls", "1", helpCall("help"),
		map[string]string{"X-Forwarded-For": "203.0.113.2"})
	assert.Equal(t, http.StatusCreated, rec.Code, "distinct clients behind the proxy")
	rec = env.doWithHeaders(http.MethodPost, "/user/help-calls", "1", helpCall("help"),
		map[string]string{"X-Forwarded-For": "203.0.113.1"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestNewRouterRejectsBadProxy(t *testing.T) {
	_, err := NewRouter(&Handler{}, nil, nil, []string{"not-an-ip"}, logging.Discard())
	assert.Error(t, err)
}

func TestHelpCallOwnerFlow(t *testing.T) {
	env := newTestEnv(t, 5, okSender{})

	rec := env.do(http.MethodPost, "/user/help-calls", "1", helpCall("help"))
	require.Equal(t, http.StatusCreated, rec.Code)
	id := int64(decode(t, rec)["data"].(map[string]interface{})["id"].(float64))
	path := "/user/help-calls/" + strconv.FormatInt(id, 10)

	rec = env.do(http.MethodPut, path, "2", helpCall("not mine"))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodPut, path, "1", helpCall("updated"))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodPut, path+"/status", "1", gin.H{"status": "pending"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPut, path+"/status", "1", gin.H{"status": "completed"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/user/help-calls?status=completed", "1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode(t, rec)["data"].([]interface{})
	require.Len(t, list, 1)
	assert.Equal(t, "updated", list[0].(map[string]interface{})["message"])

	rec = env.do(http.MethodGet, "/user/help-calls?status=active", "1", nil)
	assert.Empty(t, decode(t, rec)["data"])

	rec = env.do(http.MethodDelete, "/user/help-calls/abc", "1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodDelete, path, "1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(http.MethodDelete, path, "1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNotificationSettings(t *testing.T) {
	env := newTestEnv(t, 5, okSender{})

	rec := env.do(http.MethodGet, "/user/notifications", "3", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]interface{}{"general": false, "emergency": true, "silentMode": false}, decode(t, rec)["data"])

	rec = env.do(http.MethodPut, "/user/notifications", "3", gin.H{"general": true, "silentMode": true})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/user/notifications", "3", nil)
	assert.Equal(t, map[string]interface{}{"general": true, "emergency": true, "silentMode": true}, decode(t, rec)["data"])
}

func TestTokenAndSendDemo(t *testing.T) {
	env := newTestEnv(t, 5, okSender{})

	rec := env.do(http.MethodPost, "/user/send-demo", "4", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodPost, "/user/token", "4", gin.H{"expo_token": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/user/token", "4", gin.H{"expo_token": "ExponentPushToken[x]"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodPost, "/user/send-demo", "4", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode(t, rec)["response"].(map[string]interface{})
	assert.Equal(t, float64(200), resp["status_code"])
}

func TestSimulateEarthquake(t *testing.T) {
	env := newTestEnv(t, 5, okSender{failFor: "tok-3"})
	ctx := context.Background()
	for i, tok := range []string{"tok-1", "tok-2", "tok-3"} {
		require.NoError(t, env.store.UpsertToken(ctx, int64(i+1), tok))
	}
	require.NoError(t, env.store.UpsertToken(ctx, 9, "tok-silent"))
	require.NoError(t, env.store.UpsertPreference(ctx, 9, models.NotificationPreference{Emergency: true, SilentMode: true}))

	rec := env.do(http.MethodPost, "/simulate/earthquake", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "success", body["status"])
	results := body["results"].([]interface{})
	require.Len(t, results, 3)
	failed := 0
	for _, r := range results {
		if !r.(map[string]interface{})["success"].(bool) {
			failed++
		}
	}
	assert.Equal(t, 1, failed)

	rec = env.do(http.MethodGet, "/health", "", nil)
	health := decode(t, rec)
	assert.Equal(t, false, health["scheduler_running"])
	lastRun := health["last_run"].(map[string]interface{})
	assert.Equal(t, "manual", lastRun["trigger"])
	assert.Equal(t, float64(2), lastRun["succeeded"])

	rec = env.do(http.MethodGet, "/metrics", "", nil)
	assert.Contains(t, rec.Body.String(), `relief_dispatch_outcomes_total{category="emergency",result="failure"} 1`)
}

func TestWebsocketReceivesSummaries(t *testing.T) {
	env := newTestEnv(t, 5, okSender{})
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/broadcasts", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return env.hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	resp, err := http.Post(srv.URL+"/simulate/earthquake", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var summary models.BroadcastSummary
	require.NoError(t, json.Unmarshal(payload, &summary))
	assert.Equal(t, models.CategoryEmergency, summary.Category)
	assert.Equal(t, "Deprem Uyarısı", summary.Title)

	env.hub.Close()
	assert.Equal(t, 0, env.hub.Count())
}
