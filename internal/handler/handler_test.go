package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/FooledKiwi/route-proxy/internal/routing"
	"github.com/FooledKiwi/route-proxy/internal/service"
	"github.com/gin-gonic/gin"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	// Suppress gin debug output in tests.
	gin.SetMode(gin.TestMode)
}

// ---------------------------------------------------------------------------
// Test doubles
// ---------------------------------------------------------------------------

type mockClient struct {
	doc   *routing.Document
	err   error
	calls int
	last  routing.Request
}

func (m *mockClient) Directions(_ context.Context, req routing.Request) (*routing.Document, error) {
	m.calls++
	m.last = req
	return m.doc, m.err
}

const upstreamOK = `{
   "geocoded_waypoints" : [],
   "routes" : [{
      "summary" : "国道15号",
      "legs" : [{
         "distance" : { "text" : "12.3 km", "value" : 12345 },
         "duration" : { "text" : "31分", "value" : 1830 },
         "start_address" : "日本、東京都千代田区丸の内１丁目",
         "end_address" : "日本、神奈川県横浜市西区高島２丁目"
      }]
   }],
   "status" : "OK"
}`

func okDoc() *routing.Document {
	return &routing.Document{
		Body:        []byte(upstreamOK),
		StatusCode:  http.StatusOK,
		ContentType: "application/json; charset=UTF-8",
	}
}

// newRouter builds a minimal gin engine with the handler routes registered.
func newRouter(client routing.Client, opts ...Option) *gin.Engine {
	log, _ := logtest.NewNullLogger()
	h := New(service.NewRoutingService(client), log, opts...)

	r := gin.New()
	r.GET("/health", Health)
	r.GET("/route", h.Route)
	r.GET("/route/raw", h.RouteRaw)
	r.GET("/route/summary", h.RouteSummary)
	return r
}

func get(r http.Handler, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), "body: %s", w.Body.String())
	return body
}

// ---------------------------------------------------------------------------
// Parameter handling
// ---------------------------------------------------------------------------

func TestRoute_MissingParams(t *testing.T) {
	for _, target := range []string{
		"/route",
		"/route?origin=a",
		"/route?destination=b",
		"/route?origin=%20&destination=b",
		"/route/summary?origin=a",
	} {
		client := &mockClient{doc: okDoc()}
		w := get(newRouter(client), target)

		assert.Equal(t, http.StatusBadRequest, w.Code, target)
		assert.Contains(t, decode(t, w)["error"], "required", target)
		assert.Equal(t, 0, client.calls, target)
	}
}

func TestRoute_InvalidAvoidTolls(t *testing.T) {
	client := &mockClient{doc: okDoc()}
	w := get(newRouter(client), "/route?origin=a&destination=b&avoid_tolls=maybe")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, client.calls)
}

func TestRoute_ParamsForwarded(t *testing.T) {
	client := &mockClient{doc: okDoc()}
	target := "/route?origin=%E6%9D%B1%E4%BA%AC%E9%A7%85&destination=%E6%A8%AA%E6%B5%9C%E9%A7%85" +
		"&waypoints=%E5%93%81%E5%B7%9D%E9%A7%85,%E5%B7%9D%E5%B4%8E%E9%A7%85&avoid_tolls=true"
	w := get(newRouter(client), target)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, routing.Request{
		Origin:      "東京駅",
		Destination: "横浜駅",
		Waypoints:   []string{"品川駅", "川崎駅"},
		AvoidTolls:  true,
	}, client.last)
}

func TestRoute_PlacesForwardedUntrimmed(t *testing.T) {
	client := &mockClient{doc: okDoc()}
	w := get(newRouter(client), "/route?origin=%20%E6%9D%B1%E4%BA%AC%E9%A7%85%20&destination=b%20")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, " 東京駅 ", client.last.Origin)
	assert.Equal(t, "b ", client.last.Destination)
}

func TestRoute_AvoidTollsDefaultsFalse(t *testing.T) {
	for _, target := range []string{
		"/route?origin=a&destination=b",
		"/route?origin=a&destination=b&avoid_tolls=false",
		"/route?origin=a&destination=b&avoid_tolls=0",
	} {
		client := &mockClient{doc: okDoc()}
		get(newRouter(client), target)
		assert.False(t, client.last.AvoidTolls, target)
	}
}

func TestRoute_StartEndAliases(t *testing.T) {
	client := &mockClient{doc: okDoc()}
	w := get(newRouter(client), "/route?start=a&end=b")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "a", client.last.Origin)
	assert.Equal(t, "b", client.last.Destination)
}

// ---------------------------------------------------------------------------
// Raw variant
// ---------------------------------------------------------------------------

func TestRouteRaw_BodyUnchanged(t *testing.T) {
	client := &mockClient{doc: okDoc()}
	w := get(newRouter(client), "/route/raw?origin=a&destination=b")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, upstreamOK, w.Body.String(), "upstream JSON must be relayed byte for byte")
	assert.Equal(t, "application/json; charset=UTF-8", w.Header().Get("Content-Type"))
}

func TestRouteRaw_UpstreamStatusRelayed(t *testing.T) {
	body := `{"error_message":"The provided API key is invalid.","routes":[],"status":"REQUEST_DENIED"}`
	client := &mockClient{doc: &routing.Document{Body: []byte(body), StatusCode: http.StatusForbidden}}
	w := get(newRouter(client), "/route/raw?origin=a&destination=b")

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, body, w.Body.String())
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
}

func TestRouteRaw_UpstreamUnavailable(t *testing.T) {
	client := &mockClient{err: &routing.UpstreamError{Attempts: 1, Err: errors.New("dial tcp: refused")}}
	w := get(newRouter(client), "/route/raw?origin=a&destination=b")

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "directions upstream unavailable", decode(t, w)["error"])
}

func TestRoute_RequestDeadlineIs504(t *testing.T) {
	deadlineErr := &routing.UpstreamError{Attempts: 1, Err: context.DeadlineExceeded}
	r := newRouter(&mockClient{err: deadlineErr})

	for _, target := range []string{
		"/route?origin=a&destination=b",
		"/route/raw?origin=a&destination=b",
		"/route/summary?origin=a&destination=b",
	} {
		ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
		req := httptest.NewRequest(http.MethodGet, target, nil).WithContext(ctx)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		cancel()

		assert.Equal(t, http.StatusGatewayTimeout, w.Code, target)
		assert.Equal(t, "request timed out", decode(t, w)["error"], target)
	}
}

func TestRoute_UpstreamAttemptTimeoutIs502(t *testing.T) {
	// The per-attempt timeout fired while the request itself still had time.
	deadlineErr := &routing.UpstreamError{Attempts: 1, Err: context.DeadlineExceeded}
	w := get(newRouter(&mockClient{err: deadlineErr}), "/route/raw?origin=a&destination=b")

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestRouteRaw_OversizedUpstreamIs502(t *testing.T) {
	tooLarge := &routing.UpstreamError{Attempts: 1, Err: routing.ErrResponseTooLarge}
	w := get(newRouter(&mockClient{err: tooLarge}), "/route/raw?origin=a&destination=b")

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "directions upstream unavailable", decode(t, w)["error"])
}

func TestRoute_DefaultsToRaw(t *testing.T) {
	w := get(newRouter(&mockClient{doc: okDoc()}), "/route?origin=a&destination=b")
	assert.Equal(t, upstreamOK, w.Body.String())
}

// ---------------------------------------------------------------------------
// Summary variant
// ---------------------------------------------------------------------------

func TestRouteSummary_Success(t *testing.T) {
	w := get(newRouter(&mockClient{doc: okDoc()}), "/route/summary?origin=a&destination=b")

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "国道15号", body["summary"])
	assert.Equal(t, 12.3, body["distance"])
	assert.Equal(t, float64(31), body["duration"])
	assert.Equal(t, "日本、東京都千代田区丸の内１丁目", body["start_address"])
	assert.Equal(t, "日本、神奈川県横浜市西区高島２丁目", body["end_address"])
}

func TestRouteSummary_NoRoutes(t *testing.T) {
	client := &mockClient{doc: &routing.Document{
		Body:       []byte(`{"geocoded_waypoints":[],"routes":[],"status":"ZERO_RESULTS"}`),
		StatusCode: http.StatusOK,
	}}
	w := get(newRouter(client), "/route/summary?origin=a&destination=b")

	assert.Equal(t, http.StatusOK, w.Code, "no routes is not a transport error")
	assert.Equal(t, map[string]any{"error": "経路が見つかりません"}, decode(t, w))
}

func TestRouteSummary_MalformedUpstream(t *testing.T) {
	client := &mockClient{doc: &routing.Document{Body: []byte(`<html>quota</html>`), StatusCode: http.StatusOK}}
	w := get(newRouter(client), "/route/summary?origin=a&destination=b")

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestRoute_SummaryDefault(t *testing.T) {
	r := newRouter(&mockClient{doc: okDoc()}, WithSummaryDefault(true))
	w := get(r, "/route?origin=a&destination=b")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 12.3, decode(t, w)["distance"])
}

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

func TestHealth(t *testing.T) {
	w := get(newRouter(&mockClient{}), "/health")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
}
