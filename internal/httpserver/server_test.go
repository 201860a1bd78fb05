package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/Createyouracccount/last-mike/internal/agent"
	"github.com/Createyouracccount/last-mike/internal/config"
	"github.com/Createyouracccount/last-mike/internal/metrics"
	twiliosig "github.com/Createyouracccount/last-mike/internal/middleware"
	"github.com/Createyouracccount/last-mike/internal/store"
)

func newTestServer(cfg config.Config) (*Server, *agent.Service) {
	svc := agent.NewService(agent.NewCounselor(agent.DefaultPolicy()), store.NewMemory(0))
	return New(cfg, svc), svc
}

func do(srv *Server, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		r.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		r.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, r)
	return w
}

const twilioToken = "tok"

// postForm sends a Twilio webhook signed with twilioToken.
func postForm(srv *Server, target string, form url.Values) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	params := make(map[string]string)
	for k, v := range form {
		params[k] = v[0]
	}
	r.Header.Set("X-Twilio-Signature", twiliosig.TwilioSignature(twilioToken, "https://"+r.Host+target, params))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, r)
	return w
}

func decodeResult(t *testing.T, w *httptest.ResponseRecorder) agent.Result {
	t.Helper()
	var res agent.Result
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return res
}

func TestServer_Healthz(t *testing.T) {
	srv, _ := newTestServer(config.Config{})
	w := do(srv, http.MethodGet, "/healthz", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestAuthOK(t *testing.T) {
	// Missing expected -> accept
	if !authOK(nil, "") {
		t.Fatalf("expected true when expected empty")
	}
	r := httptest.NewRequest(http.MethodGet, "/?password=secret", nil)
	if !authOK(r, "secret") {
		t.Fatalf("expected true with query password")
	}
	r2 := httptest.NewRequest(http.MethodGet, "/", nil)
	r2.Header.Set("X-Auth-Token", "tok")
	if !authOK(r2, "tok") {
		t.Fatalf("expected true with X-Auth-Token")
	}
	r3 := httptest.NewRequest(http.MethodGet, "/", nil)
	r3.Header.Set("Authorization", "bearer abc")
	if !authOK(r3, "abc") {
		t.Fatalf("expected true with lowercase bearer prefix")
	}
}

func TestAuthOK_NegativeCases(t *testing.T) {
	r1 := httptest.NewRequest(http.MethodGet, "/?password=wrong", nil)
	if authOK(r1, "secret") {
		t.Fatalf("expected false with wrong query token")
	}
	r2 := httptest.NewRequest(http.MethodGet, "/", nil)
	r2.Header.Set("X-Auth-Token", "nope")
	if authOK(r2, "secret") {
		t.Fatalf("expected false with wrong X-Auth-Token")
	}
	r3 := httptest.NewRequest(http.MethodGet, "/", nil)
	r3.Header.Set("Authorization", "Bearer nope")
	if authOK(r3, "secret") {
		t.Fatalf("expected false with wrong bearer token")
	}
}

func TestSessions_Unauthorized(t *testing.T) {
	srv, _ := newTestServer(config.Config{AuthPassword: "secret"})
	if w := do(srv, http.MethodPost, "/v1/sessions", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if w := do(srv, http.MethodPost, "/v1/sessions?password=wrong", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	w := do(srv, http.MethodPost, "/v1/sessions", "", map[string]string{"Authorization": "Bearer secret"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
}

func TestSessions_Lifecycle(t *testing.T) {
	srv, _ := newTestServer(config.Config{})

	w := do(srv, http.MethodPost, "/v1/sessions", `{"id":"web-1"}`, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	res := decodeResult(t, w)
	if res.SessionID != "web-1" || res.State != agent.StateGreeting || res.Message != agent.MsgGreeting {
		t.Fatalf("unexpected create result %+v", res)
	}

	w = do(srv, http.MethodPost, "/v1/sessions/web-1/turns", `{"text":"2번"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("turn: %d %s", w.Code, w.Body.String())
	}
	if res = decodeResult(t, w); res.State != agent.StateConsultation {
		t.Fatalf("unexpected turn result %+v", res)
	}

	w = do(srv, http.MethodGet, "/v1/sessions/web-1", "", nil)
	var sess agent.Session
	if err := json.Unmarshal(w.Body.Bytes(), &sess); err != nil || sess.TurnCount != 1 {
		t.Fatalf("get: %d %s", w.Code, w.Body.String())
	}

	if w = do(srv, http.MethodDelete, "/v1/sessions/web-1", "", nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", w.Code)
	}
	if w = do(srv, http.MethodDelete, "/v1/sessions/web-1", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("second delete: %d", w.Code)
	}
}

func TestSessions_GeneratedID(t *testing.T) {
	srv, _ := newTestServer(config.Config{})
	w := do(srv, http.MethodPost, "/v1/sessions", "", nil)
	if res := decodeResult(t, w); res.SessionID == "" {
		t.Fatalf("expected generated id")
	}
}

func TestTurn_UnknownSessionAndBadJSON(t *testing.T) {
	srv, _ := newTestServer(config.Config{})
	if w := do(srv, http.MethodPost, "/v1/sessions/nope/turns", `{"text":"네"}`, nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	do(srv, http.MethodPost, "/v1/sessions", `{"id":"s"}`, nil)
	if w := do(srv, http.MethodPost, "/v1/sessions/s/turns", "not-json", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) (*agent.Session, error) {
	return nil, errors.New("redis: connection refused")
}

func (brokenStore) Save(context.Context, *agent.Session) error { return errors.New("down") }
func (brokenStore) Delete(context.Context, string) error       { return errors.New("down") }

func TestTurn_StoreFailureHidesError(t *testing.T) {
	svc := agent.NewService(agent.NewCounselor(agent.DefaultPolicy()), brokenStore{})
	srv := New(config.Config{}, svc)
	w := do(srv, http.MethodPost, "/v1/sessions/x/turns", `{"text":"네"}`, nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "redis") || !strings.Contains(w.Body.String(), "132") {
		t.Fatalf("raw error leaked or fallback missing: %s", w.Body.String())
	}
}

func TestTwilio_CallFlow(t *testing.T) {
	srv, svc := newTestServer(config.Config{TwilioAuthToken: twilioToken, TwilioLanguage: "ko-KR"})

	w := postForm(srv, "/twilio/voice", url.Values{"CallSid": {"CA1"}, "From": {"+821000000000"}})
	body := w.Body.String()
	if w.Code != http.StatusOK || !strings.Contains(body, "<Gather") || !strings.Contains(body, "보이스피싱 상담센터입니다.") {
		t.Fatalf("voice: %d %s", w.Code, body)
	}
	if !strings.Contains(body, `language="ko-KR"`) {
		t.Fatalf("voice: expected language attribute: %s", body)
	}

	w = postForm(srv, "/twilio/gather", url.Values{"CallSid": {"CA1"}})
	if body = w.Body.String(); !strings.Contains(body, agent.MsgRepeat) || !strings.Contains(body, "<Gather") {
		t.Fatalf("empty speech should re-prompt: %s", body)
	}

	w = postForm(srv, "/twilio/gather", url.Values{"CallSid": {"CA1"}, "SpeechResult": {"2번"}})
	if body = w.Body.String(); !strings.Contains(body, "맞춤형 상담을 시작하겠습니다.") || strings.Contains(body, "<Hangup") {
		t.Fatalf("mode selection: %s", body)
	}

	w = postForm(srv, "/twilio/gather", url.Values{"CallSid": {"CA1"}, "SpeechResult": {"지금 바로 돈 보냈어요"}})
	if body = w.Body.String(); !strings.Contains(body, "<Hangup") || !strings.Contains(body, "112") {
		t.Fatalf("emergency should hang up after advice: %s", body)
	}

	if w = postForm(srv, "/twilio/status", url.Values{"CallSid": {"CA1"}, "CallStatus": {"completed"}}); w.Code != http.StatusNoContent {
		t.Fatalf("status: %d", w.Code)
	}
	if _, err := svc.Get(context.Background(), "CA1"); !errors.Is(err, agent.ErrSessionNotFound) {
		t.Fatalf("session should be ended, got %v", err)
	}
}

func TestTwilio_GatherAfterSessionGone(t *testing.T) {
	srv, _ := newTestServer(config.Config{TwilioAuthToken: twilioToken})
	w := postForm(srv, "/twilio/gather", url.Values{"CallSid": {"CA404"}, "SpeechResult": {"네"}})
	if body := w.Body.String(); !strings.Contains(body, "<Hangup") || !strings.Contains(body, "132") {
		t.Fatalf("expected closing hangup: %s", body)
	}
}

func TestTwilio_NonTerminalStatusKeepsSession(t *testing.T) {
	srv, svc := newTestServer(config.Config{TwilioAuthToken: twilioToken})
	postForm(srv, "/twilio/voice", url.Values{"CallSid": {"CA2"}})
	postForm(srv, "/twilio/status", url.Values{"CallSid": {"CA2"}, "CallStatus": {"in-progress"}})
	if _, err := svc.Get(context.Background(), "CA2"); err != nil {
		t.Fatalf("session should survive: %v", err)
	}
}

func TestTwilio_SignatureRequired(t *testing.T) {
	srv, _ := newTestServer(config.Config{TwilioAuthToken: "other"})
	if w := postForm(srv, "/twilio/voice", url.Values{"CallSid": {"CA1"}}); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestTwilio_RejectedWithoutToken(t *testing.T) {
	srv, svc := newTestServer(config.Config{})
	if w := postForm(srv, "/twilio/voice", url.Values{"CallSid": {"CA9"}}); w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if _, err := svc.Get(context.Background(), "CA9"); !errors.Is(err, agent.ErrSessionNotFound) {
		t.Fatalf("no session should start, got %v", err)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(config.Config{})
	srv.WithMetrics(metrics.New())
	do(srv, http.MethodGet, "/healthz", "", nil)
	w := do(srv, http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "counsel_http_requests_total") {
		t.Fatalf("metrics: %d %s", w.Code, w.Body.String())
	}
}

func TestStreamMountedBehindAuth(t *testing.T) {
	srv, _ := newTestServer(config.Config{AuthPassword: "pw"})
	srv.WithStream(func(c echo.Context) error { return c.String(http.StatusOK, "stream") })
	if w := do(srv, http.MethodGet, "/stream", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if w := do(srv, http.MethodGet, "/stream?password=pw", "", nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}
