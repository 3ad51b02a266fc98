package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Harsh-BH/Intelligenter/internal/domain"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeAnalyzer struct {
	mu       sync.Mutex
	names    []string
	lookup   func(name string) (*domain.Result, error)
	start    func(name string) (*domain.Result, error)
	statuses []*domain.Result
	statusN  int
}

func (f *fakeAnalyzer) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.names = append(f.names, name)
}

func (f *fakeAnalyzer) Lookup(_ context.Context, name string) (*domain.Result, error) {
	f.record(name)
	return f.lookup(name)
}

func (f *fakeAnalyzer) StartAnalysis(_ context.Context, name string) (*domain.Result, error) {
	f.record(name)
	return f.start(name)
}

func (f *fakeAnalyzer) Status(_ context.Context, name string) (*domain.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.statuses) == 0 {
		return nil, domain.ErrRecordNotFound
	}
	i := min(f.statusN, len(f.statuses)-1)
	f.statusN++
	return f.statuses[i], nil
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func completed(name string) *domain.Result {
	at := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)
	return &domain.Result{
		Domain:         name,
		Status:         domain.ResultCompleted,
		Reputation:     &domain.ReputationFact{NumberOfScanners: 70, DetectedEngines: "None", LastUpdated: "2026.10.17"},
		Registration:   &domain.RegistrationFact{DateCreated: "1995.08.14", OwnerName: "IANA", ExpiredOn: "2031.08.13"},
		LastAnalyzedAt: &at,
	}
}

func setupTestRouter(a *fakeAnalyzer, cfg RouterConfig) *gin.Engine {
	checks := map[string]Pinger{"postgres": fakePinger{}, "redis": fakePinger{}}
	return NewRouter(a, checks, cfg, zap.NewNop())
}

func TestGetDomain_Completed(t *testing.T) {
	a := &fakeAnalyzer{lookup: func(name string) (*domain.Result, error) { return completed(name), nil }}
	router := setupTestRouter(a, RouterConfig{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/domains?domain=Example.COM.", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp domain.Result
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Domain != "example.com" {
		t.Errorf("expected normalized domain, got %q", resp.Domain)
	}
	if resp.Reputation == nil || resp.Registration == nil {
		t.Error("expected both facts in a completed response")
	}
	if len(a.names) != 1 || a.names[0] != "example.com" {
		t.Errorf("expected one lookup for example.com, got %v", a.names)
	}
}

func TestGetDomain_OnAnalysisIsAccepted(t *testing.T) {
	a := &fakeAnalyzer{lookup: func(name string) (*domain.Result, error) { return domain.OnAnalysisResult(name), nil }}
	router := setupTestRouter(a, RouterConfig{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/domains?domain=example.com", nil))

	if w.Code != http.StatusAccepted {
		t.Errorf("expected status 202, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"onAnalysis"`) {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
}

func TestGetDomain_ErrorShape(t *testing.T) {
	a := &fakeAnalyzer{lookup: func(name string) (*domain.Result, error) { return domain.ErrorResult(name), nil }}
	router := setupTestRouter(a, RouterConfig{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/domains?domain=example.com", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), domain.AnalysisFailedMessage) {
		t.Errorf("expected failure message, got %s", w.Body.String())
	}
}

func TestGetDomain_InvalidInput(t *testing.T) {
	a := &fakeAnalyzer{}
	router := setupTestRouter(a, RouterConfig{})

	for _, target := range []string{
		"/api/v1/domains",
		"/api/v1/domains?domain=",
		"/api/v1/domains?domain=not_a_domain",
		"/api/v1/domains?domain=localhost",
		"/api/v1/domains?domain=" + strings.Repeat("a", 250) + ".com",
	} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected status 400, got %d", target, w.Code)
		}
	}
	if len(a.names) != 0 {
		t.Errorf("invalid input must not reach the analyzer, got %v", a.names)
	}
}

func TestGetDomain_PersistenceErrorIsUnavailable(t *testing.T) {
	a := &fakeAnalyzer{lookup: func(string) (*domain.Result, error) {
		return nil, domain.NewPersistenceError("begin analysis", errors.New("connection refused"))
	}}
	router := setupTestRouter(a, RouterConfig{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/domains?domain=example.com", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}
}

func TestPostDomain_StartsAnalysis(t *testing.T) {
	a := &fakeAnalyzer{start: func(name string) (*domain.Result, error) { return domain.OnAnalysisResult(name), nil }}
	router := setupTestRouter(a, RouterConfig{})

	body, _ := json.Marshal(map[string]string{"domain": "Sub.Example.org"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/domains", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", w.Code, w.Body.String())
	}
	if len(a.names) != 1 || a.names[0] != "sub.example.org" {
		t.Errorf("expected analysis of sub.example.org, got %v", a.names)
	}
}

func TestPostDomain_EmptyBody(t *testing.T) {
	router := setupTestRouter(&fakeAnalyzer{}, RouterConfig{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/domains", bytes.NewBufferString("{}"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestPostDomain_UnexpectedError(t *testing.T) {
	a := &fakeAnalyzer{start: func(string) (*domain.Result, error) { return nil, errors.New("boom") }}
	router := setupTestRouter(a, RouterConfig{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/domains", bytes.NewBufferString(`{"domain":"example.com"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", w.Code)
	}
}

func TestDomains_RequireAPIKey(t *testing.T) {
	a := &fakeAnalyzer{lookup: func(name string) (*domain.Result, error) { return completed(name), nil }}
	router := setupTestRouter(a, RouterConfig{APIKey: "secret"})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/domains?domain=example.com", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/domains?domain=example.com", nil)
	req.Header.Set("X-API-KEY", "secret")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
}

func TestDomains_RateLimited(t *testing.T) {
	a := &fakeAnalyzer{lookup: func(name string) (*domain.Result, error) { return completed(name), nil }}
	router := setupTestRouter(a, RouterConfig{RateLimit: 2, RateWindow: time.Hour})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/domains?domain=example.com", nil))
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("expected [200 200 429], got %v", codes)
	}
}

func TestHealth(t *testing.T) {
	router := setupTestRouter(&fakeAnalyzer{}, RouterConfig{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"postgres":"ok"`) {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
}

func TestHealth_Degraded(t *testing.T) {
	checks := map[string]Pinger{"postgres": fakePinger{}, "redis": fakePinger{err: errors.New("dial tcp: refused")}}
	router := NewRouter(&fakeAnalyzer{}, checks, RouterConfig{}, zap.NewNop())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"redis":"unavailable"`) {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
}

func TestStream_UntilTerminal(t *testing.T) {
	a := &fakeAnalyzer{statuses: []*domain.Result{
		domain.OnAnalysisResult("example.com"),
		completed("example.com"),
	}}
	router := gin.New()
	ws := NewWebSocketHandler(a, zap.NewNop())
	ws.interval = 10 * time.Millisecond
	router.GET("/stream", ws.Stream)

	srv := httptest.NewServer(router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/stream?domain=example.com", nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	var got []domain.ResultStatus
	for {
		var res domain.Result
		if err := conn.ReadJSON(&res); err != nil {
			break
		}
		got = append(got, res.Status)
	}

	if len(got) != 2 || got[0] != domain.ResultOnAnalysis || got[1] != domain.ResultCompleted {
		t.Errorf("expected [onAnalysis completed], got %v", got)
	}
}

func TestStream_UnknownDomain(t *testing.T) {
	router := gin.New()
	router.GET("/stream", NewWebSocketHandler(&fakeAnalyzer{}, zap.NewNop()).Stream)

	srv := httptest.NewServer(router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/stream?domain=example.com", nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	var msg map[string]string
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if msg["error"] != "Domain not found" {
		t.Errorf("unexpected message: %v", msg)
	}
}
