package steam

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/edgard/scposter/internal/resilience"
	"github.com/edgard/scposter/internal/steamid"
)

const testSteamID = steamid.ID(76561199491325083)

type fakeSteam struct {
	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	calls    map[string]int
}

func newFakeSteam(t *testing.T) (*fakeSteam, *Client) {
	t.Helper()

	f := &fakeSteam{handlers: map[string]http.HandlerFunc{}, calls: map[string]int{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	client := NewClient(
		WithBaseURL(srv.URL),
		WithLogger(slog.New(slog.DiscardHandler)),
		WithRetry(resilience.RetryConfig{
			MaxAttempts:     3,
			InitialInterval: time.Millisecond,
			MaxInterval:     5 * time.Millisecond,
			Multiplier:      2,
		}),
	)
	return f, client
}

func (f *fakeSteam) handle(name string, h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[name] = h
}

func (f *fakeSteam) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeSteam) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSuffix(strings.Trim(r.URL.Path, "/"), "/v1")

	f.mu.Lock()
	h, ok := f.handlers[name]
	f.calls[name]++
	f.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	h(w, r)
}

func writeResponse(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-eresult", "1")
	_ = json.NewEncoder(w).Encode(map[string]any{"response": v})
}

func writeResult(w http.ResponseWriter, status int, result EResult) {
	w.Header().Set("X-eresult", strconv.Itoa(int(result)))
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"response":{}}`))
}

func signedToken(t *testing.T, subject string, ttl time.Duration) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

type memoryGuardStore struct {
	mu     sync.Mutex
	tokens map[string]string
	ids    map[string]steamid.ID
}

func newMemoryGuardStore() *memoryGuardStore {
	return &memoryGuardStore{tokens: map[string]string{}, ids: map[string]steamid.ID{}}
}

func (m *memoryGuardStore) RefreshToken(_ context.Context, account string) (string, steamid.ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[account], m.ids[account], nil
}

func (m *memoryGuardStore) SaveRefreshToken(_ context.Context, account string, id steamid.ID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[account] = token
	m.ids[account] = id
	return nil
}
