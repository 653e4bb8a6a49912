package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stellarlinkco/aogateway/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		OpenAIBaseURL:      config.DefaultOpenAIBaseURL,
		OpenAIDefaultModel: "gpt-4.1",
		Host:               config.DefaultHost,
		Port:               config.DefaultPort,
	}
}

func TestCountTokens_NoUpstreamCallRequired(t *testing.T) {
	srv := NewServer(testConfig(), nil)
	body := strings.NewReader(`{"model":"claude-3-opus","messages":[{"role":"user","content":"hello there"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/messages/count_tokens", body)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var decoded struct {
		InputTokens int `json:"input_tokens"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if decoded.InputTokens <= 0 {
		t.Errorf("input_tokens = %d, want > 0", decoded.InputTokens)
	}
}

func TestCountTokens_AliasRoute(t *testing.T) {
	srv := NewServer(testConfig(), nil)
	body := strings.NewReader(`{"model":"claude-3-opus","messages":[{"role":"user","content":"hi"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/messages/token_count", body)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestMessages_MissingCredentialReturns401(t *testing.T) {
	srv := NewServer(testConfig(), nil)
	body := strings.NewReader(`{"model":"claude-3-opus","messages":[{"role":"user","content":"hi"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", body)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var env struct {
		Type  string `json:"type"`
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	if env.Type != "error" || env.Error.Type != "authentication_error" {
		t.Errorf("unexpected error envelope: %+v", env)
	}
}

func TestMessages_InvalidBodyReturns400(t *testing.T) {
	cfg := testConfig()
	cfg.OpenAIAPIKey = "sk-test"
	srv := NewServer(cfg, nil)
	body := strings.NewReader(`not json`)
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", body)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestCorrelationID_GeneratedWhenAbsent(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/messages/count_tokens", nil)
	if id := correlationID(req); id == "" {
		t.Error("expected a generated correlation ID")
	}
}

func TestCorrelationID_PassedThrough(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/messages/count_tokens", nil)
	req.Header.Set("X-Correlation-ID", "corr-123")
	if id := correlationID(req); id != "corr-123" {
		t.Errorf("correlationID() = %q, want corr-123", id)
	}
}
