// Package integration contains integration tests for the RelayChat server's
// plain HTTP surface.
package integration

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/Tyrowin/relaychat/internal/server"
	"github.com/Tyrowin/relaychat/test/testhelpers"
)

// TestHealthEndpointIntegration verifies the health check endpoint with a real
// HTTP server.
func TestHealthEndpointIntegration(t *testing.T) {
	mux := server.SetupRoutes()
	testServer := testhelpers.CreateTestServer(mux)
	defer testServer.Close()

	resp := testhelpers.MakeRequest(t, http.MethodGet, testServer.URL+"/")
	defer func() { _ = resp.Body.Close() }()

	testhelpers.AssertStatusCode(t, resp, http.StatusOK)
	testhelpers.AssertContentType(t, resp, "text/plain")

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response body: %v", err)
	}
	if string(body) != "RelayChat server is running!" {
		t.Errorf("Unexpected health response: %q", body)
	}
}

// TestTestPageEndpointIntegration verifies that the test page is served.
func TestTestPageEndpointIntegration(t *testing.T) {
	mux := server.SetupRoutes()
	testServer := testhelpers.CreateTestServer(mux)
	defer testServer.Close()

	resp := testhelpers.MakeRequest(t, http.MethodGet, testServer.URL+"/test")
	defer func() { _ = resp.Body.Close() }()

	testhelpers.AssertStatusCode(t, resp, http.StatusOK)
	testhelpers.AssertContentType(t, resp, "text/html")

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response body: %v", err)
	}
	if !strings.Contains(string(body), "RelayChat Test") {
		t.Error("Test page does not contain the expected title")
	}
}

// TestWebSocketEndpointRejectsNonGetIntegration verifies the WebSocket
// endpoint's method restriction through the full routing stack.
func TestWebSocketEndpointRejectsNonGetIntegration(t *testing.T) {
	mux := server.SetupRoutes()
	testServer := testhelpers.CreateTestServer(mux)
	defer testServer.Close()

	resp := testhelpers.MakeRequest(t, http.MethodPost, testServer.URL+"/ws")
	defer func() { _ = resp.Body.Close() }()

	testhelpers.AssertStatusCode(t, resp, http.StatusMethodNotAllowed)
}

// TestCreateServerTimeouts verifies the production timeout defaults applied by
// CreateServer.
func TestCreateServerTimeouts(t *testing.T) {
	httpServer := server.CreateServer(":0", http.NewServeMux())

	if httpServer.ReadTimeout == 0 {
		t.Error("Expected a non-zero read timeout")
	}
	if httpServer.WriteTimeout == 0 {
		t.Error("Expected a non-zero write timeout")
	}
	if httpServer.IdleTimeout == 0 {
		t.Error("Expected a non-zero idle timeout")
	}
}

// TestNewConfigDefaults verifies the default configuration values.
func TestNewConfigDefaults(t *testing.T) {
	cfg := server.NewConfig()

	if cfg.Port != ":3001" {
		t.Errorf("Expected default port :3001, got %s", cfg.Port)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "http://localhost:3000" {
		t.Errorf("Unexpected default allowed origins: %v", cfg.AllowedOrigins)
	}
	if cfg.MaxMessageSize <= 0 {
		t.Errorf("Expected a positive max message size, got %d", cfg.MaxMessageSize)
	}
	if cfg.RateLimit.Burst <= 0 {
		t.Errorf("Expected a positive rate limit burst, got %d", cfg.RateLimit.Burst)
	}
}
