package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
)

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(testConfig(), &fakeStore{}, Options{})

	rr := doJSON(t, server, http.MethodGet, "/api/health", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if ok := decodeResponse(t, rr)["ok"]; ok != true {
		t.Fatalf("expected ok=true, got %v", ok)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected a generated request id")
	}
}

func TestReadyEndpoint_Success(t *testing.T) {
	fs := &fakeStore{pingFn: func(context.Context) error { return nil }}
	server, _ := newTestServer(testConfig(), fs, Options{})

	rr := doJSON(t, server, http.MethodGet, "/api/ready", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	response := decodeResponse(t, rr)
	if response["status"] != "ready" {
		t.Fatalf("expected status=ready, got %v", response["status"])
	}
	checks, _ := response["checks"].(map[string]any)
	database, _ := checks["database"].(map[string]any)
	if database["status"] != "ok" {
		t.Fatalf("expected database ok, got %v", checks)
	}
}

func TestReadyEndpoint_DatabaseDown(t *testing.T) {
	fs := &fakeStore{pingFn: func(context.Context) error { return errors.New("connection refused") }}
	server, _ := newTestServer(testConfig(), fs, Options{})

	rr := doJSON(t, server, http.MethodGet, "/api/ready", nil)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
	response := decodeResponse(t, rr)
	if response["ok"] != false || response["status"] != "not_ready" {
		t.Fatalf("unexpected response %v", response)
	}
	if strings.Contains(rr.Body.String(), "connection refused") {
		t.Fatalf("driver error leaked into response: %s", rr.Body.String())
	}
}

func TestPreflightAndUnknownRoutes(t *testing.T) {
	server, _ := newTestServer(testConfig(), &fakeStore{}, Options{})

	rr := doJSON(t, server, http.MethodOptions, "/api/convert", nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected CORS header, got %q", rr.Header().Get("Access-Control-Allow-Origin"))
	}

	rr = doJSON(t, server, http.MethodGet, "/api/nope", nil)
	if rr.Code != http.StatusNotFound || errorCode(t, rr) != "NOT_FOUND" {
		t.Fatalf("expected 404 NOT_FOUND, got %d %s", rr.Code, rr.Body.String())
	}
}
