package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"mediasrv/internal/api"
	"mediasrv/internal/config"
)

func TestIsLoopbackURL(t *testing.T) {
	tests := map[string]bool{
		"http://127.0.0.1:7480":     true,
		"http://localhost:7480":     true,
		"http://[::1]:7480":         true,
		"http://media.example:7480": false,
		"http://10.0.0.5:7480":      false,
		"::not a url":               false,
	}
	for raw, want := range tests {
		if got := isLoopbackURL(raw); got != want {
			t.Fatalf("isLoopbackURL(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestWithClientUsesRunningServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	called := false
	err := withClient(context.Background(), &config.Config{APIURL: srv.URL}, func(*api.Client) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Fatalf("expected fn to run against the live server, err=%v called=%v", err, called)
	}
}

func TestWithClientDoesNotStartRemoteServers(t *testing.T) {
	err := withClient(context.Background(), &config.Config{APIURL: "http://mediasrv.invalid:7480"}, func(*api.Client) error {
		t.Fatal("fn must not run without a server")
		return nil
	})
	if err == nil || !strings.Contains(err.Error(), "no mediasrv server") {
		t.Fatalf("expected unreachable remote error, got %v", err)
	}
}
