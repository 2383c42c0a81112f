package model

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientDecisionValue(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/score" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
			return
		}
		var req struct {
			Features []float64 `json:"features"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Features) != 2 || req.Features[0] != 42 || req.Features[1] != 71.5 {
			t.Errorf("unexpected features %v", req.Features)
		}
		_ = json.NewEncoder(w).Encode(map[string]float64{"decision_value": -0.31})
	}))
	defer server.Close()

	client, err := NewClient(server.URL, time.Second)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	got, err := client.DecisionValue(context.Background(), []float64{42, 71.5})
	if err != nil {
		t.Fatalf("decision value: %v", err)
	}
	if got != -0.31 {
		t.Fatalf("decision value = %v, want -0.31", got)
	}
}

func TestClientDecisionValueServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, err := NewClient(server.URL, time.Second)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.DecisionValue(context.Background(), []float64{1, 2}); err == nil {
		t.Fatal("expected error from unavailable model server")
	}
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient("", time.Second); err == nil {
		t.Fatal("expected error for empty base url")
	}
}
