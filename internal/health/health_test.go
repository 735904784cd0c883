package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealth_InitializingBeforeReady(t *testing.T) {
	h := New(
		Checker{Name: "asr", Check: func(_ context.Context) error { return nil }},
	)

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	h.Health(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.Status != "initializing" {
		t.Errorf("status = %q, want %q", body.Status, "initializing")
	}
	if body.ModelsLoaded {
		t.Error("models_loaded = true before SetReady")
	}
}

func TestHealth_HealthyWhenAllCheckersPass(t *testing.T) {
	h := New(
		Checker{Name: "asr", Check: func(_ context.Context) error { return nil }},
		Checker{Name: "lipsync", Check: func(_ context.Context) error { return nil }},
	)
	h.SetReady()

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	h.Health(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.Status != "healthy" {
		t.Errorf("status = %q, want %q", body.Status, "healthy")
	}
	if !body.ModelsLoaded {
		t.Error("models_loaded = false, want true")
	}
	if body.Checks["asr"] != "ok" || body.Checks["lipsync"] != "ok" {
		t.Errorf("checks = %v, want all ok", body.Checks)
	}
}

func TestHealth_UnhealthyWhenCheckerFails(t *testing.T) {
	h := New(
		Checker{Name: "asr", Check: func(_ context.Context) error { return nil }},
		Checker{Name: "lipsync", Check: func(_ context.Context) error { return errors.New("gpu service unreachable") }},
	)
	h.SetReady()

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	h.Health(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.Status != "unhealthy" {
		t.Errorf("status = %q, want %q", body.Status, "unhealthy")
	}
	if body.Checks["asr"] != "ok" {
		t.Errorf("asr check = %q, want ok", body.Checks["asr"])
	}
	if body.Checks["lipsync"] == "ok" {
		t.Error("lipsync check reported ok despite failure")
	}
}

func TestHealth_ContentType(t *testing.T) {
	h := New()
	h.SetReady()

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	h.Health(rec, req)

	ct := rec.Header().Get("Content-Type")
	if ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}
