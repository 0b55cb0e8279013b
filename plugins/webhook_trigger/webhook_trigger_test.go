package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mywio/git-autosync/pkg/core"
)

func drainTrigger() {
	select {
	case <-core.TriggerSync:
	default:
	}
}

func newTriggerPlugin(t *testing.T, token string) *WebhookTriggerPlugin {
	t.Helper()
	p := &WebhookTriggerPlugin{token: token}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p.logger = logger
	p.mux = http.NewServeMux()
	p.mux.HandleFunc("/sync", p.handleSync)
	return p
}

func TestHandleSyncMethodNotAllowed(t *testing.T) {
	p := newTriggerPlugin(t, "")

	req := httptest.NewRequest(http.MethodGet, "/sync", nil)
	rec := httptest.NewRecorder()
	p.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleSyncUnauthorized(t *testing.T) {
	p := newTriggerPlugin(t, "sekret")

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic sekret"},
		{"wrong token", "Bearer nope"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			drainTrigger()
			req := httptest.NewRequest(http.MethodPost, "/sync", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			p.mux.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			select {
			case <-core.TriggerSync:
				t.Error("unauthorized request must not trigger a sync")
			default:
			}
		})
	}
}

func TestHandleSyncTriggers(t *testing.T) {
	drainTrigger()
	p := newTriggerPlugin(t, "sekret")

	req := httptest.NewRequest(http.MethodPost, "/sync", nil)
	req.Header.Set("Authorization", "Bearer sekret")
	rec := httptest.NewRecorder()
	p.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), "Sync triggered")

	select {
	case <-core.TriggerSync:
	default:
		t.Fatal("expected a pending sync trigger")
	}
}

func TestHandleSyncCoalesces(t *testing.T) {
	drainTrigger()
	p := newTriggerPlugin(t, "")

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/sync", nil)
		rec := httptest.NewRecorder()
		p.mux.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusAccepted, rec.Code)
	}

	// Two requests, one pending trigger.
	<-core.TriggerSync
	select {
	case <-core.TriggerSync:
		t.Fatal("triggers must coalesce while one is pending")
	default:
	}
}

func TestStatusReflectsAuth(t *testing.T) {
	p := &WebhookTriggerPlugin{}
	assert.Equal(t, core.StatusDegraded, p.Status())

	p.token = "sekret"
	assert.Equal(t, core.StatusHealthy, p.Status())
}

func TestExecuteUnsupported(t *testing.T) {
	p := &WebhookTriggerPlugin{}
	_, err := p.Execute(context.Background(), "sync_now", nil)
	assert.Error(t, err)
}
