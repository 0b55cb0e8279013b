package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mywio/git-autosync/pkg/core"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPushoverInitDisabledWithoutCredentials(t *testing.T) {
	n := &PushoverNotifier{}
	err := n.Init(context.Background(), discardLogger(), nil)
	assert.NoError(t, err, "missing credentials disable the notifier, not the daemon")
	assert.False(t, n.enabled)
	assert.Equal(t, core.StatusDegraded, n.Status())
}

func TestPushoverExecuteDisabled(t *testing.T) {
	n := &PushoverNotifier{logger: discardLogger()}

	res, err := n.Execute(context.Background(), "notify", nil)
	assert.NoError(t, err)
	assert.Nil(t, res)
}

func TestPushoverExecuteValidation(t *testing.T) {
	n := &PushoverNotifier{
		logger:  discardLogger(),
		token:   core.NewSecret("t"),
		user:    "u",
		enabled: true,
	}

	_, err := n.Execute(context.Background(), "bogus", nil)
	assert.Error(t, err)

	_, err = n.Execute(context.Background(), "notify", map[string]any{})
	assert.Error(t, err)

	_, err = n.Execute(context.Background(), "notify", map[string]any{"event": "not-an-event"})
	assert.Error(t, err)
}

func TestPushoverConfigRedactsToken(t *testing.T) {
	n := &PushoverNotifier{
		token:         core.NewSecret("super-secret"),
		user:          "u123",
		enabled:       true,
		subscriptions: []string{"notify_*"},
	}

	data, err := json.Marshal(n.Config())
	assert.NoError(t, err)
	assert.NotContains(t, string(data), "super-secret")
	assert.Contains(t, string(data), "REDACTED")
	assert.Contains(t, string(data), "u123")
}

func TestPushoverNormalizePatterns(t *testing.T) {
	assert.Equal(t, []string{"notify_*", "sync_noop"},
		normalizePatterns([]string{" notify_* ", "notify_*", "", "sync_noop"}))
}

func TestPushoverParseSubscribePatterns(t *testing.T) {
	cases := []struct {
		name     string
		section  map[string]any
		expected []string
	}{
		{"absent", map[string]any{"token": "t"}, nil},
		{"comma string", map[string]any{"subscribe": "notify_*,sync_push_failed"}, []string{"notify_*", "sync_push_failed"}},
		{"yaml list", map[string]any{"subscribe": []any{"notify_*"}}, []string{"notify_*"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, parseSubscribePatterns(tc.section))
		})
	}
}
