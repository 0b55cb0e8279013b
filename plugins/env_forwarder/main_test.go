package main

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func testForwarder(keys, prefixes []string) *EnvForwarderPlugin {
	return &EnvForwarderPlugin{
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		keys:     keys,
		prefixes: prefixes,
		enabled:  true,
	}
}

func TestGetSecretsByKey(t *testing.T) {
	t.Setenv("FWD_TEST_SSH", "ssh -i /keys/deploy")
	p := testForwarder([]string{"FWD_TEST_SSH"}, nil)

	res, err := p.Execute(context.Background(), "get_secrets", nil)
	assert.NoError(t, err)
	assert.Equal(t, map[string]string{"FWD_TEST_SSH": "ssh -i /keys/deploy"}, res)
}

func TestGetSecretsMissingKeySkipped(t *testing.T) {
	p := testForwarder([]string{"FWD_TEST_DOES_NOT_EXIST"}, nil)

	res, err := p.Execute(context.Background(), "get_secrets", nil)
	assert.NoError(t, err)
	assert.Equal(t, map[string]string{}, res)
}

func TestGetSecretsByPrefix(t *testing.T) {
	t.Setenv("FWDPFX_PROXY", "http://proxy:3128")
	t.Setenv("FWDPFX_NO_PROXY", "localhost")
	p := testForwarder(nil, []string{"FWDPFX_"})

	res, err := p.Execute(context.Background(), "get_secrets", nil)
	assert.NoError(t, err)
	secrets, ok := res.(map[string]string)
	if assert.True(t, ok) {
		assert.Equal(t, "http://proxy:3128", secrets["FWDPFX_PROXY"])
		assert.Equal(t, "localhost", secrets["FWDPFX_NO_PROXY"])
	}
}

func TestGetSecretsDisabled(t *testing.T) {
	p := testForwarder(nil, nil)
	p.enabled = false

	res, err := p.Execute(context.Background(), "get_secrets", nil)
	assert.NoError(t, err)
	assert.Equal(t, map[string]string{}, res)
}

func TestExecuteUnknownAction(t *testing.T) {
	p := testForwarder(nil, nil)
	_, err := p.Execute(context.Background(), "bogus", nil)
	assert.Error(t, err)
}

func TestNormalizeList(t *testing.T) {
	assert.Equal(t, []string{"A", "B"}, normalizeList([]string{" A ", "A", "", "B"}))
	assert.Equal(t, []string{}, normalizeList(nil))
}
