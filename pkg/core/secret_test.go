package core

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSecretRedaction(t *testing.T) {
	s := NewSecret("hunter2")
	assert.Equal(t, "REDACTED", s.Redacted())
	assert.Equal(t, "REDACTED", s.String())
	assert.Equal(t, "hunter2", s.Value)

	empty := NewSecret("")
	assert.Equal(t, "", empty.Redacted())
}

func TestSecretMarshalJSON(t *testing.T) {
	payload := struct {
		Token Secret `json:"token"`
		User  string `json:"user"`
	}{
		Token: NewSecret("hunter2"),
		User:  "u123",
	}

	data, err := json.Marshal(payload)
	assert.NoError(t, err)
	assert.JSONEq(t, `{"token":"REDACTED","user":"u123"}`, string(data))
}

func TestSecretFmtDoesNotLeak(t *testing.T) {
	s := NewSecret("hunter2")
	assert.NotContains(t, fmt.Sprintf("%v", s), "hunter2")
	assert.NotContains(t, fmt.Sprintf("%s", s), "hunter2")
}

func TestDecodeConfigSection(t *testing.T) {
	var out struct {
		Token string `yaml:"token"`
		User  string `yaml:"user"`
	}
	section := map[string]any{"token": "abc", "user": "u123"}
	assert.NoError(t, DecodeConfigSection(section, &out))
	assert.Equal(t, "abc", out.Token)
	assert.Equal(t, "u123", out.User)

	assert.NoError(t, DecodeConfigSection(nil, &out), "nil section is a no-op")
}
