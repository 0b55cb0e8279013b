package core

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type mockConfigView struct {
	Token Secret `json:"token"`
	User  string `json:"user"`
}

func TestHandlePlugins(t *testing.T) {
	mgr := NewModuleManager(testLogger())
	mgr.Register(&MockModule{
		name:         "pushover",
		capabilities: []Capability{CapabilityNotifier},
		cfg:          mockConfigView{Token: NewSecret("super-secret"), User: "u123"},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/plugins", nil)
	rec := httptest.NewRecorder()
	mgr.GetMuxServer().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var infos []map[string]any
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &infos))
	if assert.Len(t, infos, 1) {
		assert.Equal(t, "pushover", infos[0]["name"])
		assert.Equal(t, string(StatusHealthy), infos[0]["status"])
		_, hasConfig := infos[0]["config"]
		assert.False(t, hasConfig, "config omitted unless requested")
	}
}

func TestHandlePluginsIncludeConfigRedactsSecrets(t *testing.T) {
	mgr := NewModuleManager(testLogger())
	mgr.Register(&MockModule{
		name: "pushover",
		cfg:  mockConfigView{Token: NewSecret("super-secret"), User: "u123"},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/plugins?include_config=true", nil)
	rec := httptest.NewRecorder()
	mgr.GetMuxServer().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"REDACTED"`)
	assert.NotContains(t, body, "super-secret")
	assert.Contains(t, body, "u123")
}

func TestHandlePluginByName(t *testing.T) {
	mgr := NewModuleManager(testLogger())
	mgr.Register(&MockModule{name: "webhook"})

	req := httptest.NewRequest(http.MethodGet, "/api/plugins/webhook", nil)
	rec := httptest.NewRecorder()
	mgr.GetMuxServer().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var info map[string]any
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "webhook", info["name"])
}

func TestHandlePluginNotFound(t *testing.T) {
	mgr := NewModuleManager(testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/plugins/missing", nil)
	rec := httptest.NewRecorder()
	mgr.GetMuxServer().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlePluginsMethodNotAllowed(t *testing.T) {
	mgr := NewModuleManager(testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/plugins", nil)
	rec := httptest.NewRecorder()
	mgr.GetMuxServer().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHTTPAddrFromConfig(t *testing.T) {
	mgr := NewModuleManager(testLogger())
	assert.Equal(t, "", mgr.httpAddr())

	mgr.SetConfig(map[string]map[string]any{
		"core": {"http_addr": ":8080"},
	})
	assert.Equal(t, ":8080", mgr.httpAddr())
}
