package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryguy/webbridge/internal/core"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, cfg.PromiseTimeout)
	assert.True(t, cfg.AutoInjectBridge)
	assert.Equal(t, core.CapabilityAndroid, cfg.PageCapability())
}

func TestFileOverridesDefaults(t *testing.T) {
	p := writeConfig(t, "webbridge.yaml", `
capability: webkit
promiseTimeout: 2s
autoInjectBridge: false
resources:
  site.css: ~/www/site.css
autoLoadScripts:
  - x-local://app.js
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, core.CapabilityWebKit, cfg.PageCapability())
	assert.Equal(t, 2*time.Second, cfg.PromiseTimeout)
	assert.False(t, cfg.AutoInjectBridge)
	assert.Equal(t, map[string]string{"site.css": "~/www/site.css"}, cfg.Resources)
	assert.Equal(t, []string{"x-local://app.js"}, cfg.AutoLoadScripts)
	assert.Equal(t, Defaults().Listen, cfg.Listen)
}

func TestFileRejectsUnknownKeys(t *testing.T) {
	p := writeConfig(t, "webbridge.yaml", "capabilty: webkit\n")
	_, err := Load(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strict config parse error")
}

func TestFileRejectsMultipleDocuments(t *testing.T) {
	p := writeConfig(t, "webbridge.yaml", "listen: ':1'\n---\nlisten: ':2'\n")
	_, err := Load(p)
	require.Error(t, err)
}

func TestFileRejectsOtherFormats(t *testing.T) {
	p := writeConfig(t, "webbridge.json", "{}")
	_, err := Load(p)
	require.Error(t, err)
}

func TestEmptyFile(t *testing.T) {
	p := writeConfig(t, "webbridge.yml", "")
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestEnvOverridesFile(t *testing.T) {
	cfg := Defaults()
	cfg.Capability = "webkit"
	env := map[string]string{
		"WEBBRIDGE_CAPABILITY":       "legacy",
		"WEBBRIDGE_PROMISE_TIMEOUT":  "-1s",
		"WEBBRIDGE_AUTO_INJECT":      "false",
		"WEBBRIDGE_MEMORY_LIMIT_MB":  "not-a-number",
		"WEBBRIDGE_AUTOLOAD_SCRIPTS": "a.js, b.js,,",
		"WEBBRIDGE_LISTEN":           "",
	}
	mergeEnv(&cfg, func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	assert.Equal(t, core.CapabilityLegacy, cfg.PageCapability())
	assert.Equal(t, -time.Second, cfg.PromiseTimeout)
	assert.False(t, cfg.AutoInjectBridge)
	assert.Equal(t, Defaults().MemoryLimitMB, cfg.MemoryLimitMB)
	assert.Equal(t, []string{"a.js", "b.js"}, cfg.AutoLoadScripts)
	assert.Equal(t, Defaults().Listen, cfg.Listen)
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	cfg.Capability = "socket"
	assert.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.Capability = "gtk"
	assert.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.EvalTimeout = 0
	assert.Error(t, cfg.Validate())
}
