// © 2026 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CLOUDSTACK_ENDPOINT", "CLOUDSTACK_KEY", "CLOUDSTACK_SECRET",
		"CLOUDSTACK_METHOD", "CLOUDSTACK_TIMEOUT", "CLOUDSTACK_REGION",
	} {
		t.Setenv(key, "")
	}
}

func TestFromTargetConfigPrefersTargetValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("CLOUDSTACK_KEY", "k")
	t.Setenv("CLOUDSTACK_SECRET", "s")

	cfg, err := FromTargetConfig([]byte(`{
		"apiURL": "https://cloud.example.com/client/api",
		"apiHTTPMethod": "post",
		"apiTimeout": 30
	}`))

	require.NoError(t, err)
	assert.Equal(t, "https://cloud.example.com/client/api", cfg.APIURL)
	assert.Equal(t, "post", cfg.APIHTTPMethod)
	assert.Equal(t, 30*time.Second, cfg.Timeout())
	assert.Equal(t, "k", cfg.APIKey)
	assert.Equal(t, "s", cfg.APISecret)
}

func TestFromTargetConfigFallsBackToEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("CLOUDSTACK_ENDPOINT", "https://env.example.com/client/api")
	t.Setenv("CLOUDSTACK_KEY", "k")
	t.Setenv("CLOUDSTACK_SECRET", "s")
	t.Setenv("CLOUDSTACK_TIMEOUT", "45")

	cfg, err := FromTargetConfig(nil)

	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com/client/api", cfg.APIURL)
	assert.Equal(t, "get", cfg.APIHTTPMethod, "http method defaults to signed GETs")
	assert.Equal(t, 45, cfg.APITimeout)
}

func TestFromTargetConfigReadsRegionProfile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	ini := `[exoscale]
endpoint = https://ini.example.com/client/api
key = ini-key
secret = ini-secret
timeout = 20
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cloudstack.ini"), []byte(ini), 0o600))
	t.Chdir(dir)
	t.Setenv("CLOUDSTACK_REGION", "exoscale")

	cfg, err := FromTargetConfig(nil)

	require.NoError(t, err)
	assert.Equal(t, "https://ini.example.com/client/api", cfg.APIURL)
	assert.Equal(t, "ini-key", cfg.APIKey)
	assert.Equal(t, "ini-secret", cfg.APISecret)
	assert.Equal(t, 20, cfg.APITimeout)
}

func TestFromTargetConfigUnknownRegionProfileFails(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cloudstack.ini"), []byte("[cloudstack]\nkey = k\n"), 0o600))
	t.Chdir(dir)
	t.Setenv("CLOUDSTACK_REGION", "missing")

	_, err := FromTargetConfig(nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), `region profile "missing" not found`)
}

func TestFromTargetConfigRequiresCredentials(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv("CLOUDSTACK_ENDPOINT", "https://env.example.com/client/api")

	_, err := FromTargetConfig(nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "CLOUDSTACK_KEY")
}

func TestFromTargetConfigRequiresEndpoint(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv("CLOUDSTACK_KEY", "k")
	t.Setenv("CLOUDSTACK_SECRET", "s")

	_, err := FromTargetConfig(nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "apiURL is required")
}

func TestFromTargetConfigRejectsUnknownHTTPMethod(t *testing.T) {
	clearEnv(t)
	t.Setenv("CLOUDSTACK_ENDPOINT", "https://env.example.com/client/api")
	t.Setenv("CLOUDSTACK_KEY", "k")
	t.Setenv("CLOUDSTACK_SECRET", "s")
	t.Setenv("CLOUDSTACK_METHOD", "put")

	_, err := FromTargetConfig(nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "apiHTTPMethod must be 'get' or 'post'")
}

func TestShouldVerifySSLDefaultsTrue(t *testing.T) {
	cfg := &Config{}
	assert.True(t, cfg.ShouldVerifySSL())

	off := false
	cfg.VerifySSL = &off
	assert.False(t, cfg.ShouldVerifySSL())
}
