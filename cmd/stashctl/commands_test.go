package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const appConfig = `
caching:
  profile:
    refresh-duration: 5s
    expire-duration: 60s
    max-size: 100
  sessions:
    refresh-duration: 0
    expire-duration: never
    engine: lru
  broken:
    max-size: 10
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte(appConfig), 0o600))

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--config", path))
	err := cmd.Execute()
	return out.String(), err
}

func TestResolve_Named(t *testing.T) {
	out, err := run(t, "resolve", "profile", "sessions")
	require.NoError(t, err)

	var doc map[string]map[string]resolved
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))

	assert.Equal(t, resolved{
		RefreshDuration: "5s",
		ExpireDuration:  "1m0s",
		MaxSize:         100,
		Engine:          "ristretto",
	}, doc["caching"]["profile"])
	assert.Equal(t, resolved{
		RefreshDuration: "0s",
		ExpireDuration:  "infinite",
		MaxSize:         1500,
		Engine:          "lru",
	}, doc["caching"]["sessions"])
}

func TestResolve_AllReportsFailures(t *testing.T) {
	out, err := run(t, "resolve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refresh-duration")

	var doc map[string]map[string]resolved
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	assert.Len(t, doc["caching"], 2, "good caches are still printed")
}

func TestResolve_UnknownName(t *testing.T) {
	_, err := run(t, "resolve", "nope")
	assert.ErrorIs(t, err, errUnconfigured)
}

func TestCheck(t *testing.T) {
	out, err := run(t, "check", "profile")
	require.NoError(t, err)
	assert.Contains(t, out, `cache "profile" is configured`)

	_, err = run(t, "check", "nope")
	assert.ErrorIs(t, err, errUnconfigured)

	_, err = run(t, "check", "broken")
	assert.Error(t, err)
}
