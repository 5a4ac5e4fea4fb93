package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_DotEnvDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	dotenv := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(dotenv, []byte("MARKET_TEST_PORT=7000\nMARKET_TEST_SECRET=from-file\n"), 0o644))

	t.Setenv("MARKET_TEST_SECRET", "from-env")
	t.Cleanup(func() { os.Unsetenv("MARKET_TEST_PORT") })

	v, err := Open(Source{
		DotEnv:   []string{dotenv},
		Name:     "absent",
		Dirs:     []string{dir},
		Defaults: map[string]interface{}{"server.port": 5000},
		Env: map[string]string{
			"server.port":    "MARKET_TEST_PORT",
			"session.secret": "MARKET_TEST_SECRET",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 7000, v.GetInt("server.port"))
	assert.Equal(t, "from-env", v.GetString("session.secret"))
}

func TestOpen_MissingFilesAreFine(t *testing.T) {
	dir := t.TempDir()
	v, err := Open(Source{
		DotEnv:   []string{filepath.Join(dir, ".env")},
		Name:     "config",
		Dirs:     []string{dir},
		Defaults: map[string]interface{}{"cache.ttl": "30s"},
	})
	require.NoError(t, err)
	assert.Equal(t, "30s", v.GetString("cache.ttl"))
}

func TestDuration(t *testing.T) {
	v, err := Open(Source{Name: "none", Dirs: []string{t.TempDir()}, Defaults: map[string]interface{}{
		"ok":   "3s",
		"bad":  "soon",
		"zero": "0s",
	}})
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, Duration(v, "ok", time.Minute))
	assert.Equal(t, time.Minute, Duration(v, "bad", time.Minute))
	assert.Equal(t, time.Minute, Duration(v, "zero", time.Minute))
	assert.Equal(t, time.Minute, Duration(v, "missing", time.Minute))
}

func TestWatch_NoFile(t *testing.T) {
	v, err := Open(Source{Name: "none", Dirs: []string{t.TempDir()}})
	require.NoError(t, err)
	assert.False(t, Watch(v, func(*viper.Viper) {}))
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: info\n"), 0o644))

	v, err := Open(Source{Name: "config", Dirs: []string{dir}})
	require.NoError(t, err)

	levels := make(chan string, 4)
	require.True(t, Watch(v, func(v *viper.Viper) { levels <- v.GetString("log.level") }))

	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644))
	deadline := time.After(5 * time.Second)
	for {
		select {
		case lvl := <-levels:
			if lvl == "debug" {
				return
			}
		case <-deadline:
			t.Fatal("config change not observed")
		}
	}
}
