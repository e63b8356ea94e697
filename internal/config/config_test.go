package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	// Keep knolrep.yaml and .env from the working tree out of the test.
	t.Chdir(t.TempDir())
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newFlags(t))
	require.NoError(t, err)
	assert.Equal(t, "knolrep.db", cfg.DB)
	assert.Equal(t, "default", cfg.Learner)
	assert.Equal(t, "localhost:8080", cfg.Addr)
	assert.Equal(t, 4, cfg.SyncConcurrency)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestLoadPrecedence(t *testing.T) {
	fs := newFlags(t, "--learner", "from-flag")

	yml := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(yml, []byte("db: from-file.db\nlearner: from-file\nrepos-dir: file-repos\n"), 0o644))
	require.NoError(t, fs.Set("config", yml))

	t.Setenv("KNOLREP_REPOS_DIR", "env-repos")
	t.Setenv("KNOLREP_LOG_FORMAT", "json")

	cfg, err := Load(fs)
	require.NoError(t, err)
	assert.Equal(t, "from-file.db", cfg.DB, "file beats flag defaults")
	assert.Equal(t, "env-repos", cfg.ReposDir, "env beats file")
	assert.Equal(t, "from-flag", cfg.Learner, "explicit flag beats file")
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadDotEnv(t *testing.T) {
	fs := newFlags(t)
	require.NoError(t, os.WriteFile(".env", []byte("KNOLREP_TIMEZONE=Europe/Dublin\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("KNOLREP_TIMEZONE") })

	cfg, err := Load(fs)
	require.NoError(t, err)
	assert.Equal(t, "Europe/Dublin", cfg.Timezone)
}

func TestLoadValidation(t *testing.T) {
	testCases := []struct {
		name  string
		args  []string
		field string
	}{
		{"bad log level", []string{"--log-level", "loud"}, "LogLevel"},
		{"bad address", []string{"--addr", "nowhere"}, "Addr"},
		{"bad time zone", []string{"--timezone", "Mars/Olympus"}, "Timezone"},
		{"too much concurrency", []string{"--sync-concurrency", "64"}, "SyncConcurrency"},
		{"empty learner", []string{"--learner", ""}, "Learner"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(newFlags(t, tc.args...))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.field)
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(newFlags(t, "--config", "does-not-exist.yaml"))
	require.Error(t, err)
}
