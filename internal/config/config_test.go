package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	require.NoError(t, Setup(v, "", filepath.Join(t.TempDir(), "missing.env")))
	c, err := Load(v)
	require.NoError(t, err)

	require.Equal(t, 10*time.Second, c.ServiceTimeout)
	require.Equal(t, "127.0.0.1:3000", c.Listen)
	require.Equal(t, 150, c.HistoryLimit)
	require.Equal(t, 10, c.SearchLimit)
	require.Equal(t, 250*time.Millisecond, c.SearchDebounce)
	require.Equal(t, time.Local, c.Location)
	require.NotEmpty(t, c.SessionPath)
	require.Error(t, c.RequireService())
}

func TestEnvironment(t *testing.T) {
	t.Setenv("WACHAT_SERVICE_URL", "https://demo.example.co")
	t.Setenv("WACHAT_SERVICE_KEY", "anon")
	t.Setenv("WACHAT_HISTORY_LIMIT", "40")
	t.Setenv("WACHAT_SEARCH_DEBOUNCE", "1s")
	t.Setenv("WACHAT_TIMEZONE", "UTC")

	v := viper.New()
	require.NoError(t, Setup(v, "", ""))
	c, err := Load(v)
	require.NoError(t, err)

	require.Equal(t, "https://demo.example.co", c.ServiceURL)
	require.Equal(t, "anon", c.ServiceKey)
	require.Equal(t, 40, c.HistoryLimit)
	require.Equal(t, time.Second, c.SearchDebounce)
	require.Equal(t, "UTC", c.Location.String())
	require.NoError(t, c.RequireService())
}

func TestEnvFileAndConfigFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("WACHAT_SERVICE_KEY=from-dotenv\n"), 0600))
	t.Cleanup(func() { os.Unsetenv("WACHAT_SERVICE_KEY") })

	cfgFile := filepath.Join(dir, "wachat.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("service:\n  url: https://file.example.co\nsearch:\n  limit: 3\n"), 0600))

	v := viper.New()
	require.NoError(t, Setup(v, cfgFile, envFile))
	c, err := Load(v)
	require.NoError(t, err)

	require.Equal(t, "from-dotenv", c.ServiceKey)
	require.Equal(t, "https://file.example.co", c.ServiceURL)
	require.Equal(t, 3, c.SearchLimit)
}

func TestLoadRejects(t *testing.T) {
	v := viper.New()
	require.NoError(t, Setup(v, "", ""))
	v.Set(KeyTimezone, "Mars/Olympus")
	_, err := Load(v)
	require.Error(t, err)

	v = viper.New()
	require.NoError(t, Setup(v, "", ""))
	v.Set(KeySearchLimit, 0)
	_, err = Load(v)
	require.Error(t, err)
}
