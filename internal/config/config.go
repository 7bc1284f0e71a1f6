// Package config resolves settings from flags, the environment, an optional
// config file and a .env file.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment variables: service.url is read from
// WACHAT_SERVICE_URL.
const EnvPrefix = "WACHAT"

const (
	KeyServiceURL     = "service.url"
	KeyServiceKey     = "service.key"
	KeyServiceTimeout = "service.timeout"
	KeyListen         = "listen"
	KeySession        = "session"
	KeyTimezone       = "timezone"
	KeyHistoryLimit   = "history.limit"
	KeySearchLimit    = "search.limit"
	KeySearchDebounce = "search.debounce"
	KeyLogLevel       = "logLevel"
	KeyLog            = "log"
)

type Config struct {
	ServiceURL     string
	ServiceKey     string
	ServiceTimeout time.Duration

	Listen      string
	SessionPath string
	Location    *time.Location

	HistoryLimit   int
	SearchLimit    int
	SearchDebounce time.Duration

	LogLevel uint
	LogPath  string
}

// SetDefaults registers the built-in values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyServiceTimeout, 10*time.Second)
	v.SetDefault(KeyListen, "127.0.0.1:3000")
	v.SetDefault(KeySession, defaultSessionPath())
	v.SetDefault(KeyTimezone, "")
	v.SetDefault(KeyHistoryLimit, 150)
	v.SetDefault(KeySearchLimit, 10)
	v.SetDefault(KeySearchDebounce, 250*time.Millisecond)
	v.SetDefault(KeyLogLevel, 0)
	v.SetDefault(KeyLog, "")
}

func defaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".wachat-session.json"
	}
	return filepath.Join(dir, "wachat", "session.json")
}

// Setup loads envFile into the process environment (existing variables
// win), points v at the WACHAT_ environment and reads configFile when one
// is given. A missing envFile is not an error.
func Setup(v *viper.Viper, configFile, envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(errors.Cause(err)) {
			return errors.Wrapf(err, "load %s", envFile)
		}
	}
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return errors.Wrapf(err, "read config %s", configFile)
		}
		jww.DEBUG.Printf("[config] using %s", v.ConfigFileUsed())
	}
	return nil
}

// Load reads the resolved settings out of v.
func Load(v *viper.Viper) (*Config, error) {
	c := &Config{
		ServiceURL:     strings.TrimSpace(v.GetString(KeyServiceURL)),
		ServiceKey:     strings.TrimSpace(v.GetString(KeyServiceKey)),
		ServiceTimeout: v.GetDuration(KeyServiceTimeout),
		Listen:         v.GetString(KeyListen),
		SessionPath:    v.GetString(KeySession),
		HistoryLimit:   v.GetInt(KeyHistoryLimit),
		SearchLimit:    v.GetInt(KeySearchLimit),
		SearchDebounce: v.GetDuration(KeySearchDebounce),
		LogLevel:       v.GetUint(KeyLogLevel),
		LogPath:        v.GetString(KeyLog),
	}
	if c.HistoryLimit <= 0 {
		return nil, errors.Errorf("%s must be positive, got %d", KeyHistoryLimit, c.HistoryLimit)
	}
	if c.SearchLimit <= 0 {
		return nil, errors.Errorf("%s must be positive, got %d", KeySearchLimit, c.SearchLimit)
	}
	if c.SearchDebounce < 0 {
		return nil, errors.Errorf("%s must not be negative", KeySearchDebounce)
	}

	c.Location = time.Local
	if tz := strings.TrimSpace(v.GetString(KeyTimezone)); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, errors.Wrapf(err, "%s %q", KeyTimezone, tz)
		}
		c.Location = loc
	}
	return c, nil
}

// RequireService fails when the hosted service is not configured.
func (c *Config) RequireService() error {
	if c.ServiceURL == "" {
		return errors.Errorf("%s is not set (flag --url or %s_SERVICE_URL)", KeyServiceURL, EnvPrefix)
	}
	if c.ServiceKey == "" {
		return errors.Errorf("%s is not set (flag --key or %s_SERVICE_KEY)", KeyServiceKey, EnvPrefix)
	}
	return nil
}
