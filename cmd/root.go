package main

import (
	"context"
	"io/ioutil"
	"log"
	"os"
	"time"

	"github.com/pelusa-v/wachat/internal/backend"
	"github.com/pelusa-v/wachat/internal/chat"
	"github.com/pelusa-v/wachat/internal/config"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "wachat",
	Short:         "One-to-one chat on a hosted data service",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(viper.GetViper())
		if err != nil {
			return err
		}
		cfg = c
		return nil
	},
}

var cfg *config.Config

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().UintP("logLevel", "v", 0,
		"Verbose mode for debugging (1 debug, 2 trace)")
	viper.BindPFlag(config.KeyLogLevel, rootCmd.PersistentFlags().Lookup("logLevel"))

	rootCmd.PersistentFlags().StringP("log", "l", "",
		"Path to the log output path (- or empty is stderr)")
	viper.BindPFlag(config.KeyLog, rootCmd.PersistentFlags().Lookup("log"))

	rootCmd.PersistentFlags().StringP("config", "c", "",
		"Config file (yaml, json or toml)")
	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	rootCmd.PersistentFlags().String("env-file", ".env",
		"Environment file loaded before the WACHAT_ variables are read")
	viper.BindPFlag("envFile", rootCmd.PersistentFlags().Lookup("env-file"))

	rootCmd.PersistentFlags().String("url", "", "Hosted service base url")
	viper.BindPFlag(config.KeyServiceURL, rootCmd.PersistentFlags().Lookup("url"))

	rootCmd.PersistentFlags().String("key", "", "Hosted service public api key")
	viper.BindPFlag(config.KeyServiceKey, rootCmd.PersistentFlags().Lookup("key"))

	rootCmd.PersistentFlags().StringP("session", "s", "",
		"File holding the signed-in session")
	viper.BindPFlag(config.KeySession, rootCmd.PersistentFlags().Lookup("session"))

	rootCmd.PersistentFlags().String("tz", "",
		"IANA time zone for timestamps and day labels")
	viper.BindPFlag(config.KeyTimezone, rootCmd.PersistentFlags().Lookup("tz"))
}

// initConfig reads in the .env file, config file and ENV variables if set.
func initConfig() {
	if err := config.Setup(viper.GetViper(), viper.GetString("config"),
		viper.GetString("envFile")); err != nil {
		jww.FATAL.Panicf("%+v", err)
	}
	initLog(viper.GetUint(config.KeyLogLevel), viper.GetString(config.KeyLog))
}

func initLog(threshold uint, logPath string) {
	// command output owns stdout
	jww.SetStdoutOutput(os.Stderr)
	if logPath != "-" && logPath != "" {
		jww.SetStdoutOutput(ioutil.Discard)
		logOutput, err := os.OpenFile(logPath,
			os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			panic(err.Error())
		}
		jww.SetLogOutput(logOutput)
	}

	if threshold > 1 {
		jww.INFO.Printf("log level set to: TRACE")
		jww.SetStdoutThreshold(jww.LevelTrace)
		jww.SetLogThreshold(jww.LevelTrace)
		jww.SetFlags(log.LstdFlags | log.Lmicroseconds)
	} else if threshold == 1 {
		jww.INFO.Printf("log level set to: DEBUG")
		jww.SetStdoutThreshold(jww.LevelDebug)
		jww.SetLogThreshold(jww.LevelDebug)
		jww.SetFlags(log.LstdFlags | log.Lmicroseconds)
	} else {
		jww.SetStdoutThreshold(jww.LevelWarn)
		jww.SetLogThreshold(jww.LevelInfo)
	}
}

func newClient() (*backend.Client, error) {
	if err := cfg.RequireService(); err != nil {
		return nil, err
	}
	return backend.New(backend.Options{
		URL:     cfg.ServiceURL,
		Key:     cfg.ServiceKey,
		Timeout: cfg.ServiceTimeout,
	})
}

func sessionFile() backend.SessionFile {
	return backend.SessionFile{Path: cfg.SessionPath}
}

var errLoggedOut = errors.New("not signed in, run `wachat login` first")

// signedIn returns a client bound to the stored session, refreshing and
// re-saving the session when the access token has expired.
func signedIn(ctx context.Context) (*backend.Client, *backend.Session, error) {
	c, err := newClient()
	if err != nil {
		return nil, nil, err
	}
	f := sessionFile()
	s, err := f.Load()
	if errors.Cause(err) == backend.ErrNoSession {
		return nil, nil, errLoggedOut
	}
	if err != nil {
		return nil, nil, err
	}
	if s.Expired(time.Now()) {
		jww.DEBUG.Printf("[cli] refreshing session of %s", s.User.Email)
		if s.RefreshToken == "" {
			return nil, nil, errLoggedOut
		}
		fresh, err := c.RefreshSession(ctx, s.RefreshToken)
		if err != nil {
			return nil, nil, errors.Wrap(err, "session expired")
		}
		if err := f.Save(fresh); err != nil {
			return nil, nil, err
		}
		s = fresh
	}
	return c.WithSession(s.AccessToken), s, nil
}

func newService(ctx context.Context) (*chat.Service, error) {
	c, s, err := signedIn(ctx)
	if err != nil {
		return nil, err
	}
	me := s.User.ID
	if me == "" {
		claims, err := backend.ParseAccessToken(s.AccessToken)
		if err != nil {
			return nil, err
		}
		me = claims.UserID
	}
	return chat.NewService(c, me,
		chat.WithHistoryLimit(cfg.HistoryLimit),
		chat.WithSearchLimit(cfg.SearchLimit)), nil
}
