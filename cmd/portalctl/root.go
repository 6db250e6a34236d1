package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Spok95/classtrack-portal/internal/apiclient"
	"github.com/Spok95/classtrack-portal/internal/apperr"
	"github.com/Spok95/classtrack-portal/internal/logging"
	"github.com/Spok95/classtrack-portal/internal/models"
	"github.com/Spok95/classtrack-portal/internal/session"
)

type settings struct {
	APIURL     string        `mapstructure:"api_url"`
	StateFile  string        `mapstructure:"state_file"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Retries    int           `mapstructure:"retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	LogLevel   string        `mapstructure:"log_level"`
}

func defaultStateFile() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "portalctl", "state.db")
	}
	return ".portalctl.db"
}

func loadSettings(v *viper.Viper) (settings, error) {
	v.SetDefault("api_url", "http://localhost:8080")
	v.SetDefault("state_file", defaultStateFile())
	v.SetDefault("timeout", 15*time.Second)
	v.SetDefault("retries", 3)
	v.SetDefault("retry_delay", 500*time.Millisecond)
	v.SetDefault("log_level", "warn")

	v.SetEnvPrefix("PORTAL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("portalctl")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(dir, "portalctl"))
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return settings{}, err
		}
	}
	var s settings
	if err := v.Unmarshal(&s); err != nil {
		return settings{}, err
	}
	return s, nil
}

// app is what every command works with; built once per invocation.
type app struct {
	cfg     settings
	log     *zap.Logger
	closer  func()
	storage *session.Storage
	store   *session.Store
	client  *apiclient.Client
}

func newApp(cfg settings) (*app, error) {
	lg, err := logging.Init(cfg.LogLevel, "dev", "portalctl")
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.StateFile), 0o700); err != nil {
		return nil, err
	}
	backend, err := session.OpenBolt(cfg.StateFile)
	if err != nil {
		return nil, err
	}
	client := apiclient.New(cfg.APIURL, apiclient.Options{
		Timeout:    cfg.Timeout,
		RetryCount: cfg.Retries,
		RetryDelay: cfg.RetryDelay,
	}, lg.Base)
	storage := session.NewStorage(backend, session.NewBus())
	store := session.NewStore(storage, session.NewResolver(client, lg.Base), lg.Base)

	return &app{
		cfg:     cfg,
		log:     lg.Base,
		closer:  lg.Closer,
		storage: storage,
		store:   store,
		client:  client,
	}, nil
}

func (a *app) Close() {
	a.store.Close()
	a.closer()
}

// authed restores the stored session and returns a client carrying its token.
func (a *app) authed(ctx context.Context) (*apiclient.Client, models.Identity, error) {
	err := a.store.Mount(ctx)
	snap := a.store.Snapshot()
	if snap.Authenticated() {
		return a.client.WithToken(snap.Token), *snap.Identity, nil
	}
	if err == nil {
		err = apperr.AuthExpired("not signed in, run `portalctl login`")
	}
	return nil, models.Identity{}, err
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var a *app

	root := &cobra.Command{
		Use:           "portalctl",
		Short:         "Work with the classtrack portal from a terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadSettings(v)
			if err != nil {
				return err
			}
			a, err = newApp(cfg)
			return err
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a != nil {
				a.Close()
			}
		},
	}
	root.PersistentFlags().String("api-url", "", "portal API base URL")
	root.PersistentFlags().String("state-file", "", "session state file")
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	_ = v.BindPFlag("api_url", root.PersistentFlags().Lookup("api-url"))
	_ = v.BindPFlag("state_file", root.PersistentFlags().Lookup("state-file"))
	_ = v.BindPFlag("log_level", root.PersistentFlags().Lookup("log-level"))

	get := func() *app { return a }
	root.AddCommand(
		loginCmd(get),
		logoutCmd(get),
		whoamiCmd(get),
		openCmd(get),
		watchCmd(get),
		assignmentsCmd(get),
		submitCmd(get),
		unsubmitCmd(get),
		statusCmd(get),
		rosterCmd(get),
		gradeCmd(get),
		engagementCmd(get),
		downloadCmd(get),
		telegramCmd(get),
	)
	return root
}
