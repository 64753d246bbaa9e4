package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/nhle/mailcheck/internal/catalog"
	"github.com/nhle/mailcheck/internal/credential"
	"github.com/nhle/mailcheck/internal/logging"
	"github.com/nhle/mailcheck/internal/mailbox"
	"github.com/nhle/mailcheck/internal/model"
	"github.com/nhle/mailcheck/internal/store"
	"github.com/nhle/mailcheck/internal/sweep"
)

// app holds the wired components shared by the commands.
type app struct {
	cfg     *model.AppConfig
	log     zerolog.Logger
	store   *store.SQLiteStore
	catalog *catalog.Catalog
	poller  *mailbox.Poller
}

// commonFlags registers the flags every command accepts.
func commonFlags(fs *pflag.FlagSet) *string {
	configPath := fs.String("config", model.DefaultConfigPath(), "path to the configuration file")
	fs.String("db", "", "path to the account database")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	fs.String("log-format", "", "log format (console, json)")
	return configPath
}

// pollFlags registers the flags of commands that talk to the mail server.
func pollFlags(fs *pflag.FlagSet) {
	fs.String("host", "", "IMAP server host")
	fs.Int("port", 0, "IMAP server port")
	fs.Int("lookback", 0, "days of mail to search")
	fs.Int("limit", 0, "subjects kept per folder")
}

// newApp loads configuration and opens the database and the vault. Only
// flags the user actually set override the configuration.
func newApp(configPath string, fs *pflag.FlagSet) (*app, error) {
	cfg, err := model.LoadConfig(configPath, changedFlags(fs))
	if err != nil {
		return nil, err
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.DBPath), 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	s, err := store.NewSQLiteStore(cfg.Storage.DBPath)
	if err != nil {
		return nil, err
	}

	vault, err := credential.Open(credential.Options{
		Backends:     cfg.Keyring.Backends,
		FileDir:      cfg.Keyring.FileDir,
		FilePassword: cfg.Keyring.FilePassword,
	})
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	dialer := mailbox.NewIMAPDialer(cfg.IMAP, log)
	return &app{
		cfg:     cfg,
		log:     log,
		store:   s,
		catalog: catalog.New(s, vault, log),
		poller:  mailbox.NewPoller(dialer, cfg.IMAP.Folders.Folders(), log),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func (a *app) pollOptions() mailbox.Options {
	return mailbox.Options{
		LookbackDays: a.cfg.Poll.LookbackDays,
		Limit:        a.cfg.Poll.Limit,
	}
}

func (a *app) runner(progress func(sweep.AccountResult)) *sweep.Runner {
	return sweep.NewRunner(a.poller, a.catalog, sweep.Options{
		Concurrency:    a.cfg.Sweep.Concurrency,
		AccountTimeout: a.cfg.Sweep.AccountTimeout,
		Poll:           a.pollOptions(),
		Progress:       progress,
	}, a.log)
}

// importStartupFile loads the bulk import file, if any.
func (a *app) importStartupFile(ctx context.Context) {
	if a.cfg.Storage.ImportFile == "" {
		return
	}
	report, err := a.catalog.ImportFile(ctx, a.cfg.Storage.ImportFile)
	if err != nil {
		a.log.Warn().Err(err).Str("path", a.cfg.Storage.ImportFile).Msg("Startup import failed")
		return
	}
	if report.Added > 0 {
		a.log.Info().Int("added", report.Added).Str("path", a.cfg.Storage.ImportFile).Msg("Imported accounts")
	}
}

// changedFlags returns a flag set holding only the flags set on the
// command line, so unset flags do not mask the file or environment.
func changedFlags(fs *pflag.FlagSet) *pflag.FlagSet {
	out := pflag.NewFlagSet(fs.Name(), pflag.ContinueOnError)
	fs.Visit(func(f *pflag.Flag) {
		out.AddFlag(f)
	})
	return out
}
