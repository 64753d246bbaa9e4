package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/pflag"

	"github.com/nhle/mailcheck/internal/catalog"
	"github.com/nhle/mailcheck/internal/model"
	"github.com/nhle/mailcheck/internal/server"
	"github.com/nhle/mailcheck/internal/sweep"
)

// errPollFailed is returned when at least one polled account failed, so
// the process exits non-zero.
var errPollFailed = errors.New("one or more accounts could not be polled")

func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SortFlags = false
	return fs
}

func runServe(ctx context.Context, args []string) error {
	fs := newFlagSet("serve")
	configPath := commonFlags(fs)
	pollFlags(fs)
	fs.String("addr", "", "listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(*configPath, fs)
	if err != nil {
		return err
	}
	defer a.Close()

	a.importStartupFile(ctx)

	srv := server.New(a.catalog, a.runner(nil), a.cfg.Admin.Password, a.log)
	if a.cfg.Admin.Password == "admin" {
		a.log.Warn().Msg("Using the default admin password; set MAILCHECK_ADMIN_PASSWORD")
	}
	return srv.ListenAndServe(ctx, a.cfg.HTTP.Addr)
}

func runPoll(ctx context.Context, args []string) error {
	fs := newFlagSet("poll")
	configPath := commonFlags(fs)
	pollFlags(fs)
	all := fs.Bool("all", false, "poll every account")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *all == (fs.NArg() == 1) {
		return errors.New("give exactly one account id or address, or --all")
	}

	a, err := newApp(*configPath, fs)
	if err != nil {
		return err
	}
	defer a.Close()

	if !*all {
		acc, err := a.catalog.Lookup(ctx, fs.Arg(0))
		if err != nil {
			return err
		}
		res := a.runner(nil).Check(ctx, acc)
		if err := printJSON(os.Stdout, res); err != nil {
			return err
		}
		if res.Err != nil {
			return res.Err
		}
		return nil
	}

	accounts, err := a.catalog.List(ctx)
	if err != nil {
		return err
	}

	bar := progressbar.NewOptions(len(accounts),
		progressbar.OptionSetDescription("polling"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionClearOnFinish(),
	)
	results := a.runner(func(sweep.AccountResult) { _ = bar.Add(1) }).Run(ctx, accounts)
	_ = bar.Finish()

	if err := printJSON(os.Stdout, results); err != nil {
		return err
	}
	for _, res := range results {
		if res.Err != nil {
			return errPollFailed
		}
	}
	return nil
}

func runAdd(ctx context.Context, args []string) error {
	fs := newFlagSet("add")
	configPath := commonFlags(fs)
	label := fs.String("label", "", "label shown next to the address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: mailcheck add <address> [--label text] < secret")
	}

	secret, err := readSecret(os.Stdin)
	if err != nil {
		return err
	}

	a, err := newApp(*configPath, fs)
	if err != nil {
		return err
	}
	defer a.Close()

	acc, err := a.catalog.Add(ctx, fs.Arg(0), secret, *label)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "added %s (%s)\n", acc.Address, acc.ID)
	return nil
}

func runList(ctx context.Context, args []string) error {
	fs := newFlagSet("list")
	configPath := commonFlags(fs)
	asJSON := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(*configPath, fs)
	if err != nil {
		return err
	}
	defer a.Close()

	accounts, err := a.catalog.List(ctx)
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(os.Stdout, accounts)
	}
	return printAccounts(os.Stdout, accounts)
}

func runDelete(ctx context.Context, args []string) error {
	fs := newFlagSet("delete")
	configPath := commonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: mailcheck delete <id|address>")
	}

	a, err := newApp(*configPath, fs)
	if err != nil {
		return err
	}
	defer a.Close()

	acc, err := a.catalog.Lookup(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	if err := a.catalog.Delete(ctx, acc.ID); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "deleted %s\n", acc.Address)
	return nil
}

func runImport(ctx context.Context, args []string) error {
	fs := newFlagSet("import")
	configPath := commonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: mailcheck import <file>")
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		return err
	}
	defer f.Close()

	entries, err := catalog.ParseImport(f)
	if err != nil {
		return err
	}

	a, err := newApp(*configPath, fs)
	if err != nil {
		return err
	}
	defer a.Close()

	bar := progressbar.NewOptions(len(entries),
		progressbar.OptionSetDescription("importing"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionClearOnFinish(),
	)
	report, err := a.catalog.ImportEntries(ctx, entries, func(catalog.Entry) { _ = bar.Add(1) })
	_ = bar.Finish()
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "added %d, skipped %d, failed %d\n", report.Added, report.Skipped, len(report.Failed))
	for _, le := range report.Failed {
		fmt.Fprintf(os.Stdout, "  line %d (%s): %s\n", le.Line, le.Address, le.Error)
	}
	return nil
}

func runConfig(_ context.Context, args []string) error {
	if len(args) == 0 || args[0] != "init" {
		return errors.New("usage: mailcheck config init [--config path] [--force]")
	}

	fs := newFlagSet("config init")
	configPath := commonFlags(fs)
	pollFlags(fs)
	fs.String("addr", "", "listen address")
	force := fs.Bool("force", false, "overwrite an existing file")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	if _, err := os.Stat(*configPath); err == nil && !*force {
		return fmt.Errorf("%s already exists; use --force to overwrite", *configPath)
	}

	cfg, err := model.LoadConfig(*configPath, changedFlags(fs))
	if err != nil {
		return err
	}
	if err := model.SaveConfig(*configPath, cfg); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "wrote %s\n", *configPath)
	return nil
}

// readSecret reads the first line of r.
func readSecret(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading secret: %w", err)
	}
	secret := strings.TrimSpace(line)
	if secret == "" {
		return "", errors.New("no app password on stdin")
	}
	return secret, nil
}

func printAccounts(w io.Writer, accounts []model.Account) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tADDRESS\tLABEL\tADDED")
	for _, a := range accounts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", a.ID, a.Address, a.Label, a.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
