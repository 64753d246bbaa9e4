// Command mailcheck polls IMAP mailboxes for recent subjects per folder and
// serves the results over a JSON API.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

const usage = `Usage: mailcheck <command> [flags]

Commands:
  serve                  start the HTTP API
  poll <id|address>      poll one account (--all polls every account)
  add <address>          add an account; the app password is read from stdin
  list                   list accounts
  delete <id|address>    delete an account
  import <file>          import address:secret[:label] lines
  config init            write the current configuration to the config file

Run "mailcheck <command> --help" for the flags of a command.
`

type command func(ctx context.Context, args []string) error

var commands = map[string]command{
	"serve":  runServe,
	"poll":   runPoll,
	"add":    runAdd,
	"list":   runList,
	"delete": runDelete,
	"import": runImport,
	"config": runConfig,
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "loading .env: %v\n", err)
		os.Exit(1)
	}

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	name := os.Args[1]
	if name == "-h" || name == "--help" || name == "help" {
		fmt.Fprint(os.Stdout, usage)
		return
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", name, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd(ctx, os.Args[2:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "mailcheck %s: %v\n", name, err)
		stop()
		os.Exit(1)
	}
}
