package catalog

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/nhle/mailcheck/internal/store"
)

// Entry is one parsed line of an import file.
type Entry struct {
	Line    int
	Address string
	Secret  string
	Label   string
}

// LineError records why one import line was not added.
type LineError struct {
	Line    int    `json:"line"`
	Address string `json:"address"`
	Error   string `json:"error"`
}

// ImportReport summarises a bulk import.
type ImportReport struct {
	Added   int         `json:"added"`
	Skipped int         `json:"skipped"`
	Failed  []LineError `json:"failed,omitempty"`
}

// ParseImport reads lines of the form address:secret[:label]. Blank lines
// and lines without a colon are ignored.
func ParseImport(r io.Reader) ([]Entry, error) {
	var entries []Entry

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.Contains(line, ":") {
			continue
		}

		parts := strings.SplitN(line, ":", 3)
		e := Entry{
			Line:    lineNo,
			Address: strings.TrimSpace(parts[0]),
			Secret:  strings.TrimSpace(parts[1]),
		}
		if len(parts) > 2 {
			e.Label = strings.TrimSpace(parts[2])
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading import: %w", err)
	}

	return entries, nil
}

// ImportEntries adds every entry. Addresses already in the catalog are
// skipped; any other failure is recorded against its line and the import
// carries on. progress, if set, is called after each entry.
func (c *Catalog) ImportEntries(
	ctx context.Context,
	entries []Entry,
	progress func(Entry),
) (ImportReport, error) {
	var report ImportReport

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		_, err := c.Add(ctx, e.Address, e.Secret, e.Label)
		switch {
		case err == nil:
			report.Added++
		case errors.Is(err, store.ErrDuplicateAddress):
			report.Skipped++
		default:
			c.log.Warn().Err(err).Int("line", e.Line).Str("address", e.Address).Msg("Import line failed")
			report.Failed = append(report.Failed, LineError{
				Line:    e.Line,
				Address: e.Address,
				Error:   err.Error(),
			})
		}

		if progress != nil {
			progress(e)
		}
	}

	c.log.Info().
		Int("added", report.Added).
		Int("skipped", report.Skipped).
		Int("failed", len(report.Failed)).
		Msg("Import finished")
	return report, nil
}

// Import parses r and adds its entries.
func (c *Catalog) Import(ctx context.Context, r io.Reader) (ImportReport, error) {
	entries, err := ParseImport(r)
	if err != nil {
		return ImportReport{}, err
	}
	return c.ImportEntries(ctx, entries, nil)
}

// ImportFile imports the file at path. A missing file imports nothing.
func (c *Catalog) ImportFile(ctx context.Context, path string) (ImportReport, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ImportReport{}, nil
		}
		return ImportReport{}, fmt.Errorf("opening import file %s: %w", path, err)
	}
	defer f.Close()

	return c.Import(ctx, f)
}
