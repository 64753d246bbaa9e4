package mailbox

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/mailcheck/internal/model"
)

// Fetcher reads the recent subjects of one folder at a time.
type Fetcher struct {
	log zerolog.Logger
	now func() time.Time
}

// NewFetcher creates a Fetcher that logs folder failures to log.
func NewFetcher(log zerolog.Logger) *Fetcher {
	return &Fetcher{log: log, now: time.Now}
}

// FetchFolder returns the decoded subjects of the most recent messages in
// the folder at path that arrived within the lookback window, oldest of
// them first. Any failure is contained: the folder then yields the single
// entry model.ErrorMarker.
func (f *Fetcher) FetchFolder(
	ctx context.Context,
	sess Session,
	path string,
	opts Options,
) []string {
	subjects, err := f.fetch(ctx, sess, path, opts.withDefaults())
	if err != nil {
		f.log.Warn().Err(err).Str("path", path).Msg("Folder fetch failed")
		return []string{model.ErrorMarker}
	}
	return subjects
}

func (f *Fetcher) fetch(
	ctx context.Context,
	sess Session,
	path string,
	opts Options,
) ([]string, error) {
	if err := sess.Select(ctx, path); err != nil {
		return nil, fmt.Errorf("selecting %s: %w", path, err)
	}

	since := sinceDate(f.now(), opts.LookbackDays)
	ids, err := sess.Search(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("searching %s since %s: %w", path, since.Format("02-Jan-2006"), err)
	}

	subjects := []string{}
	if len(ids) == 0 {
		return subjects, nil
	}

	// Server order is taken as arrival order.
	if len(ids) > opts.Limit {
		ids = ids[len(ids)-opts.Limit:]
	}

	headers, err := sess.FetchSubjects(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("fetching subjects in %s: %w", path, err)
	}

	for _, id := range ids {
		raw, ok := headers[id]
		if !ok {
			continue
		}
		subject, err := SubjectFromHeader(raw)
		if err != nil {
			return nil, fmt.Errorf("message %d in %s: %w", id, path, err)
		}
		subjects = append(subjects, subject)
	}

	f.log.Debug().Str("path", path).Int("matched", len(ids)).Int("returned", len(subjects)).Msg("Folder fetched")
	return subjects, nil
}

// sinceDate returns the start of the day lookbackDays before now. IMAP
// date search has day granularity.
func sinceDate(now time.Time, lookbackDays int) time.Time {
	d := now.AddDate(0, 0, -lookbackDays)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
}
