package sweep

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/mailcheck/internal/mailbox"
	"github.com/nhle/mailcheck/internal/model"
)

const (
	defaultConcurrency    = 4
	defaultAccountTimeout = 2 * time.Minute
)

// Error kinds reported for a failed account.
const (
	KindAuth    = "auth"
	KindConnect = "connect"
	KindTimeout = "timeout"
	KindOther   = "error"
)

// Poller polls one mailbox. *mailbox.Poller satisfies it.
type Poller interface {
	Poll(ctx context.Context, address, secret string, opts mailbox.Options) (model.PollResult, error)
}

// Resolver returns an account with its secret. *catalog.Catalog satisfies it.
type Resolver interface {
	Get(ctx context.Context, id string) (model.Account, error)
}

// AccountResult is the outcome of polling one account. Exactly one of
// Results and Err is set.
type AccountResult struct {
	ID      string            `json:"id"`
	Address string            `json:"address"`
	Label   string            `json:"label,omitempty"`
	Results *model.PollResult `json:"results,omitempty"`
	Kind    string            `json:"kind,omitempty"`
	Error   string            `json:"error,omitempty"`
	Err     error             `json:"-"`
	Elapsed time.Duration     `json:"-"`
}

// Options configures a Runner.
type Options struct {
	Concurrency    int
	AccountTimeout time.Duration
	Poll           mailbox.Options

	// Progress, if set, is called once per finished account. Calls are
	// serialized.
	Progress func(AccountResult)
}

// Runner polls many accounts at once. Each account gets its own session;
// nothing is shared or cached between polls.
type Runner struct {
	poller   Poller
	resolver Resolver
	opts     Options
	log      zerolog.Logger
}

// NewRunner creates a Runner.
func NewRunner(poller Poller, resolver Resolver, opts Options, log zerolog.Logger) *Runner {
	if opts.Concurrency < 1 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.AccountTimeout <= 0 {
		opts.AccountTimeout = defaultAccountTimeout
	}
	return &Runner{poller: poller, resolver: resolver, opts: opts, log: log}
}

// Run polls every account and returns one result per account, in input
// order. It blocks until all polls finish or ctx is cancelled; accounts
// not started before cancellation are reported with ctx's error.
func (r *Runner) Run(ctx context.Context, accounts []model.Account) []AccountResult {
	results := make([]AccountResult, len(accounts))
	sem := make(chan struct{}, r.opts.Concurrency)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	done := func(i int, res AccountResult) {
		results[i] = res
		if r.opts.Progress != nil {
			mu.Lock()
			r.opts.Progress(res)
			mu.Unlock()
		}
	}

	start := time.Now()
	for i, acc := range accounts {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			done(i, failed(acc, ctx.Err()))
			continue
		}

		wg.Add(1)
		go func(i int, acc model.Account) {
			defer wg.Done()
			defer func() { <-sem }()
			done(i, r.pollOne(ctx, acc))
		}(i, acc)
	}
	wg.Wait()

	failedCount := 0
	for _, res := range results {
		if res.Err != nil {
			failedCount++
		}
	}
	r.log.Info().
		Int("accounts", len(accounts)).
		Int("failed", failedCount).
		Dur("elapsed", time.Since(start)).
		Msg("Sweep finished")

	return results
}

// Check polls a single account under the per-account timeout.
func (r *Runner) Check(ctx context.Context, acc model.Account) AccountResult {
	return r.pollOne(ctx, acc)
}

func (r *Runner) pollOne(ctx context.Context, acc model.Account) AccountResult {
	ctx, cancel := context.WithTimeout(ctx, r.opts.AccountTimeout)
	defer cancel()

	if err := ctx.Err(); err != nil {
		return failed(acc, err)
	}

	start := time.Now()
	if acc.Secret == "" && r.resolver != nil {
		resolved, err := r.resolver.Get(ctx, acc.ID)
		if err != nil {
			return failed(acc, err)
		}
		acc = resolved
	}

	result, err := r.poller.Poll(ctx, acc.Address, acc.Secret, r.opts.Poll)
	if err != nil {
		res := failed(acc, err)
		res.Elapsed = time.Since(start)
		return res
	}

	return AccountResult{
		ID:      acc.ID,
		Address: acc.Address,
		Label:   acc.Label,
		Results: &result,
		Elapsed: time.Since(start),
	}
}

func failed(acc model.Account, err error) AccountResult {
	return AccountResult{
		ID:      acc.ID,
		Address: acc.Address,
		Label:   acc.Label,
		Kind:    Kind(err),
		Error:   err.Error(),
		Err:     err,
	}
}

// Kind classifies a poll error for reporting.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case mailbox.IsAuthError(err):
		return KindAuth
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return KindTimeout
	case mailbox.IsConnectError(err):
		return KindConnect
	default:
		return KindOther
	}
}
