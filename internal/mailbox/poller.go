package mailbox

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/mailcheck/internal/model"
)

// logoutTimeout bounds the logout issued after a poll, which runs even
// when the poll's own context has expired.
const logoutTimeout = 10 * time.Second

// Poller reads the recent subjects of every logical folder of a mailbox
// over a single session.
type Poller struct {
	dialer  Dialer
	folders []model.Folder
	fetcher *Fetcher
	log     zerolog.Logger
}

// NewPoller creates a Poller. folders gives the remote path of each
// logical folder, in iteration order; nil selects model.DefaultFolders.
func NewPoller(dialer Dialer, folders []model.Folder, log zerolog.Logger) *Poller {
	if folders == nil {
		folders = model.DefaultFolders()
	}
	return &Poller{
		dialer:  dialer,
		folders: folders,
		fetcher: NewFetcher(log),
		log:     log,
	}
}

// Poll opens one session for address and collects the subjects of every
// logical folder. A connection or authentication failure is returned as
// the only outcome (*ConnectError or *AuthError); folder failures are
// recorded in the result as model.ErrorMarker.
func (p *Poller) Poll(
	ctx context.Context,
	address, secret string,
	opts Options,
) (model.PollResult, error) {
	opts = opts.withDefaults()
	log := p.log.With().Str("address", address).Logger()

	sess, err := p.dialer.Dial(ctx, address, secret)
	if err != nil {
		log.Error().Err(err).Msg("Mailbox session failed")
		return model.PollResult{}, err
	}
	defer func() {
		if sess != nil {
			p.logout(ctx, sess, log)
		}
	}()

	result := model.NewPollResult()
	failed := 0
	for i, folder := range p.folders {
		if sess == nil {
			result.Set(folder.Name, []string{model.ErrorMarker})
			failed++
			continue
		}

		subjects := p.fetcher.FetchFolder(ctx, sess, folder.Path, opts)
		result.Set(folder.Name, subjects)
		if !result.Failed(folder.Name) {
			continue
		}
		failed++

		// A timed-out command takes the connection down with it; later
		// folders get a fresh session instead of inheriting the failure.
		if i < len(p.folders)-1 && !alive(sess) {
			log.Warn().Str("path", folder.Path).Msg("Connection lost, reconnecting")
			p.logout(ctx, sess, log)
			sess, err = p.dialer.Dial(ctx, address, secret)
			if err != nil {
				log.Error().Err(err).Msg("Reconnect failed")
				sess = nil
			}
		}
	}

	log.Info().
		Int("lookback_days", opts.LookbackDays).
		Int("limit", opts.Limit).
		Int("failed_folders", failed).
		Msg("Mailbox polled")

	return result, nil
}

func (p *Poller) logout(ctx context.Context, sess Session, log zerolog.Logger) {
	logoutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), logoutTimeout)
	defer cancel()
	if err := sess.Logout(logoutCtx); err != nil {
		log.Warn().Err(err).Msg("Logout failed")
	}
}

// alive reports whether sess can still run commands. Sessions that cannot
// tell are assumed usable.
func alive(sess Session) bool {
	if l, ok := sess.(interface{ Alive() bool }); ok {
		return l.Alive()
	}
	return true
}
