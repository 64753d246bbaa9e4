package mailbox

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/rs/zerolog"

	"github.com/nhle/mailcheck/internal/model"
)

// IMAPDialer opens IMAP sessions over implicit TLS.
type IMAPDialer struct {
	host      string
	port      int
	timeout   time.Duration
	retries   int
	backoff   time.Duration
	tlsConfig *tls.Config
	log       zerolog.Logger
}

// NewIMAPDialer creates a dialer for the configured mail server.
func NewIMAPDialer(cfg model.IMAPConfig, log zerolog.Logger) *IMAPDialer {
	timeout := cfg.CommandTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &IMAPDialer{
		host:      cfg.Host,
		port:      cfg.Port,
		timeout:   timeout,
		retries:   cfg.ConnectRetries,
		backoff:   time.Second,
		tlsConfig: &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12},
		log:       log,
	}
}

// Dial connects, waits for the server greeting and logs in. Only the
// connection is retried; a rejected login is returned at once.
func (d *IMAPDialer) Dial(
	ctx context.Context,
	address, secret string,
) (Session, error) {
	addr := net.JoinHostPort(d.host, strconv.Itoa(d.port))

	conn, err := d.connect(ctx, addr)
	if err != nil {
		return nil, &ConnectError{Addr: addr, Err: err}
	}

	s := &imapSession{
		conn:    conn,
		client:  imapclient.New(conn, nil),
		timeout: d.timeout,
	}

	if err := s.run(ctx, s.client.WaitGreeting); err != nil {
		_ = s.client.Close()
		return nil, &ConnectError{Addr: addr, Err: fmt.Errorf("waiting for greeting: %w", err)}
	}

	err = s.run(ctx, func() error {
		return s.client.Login(address, secret).Wait()
	})
	if err != nil {
		_ = s.client.Close()
		var imapErr *imap.Error
		if errors.As(err, &imapErr) {
			return nil, &AuthError{Address: address, Err: err}
		}
		return nil, &ConnectError{Addr: addr, Err: fmt.Errorf("logging in: %w", err)}
	}

	d.log.Debug().Str("addr", addr).Str("address", address).Msg("IMAP session authenticated")
	return s, nil
}

// connect dials addr, retrying with exponential backoff: 1s, 2s, 4s, ...
func (d *IMAPDialer) connect(ctx context.Context, addr string) (net.Conn, error) {
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: d.timeout},
		Config:    d.tlsConfig,
	}

	var lastErr error
	for attempt := 0; attempt <= d.retries; attempt++ {
		if attempt > 0 {
			wait := d.backoff << uint(attempt-1)
			if wait > 30*time.Second {
				wait = 30 * time.Second
			}
			d.log.Warn().Err(lastErr).Str("addr", addr).Int("attempt", attempt).Dur("wait", wait).Msg("Retrying IMAP connection")

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}

	return nil, lastErr
}

// imapSession implements Session on a go-imap v2 client. Every command
// runs under a connection deadline so a stalled server fails the step
// instead of hanging the poll.
type imapSession struct {
	conn    net.Conn
	client  *imapclient.Client
	timeout time.Duration
	broken  bool
}

func (s *imapSession) run(ctx context.Context, cmd func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := s.conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("setting deadline: %w", err)
	}
	defer s.conn.SetDeadline(time.Time{})

	err := cmd()
	if err != nil && isTimeout(err) {
		s.broken = true
	}
	return err
}

// Alive reports whether the connection can still carry commands. A
// command that hit its deadline leaves the client unusable.
func (s *imapSession) Alive() bool {
	if s.broken {
		return false
	}
	select {
	case <-s.client.Closed():
		return false
	default:
		return true
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (s *imapSession) Select(ctx context.Context, path string) error {
	return s.run(ctx, func() error {
		_, err := s.client.Select(path, &imap.SelectOptions{ReadOnly: true}).Wait()
		return err
	})
}

func (s *imapSession) Search(ctx context.Context, since time.Time) ([]uint32, error) {
	var ids []uint32
	err := s.run(ctx, func() error {
		data, err := s.client.UIDSearch(&imap.SearchCriteria{Since: since}, nil).Wait()
		if err != nil {
			return err
		}
		for _, uid := range data.AllUIDs() {
			ids = append(ids, uint32(uid))
		}
		return nil
	})
	return ids, err
}

func (s *imapSession) FetchSubjects(
	ctx context.Context,
	ids []uint32,
) (map[uint32][]byte, error) {
	headers := make(map[uint32][]byte, len(ids))
	if len(ids) == 0 {
		return headers, nil
	}

	uids := make([]imap.UID, len(ids))
	for i, id := range ids {
		uids[i] = imap.UID(id)
	}

	section := &imap.FetchItemBodySection{
		Specifier:    imap.PartSpecifierHeader,
		HeaderFields: []string{"Subject"},
		Peek:         true,
	}
	opts := &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{section},
	}

	err := s.run(ctx, func() error {
		msgs, err := s.client.Fetch(imap.UIDSetNum(uids...), opts).Collect()
		if err != nil {
			return err
		}
		for _, msg := range msgs {
			headers[uint32(msg.UID)] = msg.FindBodySection(section)
		}
		return nil
	})
	return headers, err
}

func (s *imapSession) Logout(ctx context.Context) error {
	defer s.client.Close()
	return s.run(ctx, func() error {
		return s.client.Logout().Wait()
	})
}
