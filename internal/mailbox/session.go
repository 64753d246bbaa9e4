package mailbox

import (
	"context"
	"time"
)

// Default poll window.
const (
	DefaultLookbackDays = 1
	DefaultLimit        = 5
)

// Session is one authenticated connection to a mail server. It is used by
// a single poll and is not safe for concurrent use.
type Session interface {
	// Select opens the folder at path read-only.
	Select(ctx context.Context, path string) error

	// Search returns the identifiers of messages in the selected folder
	// that arrived on or after since, in server order.
	Search(ctx context.Context, since time.Time) ([]uint32, error)

	// FetchSubjects returns the raw Subject header block of each message,
	// keyed by identifier. Messages that vanished are absent.
	FetchSubjects(ctx context.Context, ids []uint32) (map[uint32][]byte, error)

	// Logout ends the session and releases the connection.
	Logout(ctx context.Context) error
}

// Dialer opens authenticated sessions. Dial returns a *ConnectError when
// the server cannot be reached and an *AuthError when the credentials are
// rejected.
type Dialer interface {
	Dial(ctx context.Context, address, secret string) (Session, error)
}

// Options bounds a poll.
type Options struct {
	// LookbackDays is how many days before now messages are searched from.
	LookbackDays int

	// Limit is the maximum number of subjects returned per folder.
	Limit int
}

func (o Options) withDefaults() Options {
	if o.LookbackDays < 1 {
		o.LookbackDays = DefaultLookbackDays
	}
	if o.Limit < 1 {
		o.Limit = DefaultLimit
	}
	return o
}
