package mailbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/nhle/mailcheck/internal/model"
)

// folderMap flattens a result into the folders it holds. A zero result
// yields an empty map.
func folderMap(r model.PollResult) map[string][]string {
	m := map[string][]string{}
	for _, name := range model.LogicalFolders {
		if subjects := r.Subjects(name); subjects != nil {
			m[name] = subjects
		}
	}
	return m
}

type fakeFolder struct {
	ids       []uint32
	subjects  map[uint32]string
	selectErr error
	searchErr error
	fetchErr  error
}

// fakeSession is an in-memory Session keyed by remote folder path.
type fakeSession struct {
	folders  map[string]*fakeFolder
	selected *fakeFolder

	calls     []string
	since     []time.Time
	fetched   [][]uint32
	loggedOut bool
	logoutErr error
	logoutCtx context.Context

	// breakOn makes selecting that path time out and kill the session.
	breakOn string
	dead    bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{folders: map[string]*fakeFolder{}}
}

// addFolder registers a folder holding subjects with ids 1..n.
func (s *fakeSession) addFolder(path string, subjects ...string) *fakeFolder {
	f := &fakeFolder{subjects: map[uint32]string{}}
	for i, subj := range subjects {
		id := uint32(i + 1)
		f.ids = append(f.ids, id)
		f.subjects[id] = subj
	}
	s.folders[path] = f
	return f
}

func (s *fakeSession) Select(ctx context.Context, path string) error {
	s.calls = append(s.calls, "select "+path)
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.dead {
		return errors.New("use of closed network connection")
	}
	if path == s.breakOn {
		s.dead = true
		return fmt.Errorf("selecting: %w", os.ErrDeadlineExceeded)
	}
	f, ok := s.folders[path]
	if !ok {
		s.selected = nil
		return fmt.Errorf("NO [NONEXISTENT] unknown mailbox %s", path)
	}
	if f.selectErr != nil {
		return f.selectErr
	}
	s.selected = f
	return nil
}

func (s *fakeSession) Search(ctx context.Context, since time.Time) ([]uint32, error) {
	s.since = append(s.since, since)
	if s.selected == nil {
		return nil, errors.New("BAD no mailbox selected")
	}
	if s.selected.searchErr != nil {
		return nil, s.selected.searchErr
	}
	return append([]uint32(nil), s.selected.ids...), nil
}

func (s *fakeSession) FetchSubjects(ctx context.Context, ids []uint32) (map[uint32][]byte, error) {
	s.fetched = append(s.fetched, append([]uint32(nil), ids...))
	if s.selected.fetchErr != nil {
		return nil, s.selected.fetchErr
	}
	out := map[uint32][]byte{}
	for _, id := range ids {
		subj, ok := s.selected.subjects[id]
		if !ok {
			continue
		}
		out[id] = []byte("Subject: " + subj + "\r\n\r\n")
	}
	return out, nil
}

func (s *fakeSession) Alive() bool { return !s.dead }

func (s *fakeSession) Logout(ctx context.Context) error {
	s.calls = append(s.calls, "logout")
	s.loggedOut = true
	s.logoutCtx = ctx
	return s.logoutErr
}

// fakeDialer accepts only the configured secret.
// redials, if set, are handed out in order after the first Dial.
type fakeDialer struct {
	session    *fakeSession
	redials    []*fakeSession
	redialErr  error
	secret     string
	connectErr error
	dials      int
}

func (d *fakeDialer) Dial(ctx context.Context, address, secret string) (Session, error) {
	d.dials++
	if d.connectErr != nil {
		return nil, &ConnectError{Addr: "imap.example.com:993", Err: d.connectErr}
	}
	if secret != d.secret {
		return nil, &AuthError{Address: address, Err: errors.New("NO [AUTHENTICATIONFAILED] Invalid credentials")}
	}
	if d.dials > 1 {
		if d.redialErr != nil {
			return nil, &ConnectError{Addr: "imap.example.com:993", Err: d.redialErr}
		}
		if len(d.redials) > 0 {
			next := d.redials[0]
			d.redials = d.redials[1:]
			return next, nil
		}
	}
	return d.session, nil
}
