package mailbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailcheck/internal/model"
)

func gmailSession() *fakeSession {
	sess := newFakeSession()
	sess.addFolder("INBOX")
	sess.addFolder("[Gmail]/Spam")
	sess.addFolder("[Gmail]/Promotions")
	sess.addFolder("[Gmail]/Updates")
	return sess
}

func TestPollOneFolderFails(t *testing.T) {
	sess := newFakeSession()
	sess.addFolder("INBOX", "Welcome")
	sess.addFolder("[Gmail]/Promotions")
	sess.addFolder("[Gmail]/Updates", "Sale now")

	p := NewPoller(&fakeDialer{session: sess, secret: "validpass"}, nil, zerolog.Nop())
	result, err := p.Poll(context.Background(), "user@example.com", "validpass", Options{})
	require.NoError(t, err)

	assert.Equal(t, map[string][]string{
		model.FolderInbox:      {"Welcome"},
		model.FolderSpam:       {model.ErrorMarker},
		model.FolderPromotions: {},
		model.FolderUpdates:    {"Sale now"},
	}, folderMap(result))
	assert.True(t, result.Failed(model.FolderSpam))
	assert.False(t, result.Failed(model.FolderPromotions))
	assert.True(t, sess.loggedOut)
}

func TestPollAlwaysHasFourFolders(t *testing.T) {
	tests := []struct {
		name string
		sess *fakeSession
	}{
		{name: "all empty", sess: gmailSession()},
		{name: "all missing", sess: newFakeSession()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPoller(&fakeDialer{session: tt.sess, secret: "pw"}, nil, zerolog.Nop())
			result, err := p.Poll(context.Background(), "user@example.com", "pw", Options{})
			require.NoError(t, err)

			m := folderMap(result)
			assert.Len(t, m, 4)
			for _, name := range model.LogicalFolders {
				assert.Contains(t, m, name)
			}
			assert.True(t, tt.sess.loggedOut, "session must be closed")
		})
	}
}

func TestPollEveryFolderFailingStillLogsOut(t *testing.T) {
	sess := newFakeSession()
	p := NewPoller(&fakeDialer{session: sess, secret: "pw"}, nil, zerolog.Nop())

	result, err := p.Poll(context.Background(), "user@example.com", "pw", Options{})
	require.NoError(t, err)

	for _, name := range model.LogicalFolders {
		assert.Equal(t, []string{model.ErrorMarker}, result.Subjects(name))
	}
	assert.Equal(t, "logout", sess.calls[len(sess.calls)-1])
}

func TestPollFixedFolderOrder(t *testing.T) {
	sess := gmailSession()
	p := NewPoller(&fakeDialer{session: sess, secret: "pw"}, nil, zerolog.Nop())

	_, err := p.Poll(context.Background(), "user@example.com", "pw", Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"select INBOX",
		"select [Gmail]/Spam",
		"select [Gmail]/Promotions",
		"select [Gmail]/Updates",
		"logout",
	}, sess.calls)
}

func TestPollCustomFolderPaths(t *testing.T) {
	sess := newFakeSession()
	sess.addFolder("INBOX", "hi")
	sess.addFolder("Junk", "spam!")
	sess.addFolder("Promo")
	sess.addFolder("Notices")

	folders := model.FolderPaths{Spam: "Junk", Promotions: "Promo", Updates: "Notices"}.Folders()
	p := NewPoller(&fakeDialer{session: sess, secret: "pw"}, folders, zerolog.Nop())

	result, err := p.Poll(context.Background(), "user@example.com", "pw", Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"spam!"}, result.Subjects(model.FolderSpam))
	assert.Equal(t, []string{"hi"}, result.Subjects(model.FolderInbox))
}

func TestPollAuthFailure(t *testing.T) {
	sess := gmailSession()
	d := &fakeDialer{session: sess, secret: "validpass"}
	p := NewPoller(d, nil, zerolog.Nop())

	result, err := p.Poll(context.Background(), "user@example.com", "wrongpass", Options{})
	require.Error(t, err)
	assert.True(t, IsAuthError(err))
	assert.False(t, IsConnectError(err))
	assert.Nil(t, folderMap(result)["INBOX"], "no folder mapping on a session failure")
	assert.Empty(t, folderMap(result))
	assert.Empty(t, sess.calls)
	assert.Equal(t, 1, d.dials)
}

func TestPollConnectFailure(t *testing.T) {
	d := &fakeDialer{connectErr: errors.New("connection refused")}
	p := NewPoller(d, nil, zerolog.Nop())

	result, err := p.Poll(context.Background(), "user@example.com", "validpass", Options{})
	require.Error(t, err)
	assert.True(t, IsConnectError(err))
	assert.Contains(t, err.Error(), "connection refused")
	assert.Empty(t, folderMap(result))
}

func TestPollEndToEndLimit(t *testing.T) {
	sess := gmailSession()
	sess.addFolder("INBOX", "s1", "s2", "s3", "s4", "s5", "s6", "s7")

	p := NewPoller(&fakeDialer{session: sess, secret: "validpass"}, nil, zerolog.Nop())
	result, err := p.Poll(context.Background(), "user@example.com", "validpass", Options{LookbackDays: 1, Limit: 5})
	require.NoError(t, err)

	assert.Equal(t, []string{"s3", "s4", "s5", "s6", "s7"}, result.Subjects(model.FolderInbox))
	assert.Empty(t, result.Subjects(model.FolderSpam))
}

func TestPollLogoutSurvivesCancelledContext(t *testing.T) {
	sess := gmailSession()
	p := NewPoller(&fakeDialer{session: sess, secret: "pw"}, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := p.Poll(ctx, "user@example.com", "pw", Options{})
	require.NoError(t, err)
	assert.True(t, result.Failed(model.FolderInbox))
	require.True(t, sess.loggedOut)
	assert.NoError(t, sess.logoutCtx.Err())
}

func TestPollLogoutErrorIgnored(t *testing.T) {
	sess := gmailSession()
	sess.addFolder("INBOX", "hello")
	sess.logoutErr = errors.New("BYE")

	p := NewPoller(&fakeDialer{session: sess, secret: "pw"}, nil, zerolog.Nop())
	result, err := p.Poll(context.Background(), "user@example.com", "pw", Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"hello"}, result.Subjects(model.FolderInbox))
}

func TestPollResultJSONOrder(t *testing.T) {
	sess := newFakeSession()
	sess.addFolder("INBOX", "Welcome")
	sess.addFolder("[Gmail]/Promotions")
	sess.addFolder("[Gmail]/Updates", "Sale now")

	p := NewPoller(&fakeDialer{session: sess, secret: "pw"}, nil, zerolog.Nop())
	result, err := p.Poll(context.Background(), "user@example.com", "pw", Options{})
	require.NoError(t, err)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	require.NoError(t, enc.Encode(result))
	assert.Equal(t,
		`{"INBOX":["Welcome"],"SPAM":["<error>"],"PROMOTIONS":[],"UPDATES":["Sale now"]}`+"\n",
		buf.String())
}

func TestPollReconnectsAfterConnectionLoss(t *testing.T) {
	first := gmailSession()
	first.addFolder("INBOX", "Welcome")
	first.breakOn = "[Gmail]/Spam"

	second := gmailSession()
	second.addFolder("[Gmail]/Updates", "Sale now")

	d := &fakeDialer{session: first, secret: "pw", redials: []*fakeSession{second}}
	p := NewPoller(d, nil, zerolog.Nop())

	result, err := p.Poll(context.Background(), "user@example.com", "pw", Options{})
	require.NoError(t, err)

	assert.Equal(t, map[string][]string{
		model.FolderInbox:      {"Welcome"},
		model.FolderSpam:       {model.ErrorMarker},
		model.FolderPromotions: {},
		model.FolderUpdates:    {"Sale now"},
	}, folderMap(result))
	assert.Equal(t, 2, d.dials)
	assert.True(t, first.loggedOut)
	assert.True(t, second.loggedOut)
	assert.Equal(t, []string{"select [Gmail]/Promotions", "select [Gmail]/Updates", "logout"}, second.calls)
}

func TestPollReconnectFailureMarksRemainingFolders(t *testing.T) {
	sess := gmailSession()
	sess.addFolder("INBOX", "Welcome")
	sess.breakOn = "[Gmail]/Spam"

	d := &fakeDialer{session: sess, secret: "pw", redialErr: errors.New("connection refused")}
	p := NewPoller(d, nil, zerolog.Nop())

	result, err := p.Poll(context.Background(), "user@example.com", "pw", Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"Welcome"}, result.Subjects(model.FolderInbox))
	assert.True(t, result.Failed(model.FolderSpam))
	assert.True(t, result.Failed(model.FolderPromotions))
	assert.True(t, result.Failed(model.FolderUpdates))
	assert.Equal(t, 2, d.dials)
	assert.True(t, sess.loggedOut)
}

func TestPollKeepsSessionAfterOrdinaryFolderFailure(t *testing.T) {
	sess := gmailSession()
	delete(sess.folders, "[Gmail]/Spam")

	d := &fakeDialer{session: sess, secret: "pw"}
	p := NewPoller(d, nil, zerolog.Nop())

	_, err := p.Poll(context.Background(), "user@example.com", "pw", Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, d.dials)
}
