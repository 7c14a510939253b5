package live

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubSequencer hands out ids in strides of ten, standing in for a shared
// counter another instance may also be drawing from.
type stubSequencer struct {
	next int64
	err  error
}

func (s *stubSequencer) NextMessageID(context.Context, uuid.UUID) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.next += 10
	return s.next, nil
}

func TestMessageRing(t *testing.T) {
	ring := newMessageRing(3)
	assert.Empty(t, ring.snapshot())

	for i := int64(1); i <= 5; i++ {
		ring.push(ChatMessage{ID: i})
	}

	got := ring.snapshot()
	require.Len(t, got, 3)
	assert.Equal(t, int64(3), got[0].ID)
	assert.Equal(t, int64(4), got[1].ID)
	assert.Equal(t, int64(5), got[2].ID)
}

func TestSubmitRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     SubmitRequest
		wantErr bool
	}{
		{"plain text", SubmitRequest{Body: "hello"}, false},
		{"empty body", SubmitRequest{Body: ""}, true},
		{"whitespace only", SubmitRequest{Body: "   \n\t "}, true},
		{"at limit", SubmitRequest{Body: strings.Repeat("あ", 1000)}, false},
		{"over limit", SubmitRequest{Body: strings.Repeat("あ", 1001)}, true},
		{"emoji kind", SubmitRequest{Body: "🎉", Kind: KindEmoji}, false},
		{"system kind rejected", SubmitRequest{Body: "announcement", Kind: KindSystem}, true},
		{"unknown kind", SubmitRequest{Body: "x", Kind: ChatKind("gif")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate(1000)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidMessage)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSubmitRequestValidateDefaultsKind(t *testing.T) {
	req := SubmitRequest{Body: "  trimmed  "}
	require.NoError(t, req.Validate(1000))
	assert.Equal(t, "trimmed", req.Body)
	assert.Equal(t, KindText, req.Kind)
}

func TestSubmitMessageAssignsMonotonicIDs(t *testing.T) {
	r := newTestRegistry(Config{})
	sessionID := uuid.New()
	hostID := uuid.New()
	ctx := context.Background()

	mustJoin(t, r, sessionID, hostID, "host", RoleHost)
	viewerSink := mustJoin(t, r, sessionID, uuid.New(), "viewer", RoleViewer)

	for _, body := range []string{"one", "two", "three"} {
		require.NoError(t, r.SubmitMessage(ctx, sessionID, hostID, SubmitRequest{Body: body}))
	}

	history, err := r.Replay(sessionID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	for i, msg := range history {
		assert.Equal(t, int64(i+1), msg.ID)
		assert.Equal(t, hostID, msg.SenderID)
		assert.Equal(t, "host", msg.SenderName)
	}

	assert.Len(t, viewerSink.byName("new_message"), 3)
}

func TestSubmitMessageUsesSharedSequencer(t *testing.T) {
	r := newTestRegistry(Config{})
	r.SetSequencer(&stubSequencer{})
	sessionID := uuid.New()
	hostID := uuid.New()
	ctx := context.Background()

	mustJoin(t, r, sessionID, hostID, "host", RoleHost)

	require.NoError(t, r.SubmitMessage(ctx, sessionID, hostID, SubmitRequest{Body: "one"}))
	require.NoError(t, r.SubmitMessage(ctx, sessionID, hostID, SubmitRequest{Body: "two"}))

	history, err := r.Replay(sessionID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, int64(10), history[0].ID)
	assert.Equal(t, int64(20), history[1].ID)
}

func TestSubmitMessageSequencerFailure(t *testing.T) {
	r := newTestRegistry(Config{})
	r.SetSequencer(&stubSequencer{err: errors.New("counter unavailable")})
	sessionID := uuid.New()
	hostID := uuid.New()
	ctx := context.Background()

	hostSink := mustJoin(t, r, sessionID, hostID, "host", RoleHost)

	// Without an id the message cannot be accepted, let alone fanned out.
	err := r.SubmitMessage(ctx, sessionID, hostID, SubmitRequest{Body: "hello"})
	require.Error(t, err)
	assert.Empty(t, hostSink.byName("new_message"))
	history, _ := r.Replay(sessionID)
	assert.Empty(t, history)
}

func TestDeliverRemoteRecordsChatForReplay(t *testing.T) {
	r := newTestRegistry(Config{})
	sessionID := uuid.New()
	hostID := uuid.New()
	ctx := context.Background()

	hostSink := mustJoin(t, r, sessionID, hostID, "host", RoleHost)

	remote := ChatMessage{
		ID:         7,
		SessionID:  sessionID,
		SenderID:   uuid.New(),
		SenderName: "elsewhere",
		Body:       "sent through another instance",
		Kind:       KindText,
		CreatedAt:  time.Now(),
	}
	r.DeliverRemote(sessionID, NewMessage{Message: remote})

	assert.NotNil(t, hostSink.lastByName("new_message"))

	// A late joiner replays the remote message like any local one.
	late := mustJoin(t, r, sessionID, uuid.New(), "late", RoleViewer)
	joined, ok := late.lastByName("session_joined").(SessionJoined)
	require.True(t, ok)
	require.Len(t, joined.RecentMessages, 1)
	assert.Equal(t, int64(7), joined.RecentMessages[0].ID)

	// Local assignment continues past the highest observed id.
	require.NoError(t, r.SubmitMessage(ctx, sessionID, hostID, SubmitRequest{Body: "local"}))
	history, err := r.Replay(sessionID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, int64(8), history[1].ID)
}

func TestSubmitMessageEchoesClientRef(t *testing.T) {
	r := newTestRegistry(Config{})
	sessionID := uuid.New()
	senderID := uuid.New()
	ctx := context.Background()

	mustJoin(t, r, sessionID, uuid.New(), "host", RoleHost)
	senderSink := mustJoin(t, r, sessionID, senderID, "sender", RoleViewer)
	otherSink := mustJoin(t, r, sessionID, uuid.New(), "other", RoleViewer)

	require.NoError(t, r.SubmitMessage(ctx, sessionID, senderID, SubmitRequest{Body: "hi", ClientRef: "ref-42"}))

	mine, ok := senderSink.lastByName("new_message").(NewMessage)
	require.True(t, ok)
	assert.Equal(t, "ref-42", mine.ClientRef)

	theirs, ok := otherSink.lastByName("new_message").(NewMessage)
	require.True(t, ok)
	assert.Empty(t, theirs.ClientRef)
	assert.Equal(t, mine.Message.ID, theirs.Message.ID)
}

func TestSubmitMessageRequiresMembership(t *testing.T) {
	r := newTestRegistry(Config{})
	sessionID := uuid.New()

	mustJoin(t, r, sessionID, uuid.New(), "host", RoleHost)

	err := r.SubmitMessage(context.Background(), sessionID, uuid.New(), SubmitRequest{Body: "hi"})
	assert.ErrorIs(t, err, ErrNotParticipant)

	err = r.SubmitMessage(context.Background(), uuid.New(), uuid.New(), SubmitRequest{Body: "hi"})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestReplayForLateJoiner(t *testing.T) {
	r := newTestRegistry(Config{HistorySize: 2})
	sessionID := uuid.New()
	hostID := uuid.New()
	ctx := context.Background()

	mustJoin(t, r, sessionID, hostID, "host", RoleHost)
	for _, body := range []string{"one", "two", "three"} {
		require.NoError(t, r.SubmitMessage(ctx, sessionID, hostID, SubmitRequest{Body: body}))
	}

	late := mustJoin(t, r, sessionID, uuid.New(), "late", RoleViewer)
	joined, ok := late.lastByName("session_joined").(SessionJoined)
	require.True(t, ok)
	require.Len(t, joined.RecentMessages, 2)
	assert.Equal(t, "two", joined.RecentMessages[0].Body)
	assert.Equal(t, "three", joined.RecentMessages[1].Body)
}

func TestTyping(t *testing.T) {
	r := newTestRegistry(Config{})
	sessionID := uuid.New()
	typistID := uuid.New()

	typistSink := mustJoin(t, r, sessionID, typistID, "typist", RoleViewer)
	otherSink := mustJoin(t, r, sessionID, uuid.New(), "other", RoleViewer)

	require.NoError(t, r.Typing(sessionID, typistID, true))

	ev, ok := otherSink.lastByName("user_typing").(UserTyping)
	require.True(t, ok)
	assert.Equal(t, typistID, ev.UserID)
	assert.True(t, ev.IsTyping)

	// The typist never hears its own indicator.
	assert.Empty(t, typistSink.byName("user_typing"))

	assert.ErrorIs(t, r.Typing(sessionID, uuid.New(), true), ErrNotParticipant)
}
