package live

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sdpPayload(t *testing.T, typ webrtc.SDPType) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(webrtc.SessionDescription{Type: typ, SDP: "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\n"})
	require.NoError(t, err)
	return raw
}

func candidatePayload(t *testing.T, candidate string) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(webrtc.ICECandidateInit{Candidate: candidate})
	require.NoError(t, err)
	return raw
}

func TestValidateSignalPayload(t *testing.T) {
	tests := []struct {
		name    string
		kind    SignalKind
		payload json.RawMessage
		wantErr bool
	}{
		{"valid offer", SignalOffer, nil, false},
		{"valid answer", SignalAnswer, nil, false},
		{"offer with answer sdp", SignalOffer, nil, true},
		{"valid candidate", SignalCandidate, nil, false},
		{"empty candidate", SignalCandidate, nil, true},
		{"empty payload", SignalOffer, json.RawMessage{}, true},
		{"garbage payload", SignalOffer, json.RawMessage(`{"type":`), true},
		{"unknown kind", SignalKind("renegotiate"), nil, true},
	}
	// Build payloads that depend on t outside the table.
	tests[0].payload = sdpPayload(t, webrtc.SDPTypeOffer)
	tests[1].payload = sdpPayload(t, webrtc.SDPTypeAnswer)
	tests[2].payload = sdpPayload(t, webrtc.SDPTypeAnswer)
	tests[3].payload = candidatePayload(t, "candidate:1 1 UDP 2122252543 192.168.1.1 49152 typ host")
	tests[4].payload = candidatePayload(t, "")
	tests[7].payload = sdpPayload(t, webrtc.SDPTypeOffer)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSignalPayload(tt.kind, tt.payload)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSignal)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRelayHostToViewer(t *testing.T) {
	r := newTestRegistry(Config{})
	sessionID := uuid.New()
	hostID := uuid.New()
	viewerID := uuid.New()

	mustJoin(t, r, sessionID, hostID, "host", RoleHost)
	viewerSink := mustJoin(t, r, sessionID, viewerID, "viewer", RoleViewer)

	payload := sdpPayload(t, webrtc.SDPTypeOffer)
	require.NoError(t, r.Relay(sessionID, hostID, SignalRequest{ToID: viewerID, Kind: SignalOffer, Payload: payload}))

	sig, ok := viewerSink.lastByName("signal").(Signal)
	require.True(t, ok)
	assert.Equal(t, hostID, sig.FromID)
	assert.Equal(t, SignalOffer, sig.Kind)
	assert.JSONEq(t, string(payload), string(sig.Payload))

	// Renegotiation offers take the same path as initial ones.
	require.NoError(t, r.Relay(sessionID, hostID, SignalRequest{ToID: viewerID, Kind: SignalOffer, Payload: payload}))
	assert.Len(t, viewerSink.byName("signal"), 2)
}

func TestRelayViewerToViewerRejected(t *testing.T) {
	r := newTestRegistry(Config{})
	sessionID := uuid.New()
	aID := uuid.New()
	bID := uuid.New()

	mustJoin(t, r, sessionID, uuid.New(), "host", RoleHost)
	mustJoin(t, r, sessionID, aID, "a", RoleViewer)
	mustJoin(t, r, sessionID, bID, "b", RoleViewer)

	err := r.Relay(sessionID, aID, SignalRequest{ToID: bID, Kind: SignalOffer, Payload: sdpPayload(t, webrtc.SDPTypeOffer)})
	assert.ErrorIs(t, err, ErrInvalidSignal)
}

func TestRelayStaleTarget(t *testing.T) {
	r := newTestRegistry(Config{})
	sessionID := uuid.New()
	hostID := uuid.New()
	viewerID := uuid.New()

	mustJoin(t, r, sessionID, hostID, "host", RoleHost)
	viewerSink := mustJoin(t, r, sessionID, viewerID, "viewer", RoleViewer)
	require.NoError(t, r.Leave(sessionID, viewerID, viewerSink))

	err := r.Relay(sessionID, hostID, SignalRequest{ToID: viewerID, Kind: SignalOffer, Payload: sdpPayload(t, webrtc.SDPTypeOffer)})
	assert.ErrorIs(t, err, ErrStaleTarget)
}

func TestRelayRequiresMembership(t *testing.T) {
	r := newTestRegistry(Config{})
	sessionID := uuid.New()
	viewerID := uuid.New()

	mustJoin(t, r, sessionID, uuid.New(), "host", RoleHost)
	mustJoin(t, r, sessionID, viewerID, "viewer", RoleViewer)

	err := r.Relay(sessionID, uuid.New(), SignalRequest{ToID: viewerID, Kind: SignalOffer, Payload: sdpPayload(t, webrtc.SDPTypeOffer)})
	assert.ErrorIs(t, err, ErrNotParticipant)
}
