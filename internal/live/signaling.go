package live

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v3"
)

// SignalKind is the kind of a signaling envelope.
type SignalKind string

const (
	SignalOffer     SignalKind = "offer"
	SignalAnswer    SignalKind = "answer"
	SignalCandidate SignalKind = "ice-candidate"
)

// ValidateSignalPayload checks the envelope shape for a kind without
// interpreting its contents beyond structural validity. Offers and answers
// must parse as session descriptions of the matching type; candidates must
// carry a candidate line. Payloads pass through the relay untouched.
func ValidateSignalPayload(kind SignalKind, payload json.RawMessage) error {
	if len(payload) == 0 {
		return fmt.Errorf("%w: empty payload", ErrInvalidSignal)
	}
	switch kind {
	case SignalOffer, SignalAnswer:
		var sdp webrtc.SessionDescription
		if err := json.Unmarshal(payload, &sdp); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSignal, err)
		}
		if sdp.SDP == "" {
			return fmt.Errorf("%w: missing sdp", ErrInvalidSignal)
		}
		want := webrtc.SDPTypeOffer
		if kind == SignalAnswer {
			want = webrtc.SDPTypeAnswer
		}
		if sdp.Type != want {
			return fmt.Errorf("%w: sdp type %q does not match kind %q", ErrInvalidSignal, sdp.Type, kind)
		}
	case SignalCandidate:
		var cand webrtc.ICECandidateInit
		if err := json.Unmarshal(payload, &cand); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSignal, err)
		}
		if cand.Candidate == "" {
			return fmt.Errorf("%w: missing candidate", ErrInvalidSignal)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidSignal, kind)
	}
	return nil
}
