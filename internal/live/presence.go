package live

import "github.com/google/uuid"

// Presence is the live set of joined participants per session and the derived
// viewer count. Counts are updated by the registry on every join/leave and
// broadcast within one round-trip of the change; concurrent joins resolve
// last-write-wins per connection. The viewer count excludes the host.

// Count returns the current viewer count for a session. Unknown sessions
// count zero.
func (r *Registry) Count(sessionID uuid.UUID) int {
	rm := r.lookup(sessionID)
	if rm == nil {
		return 0
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.viewerCountLocked()
}

// List returns the current participants of a session.
func (r *Registry) List(sessionID uuid.UUID) []Participant {
	rm := r.lookup(sessionID)
	if rm == nil {
		return nil
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	out := make([]Participant, 0, len(rm.participants))
	for _, p := range rm.participants {
		out = append(out, *p)
	}
	return out
}
