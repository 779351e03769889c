package signaling

import "time"

// DestructionTimer is a one-shot, lobby-scoped timer (spec.md §4.4). It is
// a generalization of the teacher's periodic time.NewTicker broadcasters in
// api/internal/websocket/handlers.go (broadcastSessionUpdates,
// broadcastMetrics) down to a single, non-repeating fire: SEAL schedules
// exactly one of these per lobby, and an early Stop (the lobby was
// destroyed before the grace period elapsed) is a safe no-op.
type DestructionTimer struct {
	t *time.Timer
}

// ScheduleDestruction starts a timer that calls fire after grace. fire is
// expected to tolerate the lobby already being gone (ErrLobbyNotFound is
// absorbed by the caller, per spec.md §4.4).
func ScheduleDestruction(grace time.Duration, fire func()) *DestructionTimer {
	return &DestructionTimer{t: time.AfterFunc(grace, fire)}
}

// Stop cancels the timer if it has not already fired. Cancellation is
// otherwise implicit: if the lobby is destroyed early, the timer becomes a
// no-op on fire (spec.md §4.4).
func (d *DestructionTimer) Stop() {
	if d == nil || d.t == nil {
		return
	}
	d.t.Stop()
}
