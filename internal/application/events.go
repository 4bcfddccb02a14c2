package application

import (
	"context"
	"log/slog"
)

// ForwardSnapshots publishes every new poll cycle of session to sink until ctx
// is done or the session closes.
func ForwardSnapshots(ctx context.Context, session *Session, sink EventSink) error {
	snapshots, cancel := session.Subscribe()
	defer cancel()
	var lastSession string
	var lastCycle uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-snapshots:
			if !ok {
				return nil
			}
			if !snap.Connected() || (snap.SessionID == lastSession && snap.Cycle == lastCycle) {
				continue
			}
			lastSession, lastCycle = snap.SessionID, snap.Cycle
			if err := sink.PublishSnapshot(ctx, snap); err != nil {
				slog.Warn("publish snapshot", "cycle", snap.Cycle, "error", err)
			}
		}
	}
}
