package sharedring

import (
	"context"
	"errors"
	"time"

	"github.com/alephtx/shmring/sealedmem"
	"github.com/alephtx/shmring/wakeup"
)

func isPeerClosed(err error) bool {
	return errors.Is(err, wakeup.ErrPeerClosed)
}

// mapWaitErr turns a wakeup.Counter wait error into the sharedring-level
// error callers should see; context errors pass through unchanged so
// callers can still distinguish cancellation from peer closure.
func mapWaitErr(err error) error {
	if isPeerClosed(err) {
		return ErrPeerClosed
	}
	return err
}

// closedPollInterval bounds how long waitForSignal blocks before it
// re-checks the shared region's closed flag. It only affects how quickly a
// peer's Close is noticed, never the semantics of the counter.
const closedPollInterval = 200 * time.Millisecond

// waitForSignal blocks on c until it is notified, ctx is done, or region's
// closed flag becomes set (by the local or the peer side running Close).
// wakeup.Counter.Wait alone cannot detect the latter case: a peer's Close
// only flips that peer's own Counter's local state, invisible across
// processes (see closed.go). Polling the shared-memory flag at a bounded
// interval is what actually makes cross-endpoint closure observable.
func waitForSignal(ctx context.Context, c *wakeup.Counter, region *sealedmem.Region) error {
	for {
		subCtx, cancel := context.WithTimeout(ctx, closedPollInterval)
		err := c.Wait(subCtx)
		cancel()
		if err == nil {
			return nil
		}
		if isPeerClosed(err) {
			return err
		}
		if errors.Is(err, context.DeadlineExceeded) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if regionClosed(region) {
				return wakeup.ErrPeerClosed
			}
			continue
		}
		return err
	}
}
