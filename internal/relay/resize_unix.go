//go:build unix

package relay

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// WatchResize sets flag on every SIGWINCH until ctx is done.
func WatchResize(ctx context.Context, flag *ResizeFlag) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGWINCH)
	go func() {
		defer signal.Stop(sigCh)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigCh:
				flag.Set()
			}
		}
	}()
}
