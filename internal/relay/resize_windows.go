//go:build windows

package relay

import "context"

// WatchResize is a no-op: console resize events arrive through the event
// queue.
func WatchResize(ctx context.Context, flag *ResizeFlag) {}
