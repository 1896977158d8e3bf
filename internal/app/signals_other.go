//go:build !unix

package app

import "context"

// watchSignals has nothing to watch on this platform.
func (a *App) watchSignals(ctx context.Context) {
	<-ctx.Done()
}
