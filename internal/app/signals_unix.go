//go:build unix

package app

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/MrWong99/parley/internal/audioctx"
)

// watchSignals maps process signals to audio host notifications:
//
//   - SIGCONT (resumed after a suspend) restores output like a page restore.
//   - SIGUSR1 reports that another program took the audio device.
//   - SIGUSR2 reports that the interruption ended.
//   - SIGWINCH redraws the status line.
func (a *App) watchSignals(ctx context.Context) {
	ch := make(chan os.Signal, 4)
	signal.Notify(ch, syscall.SIGCONT, syscall.SIGUSR1, syscall.SIGUSR2, syscall.SIGWINCH)
	defer signal.Stop(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-ch:
			slog.Debug("host signal", "signal", sig)
			switch sig {
			case syscall.SIGCONT:
				a.post(func() { a.hostSignal(audioctx.SignalPageRestore) })
			case syscall.SIGUSR1:
				a.output.Interrupt()
			case syscall.SIGUSR2:
				a.post(func() { a.hostSignal(audioctx.SignalInterruptionEnded) })
			case syscall.SIGWINCH:
				a.post(a.renderSession)
			}
		}
	}
}
