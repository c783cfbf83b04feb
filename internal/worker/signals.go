package worker

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

// HandleSignals связывает сигналы процесса с воркером до отмены ctx:
//   - SIGUSR1 будит воркер из idle-sleep;
//   - первый SIGINT/SIGTERM — мягкая остановка (Stop);
//   - второй SIGINT/SIGTERM — вызов cancel, прерывающий текущую работу.
func (w *Worker) HandleSignals(ctx context.Context, cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGUSR1, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	w.watchSignals(ctx, sigCh, cancel)
}

func (w *Worker) watchSignals(ctx context.Context, sigCh <-chan os.Signal, cancel context.CancelFunc) {
	stopping := false
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigCh:
			if sig == syscall.SIGUSR1 {
				w.logger.Info("received wake signal", zap.String("signal", sig.String()))
				w.Wake()
				continue
			}

			if stopping {
				w.logger.Warn("received second stop signal, cancelling", zap.String("signal", sig.String()))
				cancel()
				return
			}
			stopping = true
			w.logger.Info("received stop signal", zap.String("signal", sig.String()))
			w.Stop()
		}
	}
}
