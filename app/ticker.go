package app

import (
	"context"
	"errors"
	"time"

	"whalehub/core/epoch"
)

// Tick creates every epoch that is due at the current clock time and returns
// how many were created. The epoch module account is the caller.
func (a *App) Tick(ctx context.Context) (int, error) {
	created := 0
	for {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		_, err := a.Execute(ctx, a.addrs.Epoch, nil, CreateEpochMsg{})
		switch {
		case err == nil:
			created++
		case errors.Is(err, epoch.ErrCurrentEpochNotExpired), errors.Is(err, epoch.ErrGenesisEpochHasNotStarted):
			return created, nil
		default:
			return created, err
		}
	}
}

// RunTicker calls Tick every interval until ctx is cancelled.
func (a *App) RunTicker(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if n, err := a.Tick(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("epoch ticker failed", "error", err)
		} else if n > 0 {
			a.logger.Info("epochs advanced", "created", n)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
