package server

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
)

// purgeLoop deletes expired token records every interval until ctx ends.
// A non-positive interval disables it.
func (app *App) purgeLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		app.logger.Info(ctx, "token purge disabled")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			app.purgeOnce(ctx)
		}
	}
}

func (app *App) purgeOnce(ctx context.Context) {
	refresh, action, err := app.tokens.PurgeExpired(ctx)
	if err != nil {
		app.logger.Error(ctx, "token purge failed", "error", err.Error(), "cause", common.CauseOf(err))
		return
	}
	app.logger.Info(ctx, "expired tokens purged", "refresh", refresh, "action", action)
}
