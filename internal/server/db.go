package server

import (
	"context"
	"database/sql"
	"time"

	"github.com/dmitrijs2005/videotube/internal/logging"
	"github.com/sethvargo/go-retry"
)

// pingDB is a seam for tests.
var pingDB = func(ctx context.Context, db *sql.DB) error {
	return db.PingContext(ctx)
}

// waitForDB pings the database with exponential backoff until it answers or
// attempts run out.
func waitForDB(ctx context.Context, db *sql.DB, l logging.Logger, base time.Duration, attempts uint64) error {
	b := retry.WithMaxRetries(attempts, retry.NewExponential(base))

	return retry.Do(ctx, b, func(ctx context.Context) error {
		if err := pingDB(ctx, db); err != nil {
			l.Warn(ctx, "database not reachable yet", "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
}
