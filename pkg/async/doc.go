// Package async runs background tasks with panic recovery and logging.
//
// SafeGo is fire-and-forget with an optional timeout:
//
//	async.SafeGo(ctx, logger, 0, "config watcher", func(ctx context.Context) error {
//		return config.WatchLogLevel(ctx, path, logger)
//	})
//
// Run reports the task's outcome, so a caller can stop when a long-running task exits:
//
//	done := async.Run(ctx, logger, "http server", serve)
//	select {
//	case err := <-done:
//	case <-ctx.Done():
//	}
package async
