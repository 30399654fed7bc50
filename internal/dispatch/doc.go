// Package dispatch runs detached background tasks.
//
// Submit hands a task to a bounded queue and returns immediately; the caller
// never observes the task's outcome. A fixed pool of workers drains the
// queue. When the queue is full the task is dropped rather than delaying the
// caller.
//
// Shutdown stops intake and keeps the process alive until every queued and
// in-flight task has settled or the shutdown context expires:
//
//	d := dispatch.New(4, 1024, logger)
//	d.Start()
//	d.Submit(func(ctx context.Context) error {
//		return reporter.Track(ctx, req, outcome).Err
//	})
//	_ = d.Shutdown(shutdownCtx)
package dispatch
