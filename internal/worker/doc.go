// Package worker runs device commands on a fixed pool of goroutines.
//
// Submit performs the device's admission check inline and queues the job
// without blocking. The returned Task is a future: synchronous callers
// wait on it, asynchronous callers poll it once and move on.
//
// Outcomes a Task can complete with besides the command's own result:
//
//   - the admission error (for example *device.UnsupportedCommandError)
//   - ErrQueueFull when every queue slot is taken
//   - ErrCancelled when the pool shut down before the job started
//   - ErrPoolClosed when submitted after shutdown
//
// Usage:
//
//	pool := worker.New(worker.Config{Workers: 2, QueueDepth: 64})
//	pool.SetLogger(log)
//	pool.OnComplete(observer.TaskCompleted)
//	if err := pool.Start(ctx); err != nil {
//	    return err
//	}
//	defer pool.Shutdown()
//
//	task := pool.Submit(worker.Job{ID: id, Device: d, Lock: lock, Command: cmd})
//	result, err := task.Wait(ctx)
package worker
