// Package async provides safe concurrent execution primitives for background tasks.
//
// # Overview
//
// This package handles goroutine lifecycle management with panic recovery, timeout
// enforcement, context cancellation, and error collection.
//
// # Key Functions
//
// SafeGo: Execute function in goroutine with safety features
//
//	async.SafeGo(ctx, 5*time.Second, "audit emission", func(ctx context.Context) error {
//		// Task code with automatic panic recovery and timeout
//		return auditLog.Log(ctx, event)
//	})
//
// WorkerPool: Managed pool of concurrent workers
//
//	pool := async.NewWorkerPool(ctx, 10, "descriptor discovery", 30*time.Second)
//	defer pool.Shutdown(5 * time.Second)
//
//	pool.Submit(func(ctx context.Context) error {
//		_, err := coordinator.Discover(ctx, appID, false)
//		return err
//	})
//
// Batch: Concurrent batch processing
//
//	errs := async.Batch(ctx, appIDs, 5, "batch discovery", 30*time.Second,
//		func(ctx context.Context, appID string) error {
//			_, err := coordinator.Discover(ctx, appID, false)
//			return err
//		})
//
// # Features
//
// Panic Recovery: Captures panics with stack traces
// Timeout Enforcement: Per-task timeouts
// Context Cancellation: Respects context cancellation
// Error Collection: Non-blocking error channels
// Graceful Shutdown: Worker draining
//
// # Use Cases
//
// Batch discovery runs, fire-and-forget audit emission, cache refresh.
//
// # Related Packages
//
//   - pkg/discovery: Batch discovery endpoints use Batch
//   - pkg/audit: Asynchronous event emission uses SafeGo
package async
