// Package queue provides the two-lane job queue that decouples MQTT intake
// from persistence and realtime processing.
//
// Each lane (history, realtime) is an independent Queue with its own worker
// pool, retry policy and retention limits. Jobs are held in a Store:
// RedisStore keeps them durable across restarts, MemoryStore serves tests
// and single-process development.
//
// A job moves through the states
//
//	waiting -> active -> completed
//	                  -> delayed -> waiting   (retry with exponential backoff)
//	                  -> failed               (attempts exhausted or permanent error)
//
// Handlers signal a non-retryable failure by wrapping the error with
// Permanent. A job whose attempts are exhausted is recorded in the failed
// list exactly once and, when configured, forwarded to a DeadLetter sink.
//
// Thread Safety: all exported methods are safe for concurrent use.
package queue
