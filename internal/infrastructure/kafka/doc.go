// Package kafka publishes jobs that exhausted their delivery attempts to a
// dead-letter topic.
//
// The publisher implements queue.DeadLetter. Each message is keyed by the
// job ID so redeliveries of the same job land on one partition, and the
// value is the job encoded as JSON with a small envelope recording when
// and from which queue it failed.
package kafka
