// Package ingest holds the MQTT collectors that feed the job queue.
//
// Each collector owns one broker connection with its own client id. The
// transport callback only classifies the topic, decodes the JSON body and
// hands the result to a bounded inbox; a single pump goroutine moves the
// inbox into the queue. Nothing downstream of the inbox ever runs on the
// transport's delivery goroutine.
//
// The history collector subscribes once to every site's history topics
// and lets the transport restore that subscription after reconnects. The
// realtime collector has no static subscription: it subscribes and
// unsubscribes individual sites on behalf of the subscription registry,
// and calls back on every (re)connect so the registry can rebuild them.
package ingest
