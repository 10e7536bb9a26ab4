// Package fanout pushes live events to connected viewers.
//
// Manager keeps every open live connection indexed by id and by user.
// Each connection owns a bounded outbox and a heartbeat goroutine; a
// transport (Server-Sent Events or WebSocket) drains the outbox until the
// connection is closed. Producers never block: when a connection's
// outbox is full the event is dropped for that connection only.
//
// Events:
//
//	connected        preamble written once per connection
//	heartbeat        periodic keep-alive
//	realtime-data    device payload for an authorised project
//	notification     alert raised for the connection's user
//	server-shutdown  terminal event sent by CloseAll
package fanout
