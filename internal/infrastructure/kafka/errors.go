package kafka

import "errors"

var (
	// ErrDisabled indicates dead-letter publishing is disabled in config.
	ErrDisabled = errors.New("kafka: disabled in configuration")

	// ErrNoBrokers indicates the broker list is empty.
	ErrNoBrokers = errors.New("kafka: no brokers configured")

	// ErrClosed is returned when publishing after Close.
	ErrClosed = errors.New("kafka: publisher closed")
)
