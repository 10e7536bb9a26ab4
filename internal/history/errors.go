package history

import "errors"

// ErrUnsupportedKind is returned for kinds with no history table.
var ErrUnsupportedKind = errors.New("history: unsupported device kind")
