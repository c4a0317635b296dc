package database

import "errors"

// ErrNotReady indicates the pool has not yet completed a successful ping.
var ErrNotReady = errors.New("database not ready")
