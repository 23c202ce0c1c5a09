package engine

import "errors"

var (
	errMissingHandler    = errors.New("create_session requires a non-nil handler")
	errSessionsStillLive = errors.New("Free called on a Model with live Sessions attached")
)
