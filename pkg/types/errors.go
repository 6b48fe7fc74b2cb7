package types

import "errors"

// ErrUnknownKind is returned when a persisted geometry or field kind is not recognized.
var ErrUnknownKind = errors.New("unknown kind")
