package crdt

import "errors"

// ErrInvalidState is returned when deserializing a CRDT blob that is
// malformed or has the wrong shape. Decoding always happens into a scratch
// value first, so a failed Deserialize never partially mutates the receiver.
var ErrInvalidState = errors.New("crdt: invalid state")
