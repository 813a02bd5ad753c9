package shared

import "errors"

// ErrOperatorMissing occurs when a mutating request carries no operator identity.
var ErrOperatorMissing = errors.New("operator identity missing")
