package gameflow

import "errors"

// ErrInvalidArgument mirrors the precondition failures spec.md §4.4 calls
// out explicitly (AttackTarget's targetObjectIds.length >= targetCount).
var ErrInvalidArgument = errors.New("gameflow: invalid argument")
