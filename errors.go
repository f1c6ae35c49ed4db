// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package grandpa

import "errors"

// ErrNotDescendant is returned by Chain.Ancestry when the requested head is
// not a descendant of the requested base. It is expected and recovered
// locally — it is a signal, not a failure.
var ErrNotDescendant = errors.New("grandpa: not a descendant")

// ErrMissingPriorEstimate is returned when a round attempts to vote without
// its predecessor's estimate/prevote-GHOST being available. A round is only
// ever created once its predecessor is completable, so this indicates a
// contract violation by the caller wiring rounds together; it is fatal.
var ErrMissingPriorEstimate = errors.New("grandpa: missing prior round estimate")
