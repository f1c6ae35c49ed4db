// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package grandpa implements the core of a GRANDPA-style finality voter: the
// per-process agent that drives numbered voting rounds forward, ingests
// signed votes from peers, chains consecutive rounds together, and emits
// finalization decisions for blocks on a block DAG.
//
// The package never reads a key, never touches a socket, and never reads the
// clock directly; all of that is reached through the Environment interface.
package grandpa
