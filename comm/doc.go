// Package comm provides the fixed-group message-passing primitive the
// construction protocol runs on: tagged point-to-point sends and
// receives, non-blocking sends with explicit completion, and the
// blocking collectives (barrier, broadcast, gather, all-gather) that
// separate protocol phases.
//
// The model is SPMD: a group has a fixed size known in advance, every
// rank runs the same call sequence, and collectives are globally
// ordered by call site. A rank that never arrives at a collective
// stalls the whole group; callers bound that risk with the context.
//
// Matching follows message-passing convention: a receive names a
// (source, tag) pair and messages between a pair of ranks with the same
// tag are delivered in send order. Send enqueues a copy and returns
// immediately (buffered). Isend enqueues the caller's slice without
// copying; the payload must stay untouched until the returned Request
// completes, which happens when the receiver has consumed it.
package comm
