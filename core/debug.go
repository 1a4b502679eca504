package core

// DebugWriter receives diagnostic lines from a bridge. Implementations must
// not call back into the bridge; they are invoked from inside Tick.
//
// The hook exists for the one condition the protocol cannot signal on the
// wire: a responder missing its acknowledgement deadline. Everything else
// (cancelled writes, truncated reads, address wrap) is defined behavior and
// produces no diagnostics.
type DebugWriter func(string)
