// Package message implements the typed append/extract cursor pair over
// length-prefixed frames.
//
// Out builds a frame element by element and keeps the length prefix
// current after every append. In consumes a frame built by a peer's Out,
// validating type tags (in tagged mode) and bounds on every extract.
//
// Both cursors latch a fail flag on the first error: once latched, every
// further operation fails with wire.ErrBadMessage until the cursor is
// cleared (Out) or re-attached (In). There is no other recovery
// transition.
//
// Custom composite types are layered by the caller in terms of the
// primitives:
//
//	func putPoint(out *message.Out, p Point) error {
//		if err := out.PutI32(p.X); err != nil {
//			return err
//		}
//		return out.PutI32(p.Y)
//	}
package message

// RemotePtr is an opaque token identifying a context object held by the
// peer that produced it. It is a value over the wire: the receiver must
// never dereference it, only pass it back. The Const marker is
// informational.
//
// Wire encoding: 8-byte little-endian token, then one const-marker byte.
type RemotePtr struct {
	Addr  uint64
	Const bool
}

const remotePtrSize = 9
