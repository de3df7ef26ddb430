// Package wire defines the frame-level contract shared by every layer:
// the length-prefix discipline, the optional type tags, the reserved
// function ids, and the error kinds that cross package boundaries.
//
// Frame format:
//
//	0        L                              total
//	┌────────┬──────────────────────────────┐
//	│ total  │           payload            │
//	│ uintL  │  tagged or untagged elements │
//	└────────┴──────────────────────────────┘
//
// The L-byte prefix counts the whole buffer, prefix included. All
// multi-byte integers on the wire are little-endian; both peers must be
// built with the same LenSize and UseTags settings.
package wire

import "errors"

const (
	// LenSize is the width in bytes of the length prefix. Both peers
	// must agree on it. The prefix and blob length fields are always
	// encoded as uint32, so 4 is the only width the cursors and the
	// stream layer handle.
	LenSize = 4

	// DoneTag is the reserved function id meaning "this buffer carries
	// the final result, not a nested call". Application function ids
	// must stay below it.
	DoneTag uint32 = 0xFFFFFFFF
)

// MaxMessageSize bounds one framed message, prefix included. An append
// that would grow a message past it fails with ErrMessageOverflow.
var MaxMessageSize uint32 = 64 << 10

// UseTags controls tagged mode: when true every payload element is
// preceded by a one-byte type discriminator and extraction validates it.
var UseTags = true

// Tag is the one-byte type discriminator written before each payload
// element in tagged mode.
type Tag byte

const (
	TagU32 Tag = iota
	TagI32
	TagU64
	TagI64
	TagF64
	TagChar
	TagStr
	TagRemotePtr
	TagBlob
)

func (t Tag) String() string {
	switch t {
	case TagU32:
		return "u32"
	case TagI32:
		return "i32"
	case TagU64:
		return "u64"
	case TagI64:
		return "i64"
	case TagF64:
		return "fp64"
	case TagChar:
		return "chr"
	case TagStr:
		return "str"
	case TagRemotePtr:
		return "remote_ptr"
	case TagBlob:
		return "blob"
	default:
		return "unknown"
	}
}

// Error kinds. Every raise site wraps one of these sentinels, so callers
// match with errors.Is regardless of the attached context.
var (
	// ErrSocketAPI reports a failure from an underlying socket primitive.
	ErrSocketAPI = errors.New("socket api failed")

	// ErrPassiveSocketPrepare reports a bind/listen failure.
	ErrPassiveSocketPrepare = errors.New("unable to prepare passive socket")

	// ErrActiveSocketPrepare reports a connect failure.
	ErrActiveSocketPrepare = errors.New("unable to prepare active socket")

	// ErrNameToAddress reports a hostname lookup failure.
	ErrNameToAddress = errors.New("unable to translate name to address")

	// ErrBadHostname reports that a resolved record is not an IPv4 endpoint.
	ErrBadHostname = errors.New("bad hostname")

	// ErrBadMessage reports an operation on a cursor whose fail flag is
	// already latched, or a frame that violates the prefix discipline.
	ErrBadMessage = errors.New("bad message")

	// ErrMessageOverflow reports an append that would exceed MaxMessageSize.
	ErrMessageOverflow = errors.New("message overflow")

	// ErrMessageTooShort reports an extract that needs more bytes than the
	// message holds.
	ErrMessageTooShort = errors.New("message too short")

	// ErrContainerOverflow reports a string without its terminating zero or
	// a blob whose declared length exceeds the message.
	ErrContainerOverflow = errors.New("container overflow")

	// ErrTypeMismatch reports a tagged-mode extract whose tag does not
	// match the requested type.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrUserStop reports that a continuation predicate returned false
	// during a blocking operation.
	ErrUserStop = errors.New("user stop request")
)
