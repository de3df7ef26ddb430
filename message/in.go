package message

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/pkg/errors"

	"ipc-link/wire"
)

// In is the extract cursor. It owns a complete frame plus a read offset
// that starts just past the length prefix and advances with every
// extraction; only Rewind moves it back, to the start of the payload.
//
// Not safe for concurrent use.
type In struct {
	buf    []byte
	off    int
	failed bool
}

// NewIn returns a detached cursor. Attach must be called before any
// extraction.
func NewIn() *In {
	return &In{failed: true}
}

// Attach loads a complete frame into the cursor and positions the offset
// past the length prefix. The prefix must equal the buffer size.
func (m *In) Attach(buf []byte) error {
	if len(buf) < wire.LenSize {
		m.failed = true
		return errors.Wrapf(wire.ErrBadMessage, "attach: %d bytes cannot hold a length prefix", len(buf))
	}
	if total := binary.LittleEndian.Uint32(buf[:wire.LenSize]); int(total) != len(buf) {
		m.failed = true
		return errors.Wrapf(wire.ErrBadMessage, "attach: prefix %d does not match buffer size %d", total, len(buf))
	}
	m.buf = buf
	m.off = wire.LenSize
	m.failed = false
	return nil
}

// Rewind resets the offset to the start of the payload. Used when a
// received buffer turns out to be a nested callback request rather than
// the final reply.
func (m *In) Rewind() {
	m.off = wire.LenSize
}

// Len returns the frame size in bytes, prefix included.
func (m *In) Len() int {
	return len(m.buf)
}

// expect validates the fail flag, the type tag (tagged mode) and the
// remaining space for a fixed-size element, consuming the tag byte on
// success. On a tag mismatch the tag is not consumed.
func (m *In) expect(want wire.Tag, size int) error {
	if m.failed {
		return errors.Wrap(wire.ErrBadMessage, "extract: fail flag is set")
	}
	need := size
	if wire.UseTags {
		need++
	}
	if m.off+need > len(m.buf) {
		m.failed = true
		return errors.Wrapf(wire.ErrMessageTooShort,
			"extract: required space %d exceeds message length of %d bytes", m.off+need, len(m.buf))
	}
	if wire.UseTags {
		if got := wire.Tag(m.buf[m.off]); got != want {
			m.failed = true
			return errors.Wrapf(wire.ErrTypeMismatch, "extract: got %s, expect %s", got, want)
		}
		m.off++
	}
	return nil
}

// U32 extracts an unsigned 32-bit value.
func (m *In) U32() (uint32, error) {
	if err := m.expect(wire.TagU32, 4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(m.buf[m.off:])
	m.off += 4
	return v, nil
}

// I32 extracts a signed 32-bit value.
func (m *In) I32() (int32, error) {
	if err := m.expect(wire.TagI32, 4); err != nil {
		return 0, err
	}
	v := int32(binary.LittleEndian.Uint32(m.buf[m.off:]))
	m.off += 4
	return v, nil
}

// U64 extracts an unsigned 64-bit value.
func (m *In) U64() (uint64, error) {
	if err := m.expect(wire.TagU64, 8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(m.buf[m.off:])
	m.off += 8
	return v, nil
}

// I64 extracts a signed 64-bit value.
func (m *In) I64() (int64, error) {
	if err := m.expect(wire.TagI64, 8); err != nil {
		return 0, err
	}
	v := int64(binary.LittleEndian.Uint64(m.buf[m.off:]))
	m.off += 8
	return v, nil
}

// F64 extracts an IEEE-754 double.
func (m *In) F64() (float64, error) {
	if err := m.expect(wire.TagF64, 8); err != nil {
		return 0, err
	}
	v := math.Float64frombits(binary.LittleEndian.Uint64(m.buf[m.off:]))
	m.off += 8
	return v, nil
}

// Char extracts a single byte.
func (m *In) Char() (byte, error) {
	if err := m.expect(wire.TagChar, 1); err != nil {
		return 0, err
	}
	v := m.buf[m.off]
	m.off++
	return v, nil
}

// String extracts a zero-terminated string. The terminator is consumed
// but not part of the returned value. A string region without its
// terminating zero fails with wire.ErrContainerOverflow.
func (m *In) String() (string, error) {
	// The terminator makes the minimum element one byte.
	if err := m.expect(wire.TagStr, 1); err != nil {
		return "", err
	}
	i := bytes.IndexByte(m.buf[m.off:], 0)
	if i < 0 {
		m.failed = true
		return "", errors.Wrap(wire.ErrContainerOverflow, "extract: terminating zero not found")
	}
	s := string(m.buf[m.off : m.off+i])
	m.off += i + 1
	return s, nil
}

// Blob extracts a length field and exactly that many raw bytes. The
// returned slice aliases the frame; copy it if it must outlive the
// cursor. A declared length running past the message fails with
// wire.ErrContainerOverflow.
func (m *In) Blob() ([]byte, error) {
	if err := m.expect(wire.TagBlob, wire.LenSize); err != nil {
		return nil, err
	}
	blobLen := int(binary.LittleEndian.Uint32(m.buf[m.off:]))
	m.off += wire.LenSize
	if m.off+blobLen > len(m.buf) {
		m.failed = true
		return nil, errors.Wrapf(wire.ErrContainerOverflow,
			"extract: blob of %d bytes exceeds message length of %d", blobLen, len(m.buf))
	}
	b := m.buf[m.off : m.off+blobLen]
	m.off += blobLen
	return b, nil
}

// RemotePtr extracts an opaque remote pointer token.
func (m *In) RemotePtr() (RemotePtr, error) {
	if err := m.expect(wire.TagRemotePtr, remotePtrSize); err != nil {
		return RemotePtr{}, err
	}
	p := RemotePtr{
		Addr:  binary.LittleEndian.Uint64(m.buf[m.off:]),
		Const: m.buf[m.off+8] != 0,
	}
	m.off += remotePtrSize
	return p, nil
}

// PeekID reads the first payload word as a u32 without consuming it.
// The RPC pump uses it to distinguish a final result (wire.DoneTag) from
// a nested call request. Peek is idempotent: the offset never moves.
func (m *In) PeekID() (uint32, error) {
	if m.failed {
		return 0, errors.Wrap(wire.ErrBadMessage, "peek: fail flag is set")
	}
	off := wire.LenSize
	if wire.UseTags {
		if off >= len(m.buf) {
			m.failed = true
			return 0, errors.Wrapf(wire.ErrMessageTooShort,
				"peek: required space %d exceeds message length of %d bytes", off+5, len(m.buf))
		}
		if got := wire.Tag(m.buf[off]); got != wire.TagU32 {
			m.failed = true
			return 0, errors.Wrapf(wire.ErrTypeMismatch, "peek: got %s, expect %s", got, wire.TagU32)
		}
		off++
	}
	if off+4 > len(m.buf) {
		m.failed = true
		return 0, errors.Wrapf(wire.ErrMessageTooShort,
			"peek: required space %d exceeds message length of %d bytes", off+4, len(m.buf))
	}
	return binary.LittleEndian.Uint32(m.buf[off:]), nil
}
