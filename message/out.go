package message

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"

	"ipc-link/wire"
)

// Out is the append cursor. It owns a growable buffer whose length
// prefix is updated after every successful append, so Bytes is always
// transmittable.
//
// Not safe for concurrent use.
type Out struct {
	buf    []byte
	failed bool
}

// NewOut returns a cursor holding an empty frame (prefix only).
func NewOut() *Out {
	m := &Out{}
	m.Clear()
	return m
}

// Clear resets the cursor to an empty frame and lifts the fail flag.
// The underlying allocation is kept, so a cleared cursor appends without
// reallocating across nested exchanges.
func (m *Out) Clear() {
	if cap(m.buf) < wire.LenSize {
		m.buf = make([]byte, wire.LenSize, 64)
	} else {
		m.buf = m.buf[:wire.LenSize]
	}
	binary.LittleEndian.PutUint32(m.buf[:wire.LenSize], wire.LenSize)
	m.failed = false
}

// Bytes exposes the framed buffer for transmission. The view is only
// valid until the next append or Clear.
func (m *Out) Bytes() []byte {
	return m.buf
}

// Len returns the current frame size in bytes, prefix included.
func (m *Out) Len() int {
	return len(m.buf)
}

// reserve checks the fail flag and the size limit for an append of
// `need` payload bytes (tag byte already included by the caller).
func (m *Out) reserve(need int) error {
	if m.failed {
		return errors.Wrap(wire.ErrBadMessage, "append: fail flag is set")
	}
	if newUsed := len(m.buf) + need; newUsed > int(wire.MaxMessageSize) {
		m.failed = true
		return errors.Wrapf(wire.ErrMessageOverflow,
			"append: required space %d exceeds limit of %d bytes", newUsed, wire.MaxMessageSize)
	}
	return nil
}

// setLen rewrites the length prefix from the buffer size. Called after
// every append so the prefix invariant holds at all times.
func (m *Out) setLen() {
	binary.LittleEndian.PutUint32(m.buf[:wire.LenSize], uint32(len(m.buf)))
}

func (m *Out) tagged(size int) int {
	if wire.UseTags {
		return size + 1
	}
	return size
}

func (m *Out) putTag(t wire.Tag) {
	if wire.UseTags {
		m.buf = append(m.buf, byte(t))
	}
}

// PutU32 appends an unsigned 32-bit value.
func (m *Out) PutU32(v uint32) error {
	if err := m.reserve(m.tagged(4)); err != nil {
		return err
	}
	m.putTag(wire.TagU32)
	m.buf = binary.LittleEndian.AppendUint32(m.buf, v)
	m.setLen()
	return nil
}

// PutI32 appends a signed 32-bit value.
func (m *Out) PutI32(v int32) error {
	if err := m.reserve(m.tagged(4)); err != nil {
		return err
	}
	m.putTag(wire.TagI32)
	m.buf = binary.LittleEndian.AppendUint32(m.buf, uint32(v))
	m.setLen()
	return nil
}

// PutU64 appends an unsigned 64-bit value.
func (m *Out) PutU64(v uint64) error {
	if err := m.reserve(m.tagged(8)); err != nil {
		return err
	}
	m.putTag(wire.TagU64)
	m.buf = binary.LittleEndian.AppendUint64(m.buf, v)
	m.setLen()
	return nil
}

// PutI64 appends a signed 64-bit value.
func (m *Out) PutI64(v int64) error {
	if err := m.reserve(m.tagged(8)); err != nil {
		return err
	}
	m.putTag(wire.TagI64)
	m.buf = binary.LittleEndian.AppendUint64(m.buf, uint64(v))
	m.setLen()
	return nil
}

// PutF64 appends an IEEE-754 double.
func (m *Out) PutF64(v float64) error {
	if err := m.reserve(m.tagged(8)); err != nil {
		return err
	}
	m.putTag(wire.TagF64)
	m.buf = binary.LittleEndian.AppendUint64(m.buf, math.Float64bits(v))
	m.setLen()
	return nil
}

// PutChar appends a single byte.
func (m *Out) PutChar(v byte) error {
	if err := m.reserve(m.tagged(1)); err != nil {
		return err
	}
	m.putTag(wire.TagChar)
	m.buf = append(m.buf, v)
	m.setLen()
	return nil
}

// PutString appends the UTF-8 bytes of s followed by a terminating zero.
// The terminator is added here; callers never include one.
func (m *Out) PutString(s string) error {
	if err := m.reserve(m.tagged(len(s) + 1)); err != nil {
		return err
	}
	m.putTag(wire.TagStr)
	m.buf = append(m.buf, s...)
	m.buf = append(m.buf, 0)
	m.setLen()
	return nil
}

// PutBlob appends a length field followed by the raw bytes of b.
func (m *Out) PutBlob(b []byte) error {
	if err := m.reserve(m.tagged(wire.LenSize + len(b))); err != nil {
		return err
	}
	m.putTag(wire.TagBlob)
	m.buf = binary.LittleEndian.AppendUint32(m.buf, uint32(len(b)))
	m.buf = append(m.buf, b...)
	m.setLen()
	return nil
}

// PutRemotePtr appends an opaque remote pointer token.
func (m *Out) PutRemotePtr(p RemotePtr) error {
	if err := m.reserve(m.tagged(remotePtrSize)); err != nil {
		return err
	}
	m.putTag(wire.TagRemotePtr)
	m.buf = binary.LittleEndian.AppendUint64(m.buf, p.Addr)
	if p.Const {
		m.buf = append(m.buf, 1)
	} else {
		m.buf = append(m.buf, 0)
	}
	m.setLen()
	return nil
}
