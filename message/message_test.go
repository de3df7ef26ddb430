package message

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"ipc-link/wire"
)

// attach builds an In over the bytes of an Out, the way the stream
// layer does after reading a frame.
func attach(t *testing.T, out *Out) *In {
	t.Helper()
	in := NewIn()
	buf := make([]byte, out.Len())
	copy(buf, out.Bytes())
	if err := in.Attach(buf); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	return in
}

func TestRoundTripAllTypes(t *testing.T) {
	out := NewOut()

	ptr := RemotePtr{Addr: 0xDEADBEEF00C0FFEE, Const: true}
	blob := []byte{0x01, 0x02, 0x03, 0xFF}

	steps := []struct {
		name string
		put  func() error
	}{
		{"u32", func() error { return out.PutU32(42) }},
		{"i32", func() error { return out.PutI32(-7) }},
		{"u64", func() error { return out.PutU64(1 << 40) }},
		{"i64", func() error { return out.PutI64(-(1 << 40)) }},
		{"f64", func() error { return out.PutF64(3.5) }},
		{"chr", func() error { return out.PutChar('x') }},
		{"str", func() error { return out.PutString("hello") }},
		{"remote_ptr", func() error { return out.PutRemotePtr(ptr) }},
		{"blob", func() error { return out.PutBlob(blob) }},
	}
	for _, step := range steps {
		if err := step.put(); err != nil {
			t.Fatalf("append %s failed: %v", step.name, err)
		}
		// Length prefix must equal the buffer size after every append.
		prefix := binary.LittleEndian.Uint32(out.Bytes()[:wire.LenSize])
		if int(prefix) != out.Len() {
			t.Fatalf("after %s: prefix %d, buffer size %d", step.name, prefix, out.Len())
		}
	}

	in := attach(t, out)

	if v, err := in.U32(); err != nil || v != 42 {
		t.Errorf("u32: got %d, %v", v, err)
	}
	if v, err := in.I32(); err != nil || v != -7 {
		t.Errorf("i32: got %d, %v", v, err)
	}
	if v, err := in.U64(); err != nil || v != 1<<40 {
		t.Errorf("u64: got %d, %v", v, err)
	}
	if v, err := in.I64(); err != nil || v != -(1<<40) {
		t.Errorf("i64: got %d, %v", v, err)
	}
	if v, err := in.F64(); err != nil || v != 3.5 {
		t.Errorf("f64: got %g, %v", v, err)
	}
	if v, err := in.Char(); err != nil || v != 'x' {
		t.Errorf("chr: got %c, %v", v, err)
	}
	if v, err := in.String(); err != nil || v != "hello" {
		t.Errorf("str: got %q, %v", v, err)
	}
	if v, err := in.RemotePtr(); err != nil || v != ptr {
		t.Errorf("remote_ptr: got %+v, %v", v, err)
	}
	if v, err := in.Blob(); err != nil || !bytes.Equal(v, blob) {
		t.Errorf("blob: got %v, %v", v, err)
	}
}

func TestStringTerminatorOnWire(t *testing.T) {
	out := NewOut()
	if err := out.PutString("abc"); err != nil {
		t.Fatal(err)
	}

	// The emitted bytes carry a trailing zero that is not part of the
	// extracted value.
	raw := out.Bytes()
	if raw[len(raw)-1] != 0 {
		t.Fatalf("expected trailing zero, got %#x", raw[len(raw)-1])
	}

	in := attach(t, out)
	s, err := in.String()
	if err != nil {
		t.Fatal(err)
	}
	if s != "abc" {
		t.Errorf("got %q, want %q", s, "abc")
	}
}

func TestStringMissingTerminator(t *testing.T) {
	// Hand-build a frame whose string region lacks its zero.
	payload := []byte{byte(wire.TagStr), 'a', 'b', 'c'}
	buf := make([]byte, wire.LenSize)
	buf = append(buf, payload...)
	binary.LittleEndian.PutUint32(buf[:wire.LenSize], uint32(len(buf)))

	in := NewIn()
	if err := in.Attach(buf); err != nil {
		t.Fatal(err)
	}
	_, err := in.String()
	if !errors.Is(err, wire.ErrContainerOverflow) {
		t.Fatalf("expected container overflow, got %v", err)
	}
	// Fail flag is latched now.
	if _, err := in.U32(); !errors.Is(err, wire.ErrBadMessage) {
		t.Errorf("expected bad message after latch, got %v", err)
	}
}

func TestBlobLengthExceedsMessage(t *testing.T) {
	// Blob declaring 100 bytes inside a frame holding 2.
	payload := []byte{byte(wire.TagBlob)}
	payload = binary.LittleEndian.AppendUint32(payload, 100)
	payload = append(payload, 0xAA, 0xBB)
	buf := make([]byte, wire.LenSize)
	buf = append(buf, payload...)
	binary.LittleEndian.PutUint32(buf[:wire.LenSize], uint32(len(buf)))

	in := NewIn()
	if err := in.Attach(buf); err != nil {
		t.Fatal(err)
	}
	if _, err := in.Blob(); !errors.Is(err, wire.ErrContainerOverflow) {
		t.Fatalf("expected container overflow, got %v", err)
	}
}

func TestOverflowBoundary(t *testing.T) {
	saved := wire.MaxMessageSize
	wire.MaxMessageSize = 32
	defer func() { wire.MaxMessageSize = saved }()

	out := NewOut()
	// Tagged blob overhead is 1 (tag) + 4 (length field); prefix is 4.
	// A 23-byte payload lands exactly on the 32-byte limit.
	if err := out.PutBlob(make([]byte, 23)); err != nil {
		t.Fatalf("append at the limit failed: %v", err)
	}
	if out.Len() != 32 {
		t.Fatalf("expected 32 bytes, got %d", out.Len())
	}

	// One more byte pushes past the limit.
	if err := out.PutChar('!'); !errors.Is(err, wire.ErrMessageOverflow) {
		t.Fatalf("expected message overflow, got %v", err)
	}
	// And the fail flag is latched for every further append.
	if err := out.PutU32(1); !errors.Is(err, wire.ErrBadMessage) {
		t.Fatalf("expected bad message after latch, got %v", err)
	}

	// Clear lifts the latch.
	out.Clear()
	if err := out.PutU32(1); err != nil {
		t.Fatalf("append after Clear failed: %v", err)
	}
}

func TestTypeTagEnforcement(t *testing.T) {
	out := NewOut()
	if err := out.PutU32(99); err != nil {
		t.Fatal(err)
	}

	in := attach(t, out)
	if _, err := in.I32(); !errors.Is(err, wire.ErrTypeMismatch) {
		t.Fatalf("expected type mismatch, got %v", err)
	}
	if _, err := in.U32(); !errors.Is(err, wire.ErrBadMessage) {
		t.Errorf("expected bad message after latch, got %v", err)
	}
}

func TestExtractPastEnd(t *testing.T) {
	out := NewOut()
	if err := out.PutU32(7); err != nil {
		t.Fatal(err)
	}

	in := attach(t, out)
	if _, err := in.U32(); err != nil {
		t.Fatal(err)
	}
	if _, err := in.U32(); !errors.Is(err, wire.ErrMessageTooShort) {
		t.Fatalf("expected message too short, got %v", err)
	}
}

func TestPeekIsIdempotent(t *testing.T) {
	out := NewOut()
	if err := out.PutU32(1234); err != nil {
		t.Fatal(err)
	}
	if err := out.PutI32(-5); err != nil {
		t.Fatal(err)
	}

	in := attach(t, out)
	for i := 0; i < 3; i++ {
		id, err := in.PeekID()
		if err != nil {
			t.Fatalf("peek %d failed: %v", i, err)
		}
		if id != 1234 {
			t.Fatalf("peek %d: got %d, want 1234", i, id)
		}
	}

	// Peek consumed nothing: a normal extraction still sees the id.
	if v, err := in.U32(); err != nil || v != 1234 {
		t.Fatalf("u32 after peek: got %d, %v", v, err)
	}
	if v, err := in.I32(); err != nil || v != -5 {
		t.Fatalf("i32 after peek: got %d, %v", v, err)
	}
}

func TestRewind(t *testing.T) {
	out := NewOut()
	if err := out.PutU32(11); err != nil {
		t.Fatal(err)
	}
	if err := out.PutU32(22); err != nil {
		t.Fatal(err)
	}

	in := attach(t, out)
	if v, _ := in.U32(); v != 11 {
		t.Fatalf("got %d, want 11", v)
	}
	in.Rewind()
	if v, _ := in.U32(); v != 11 {
		t.Fatalf("after rewind: got %d, want 11", v)
	}
	if v, _ := in.U32(); v != 22 {
		t.Fatalf("got %d, want 22", v)
	}
}

func TestAttachRejectsBadPrefix(t *testing.T) {
	in := NewIn()
	buf := []byte{9, 0, 0, 0, 1, 2} // prefix 9, actual 6
	if err := in.Attach(buf); !errors.Is(err, wire.ErrBadMessage) {
		t.Fatalf("expected bad message, got %v", err)
	}
}

func TestUntaggedMode(t *testing.T) {
	saved := wire.UseTags
	wire.UseTags = false
	defer func() { wire.UseTags = saved }()

	out := NewOut()
	if err := out.PutU32(5); err != nil {
		t.Fatal(err)
	}
	if err := out.PutString("no tags"); err != nil {
		t.Fatal(err)
	}
	if err := out.PutBlob([]byte{9, 9}); err != nil {
		t.Fatal(err)
	}

	// Untagged u32 occupies exactly 4 payload bytes.
	wantLen := wire.LenSize + 4 + len("no tags") + 1 + wire.LenSize + 2
	if out.Len() != wantLen {
		t.Fatalf("frame size %d, want %d", out.Len(), wantLen)
	}

	in := attach(t, out)
	if v, err := in.U32(); err != nil || v != 5 {
		t.Errorf("u32: got %d, %v", v, err)
	}
	if v, err := in.String(); err != nil || v != "no tags" {
		t.Errorf("str: got %q, %v", v, err)
	}
	if v, err := in.Blob(); err != nil || !bytes.Equal(v, []byte{9, 9}) {
		t.Errorf("blob: got %v, %v", v, err)
	}
}

func TestDetachedCursorFails(t *testing.T) {
	in := NewIn()
	if _, err := in.U32(); !errors.Is(err, wire.ErrBadMessage) {
		t.Fatalf("expected bad message before attach, got %v", err)
	}
}
