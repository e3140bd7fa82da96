package binstruct

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Reader walks a packet body sequentially, the way the protocol's
// variable-length fields (length-prefixed unicode strings, repeated
// sub-entries) require: a field's presence or size often depends on a
// value read earlier in the same packet.
type Reader struct {
	buf []byte
	pos int
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

func (r *Reader) remaining() int { return len(r.buf) - r.pos }

func (r *Reader) need(n int) error {
	if r.remaining() < n {
		return fmt.Errorf("binstruct: short read, need %d bytes, have %d", n, r.remaining())
	}
	return nil
}

func (r *Reader) Uint8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *Reader) Bool() (bool, error) {
	v, err := r.Uint8()
	return v != 0, err
}

func (r *Reader) Uint16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *Reader) Int16() (int16, error) {
	v, err := r.Uint16()
	return int16(v), err
}

func (r *Reader) Uint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *Reader) Int32() (int32, error) {
	v, err := r.Uint32()
	return int32(v), err
}

func (r *Reader) Float32() (float32, error) {
	v, err := r.Uint32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func (r *Reader) Uint64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *Reader) Int64() (int64, error) {
	v, err := r.Uint64()
	return int64(v), err
}

func (r *Reader) Bytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	v := r.buf[r.pos : r.pos+n]
	r.pos += n
	return v, nil
}

// UnicodeLenPrefixed reads a uint16 character count followed by that many
// UTF-16LE characters, matching the `unicodeLenPrefixed` wire fields of
// ResponseLogin's username/password.
func (r *Reader) UnicodeLenPrefixed() (string, error) {
	n, err := r.Uint16()
	if err != nil {
		return "", err
	}
	b, err := r.Bytes(int(n) * 2)
	if err != nil {
		return "", err
	}
	return FromUTF16(b), nil
}

// Unicode reads a null-terminated (or buffer-exhausting) run of UTF-16LE
// characters, matching fields such as CharacterList's `name` and
// LoginResult's `banReason`.
func (r *Reader) Unicode(maxChars int) (string, error) {
	var units []uint16
	for i := 0; i < maxChars && r.remaining() >= 2; i++ {
		u, err := r.Uint16()
		if err != nil {
			return "", err
		}
		if u == 0 {
			break
		}
		units = append(units, u)
	}
	b := make([]byte, len(units)*2)
	for i, u := range units {
		b[2*i] = byte(u)
		b[2*i+1] = byte(u >> 8)
	}
	return FromUTF16(b), nil
}

func (r *Reader) Skip(n int) error {
	if err := r.need(n); err != nil {
		return err
	}
	r.pos += n
	return nil
}

func (r *Reader) Remaining() []byte {
	return r.buf[r.pos:]
}

// Writer builds a packet body incrementally, the counterpart to Reader.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer { return &Writer{} }

func (w *Writer) Uint8(v uint8) *Writer {
	w.buf = append(w.buf, v)
	return w
}

func (w *Writer) Bool(v bool) *Writer {
	if v {
		return w.Uint8(1)
	}
	return w.Uint8(0)
}

func (w *Writer) Uint16(v uint16) *Writer {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
	return w
}

func (w *Writer) Int16(v int16) *Writer { return w.Uint16(uint16(v)) }

func (w *Writer) Uint32(v uint32) *Writer {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
	return w
}

func (w *Writer) Int32(v int32) *Writer { return w.Uint32(uint32(v)) }

func (w *Writer) Float32(v float32) *Writer {
	return w.Uint32(math.Float32bits(v))
}

func (w *Writer) Uint64(v uint64) *Writer {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
	return w
}

func (w *Writer) Int64(v int64) *Writer { return w.Uint64(uint64(v)) }

func (w *Writer) Bytes(b []byte) *Writer {
	w.buf = append(w.buf, b...)
	return w
}

func (w *Writer) UnicodeLenPrefixed(s string) *Writer {
	b := ToUTF16(s)
	w.Uint16(uint16(len(b) / 2))
	w.buf = append(w.buf, b...)
	return w
}

func (w *Writer) Bytes16(b [16]byte) *Writer {
	w.buf = append(w.buf, b[:]...)
	return w
}

func (w *Writer) Bytes4(b [4]byte) *Writer {
	w.buf = append(w.buf, b[:]...)
	return w
}

func (w *Writer) Build() []byte { return w.buf }
