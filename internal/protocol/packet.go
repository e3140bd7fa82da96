package protocol

import "encoding/binary"

// Packet is a decoded, opaque plaintext buffer whose first two bytes are a
// little-endian opcode, matching spec.md §3's "every dispatched packet
// buffer has length >= 2" invariant.
type Packet []byte

// Opcode returns the packet's little-endian opcode. Panics if p is shorter
// than two bytes — a violation of the invariant every caller is expected
// to have already checked.
func (p Packet) Opcode() SendOp {
	if len(p) < 2 {
		panic("protocol: packet shorter than the 2-byte opcode header")
	}
	return SendOp(binary.LittleEndian.Uint16(p[0:2]))
}

// Body returns the packet's payload, with the opcode stripped.
func (p Packet) Body() []byte {
	if len(p) < 2 {
		return nil
	}
	return p[2:]
}

// Builder assembles an outbound packet: a RecvOp opcode followed by a
// body written incrementally.
type Builder struct {
	op   RecvOp
	body []byte
}

func NewBuilder(op RecvOp) *Builder {
	return &Builder{op: op}
}

func (b *Builder) Write(body []byte) *Builder {
	b.body = append(b.body, body...)
	return b
}

// Bytes returns the full wire buffer: opcode followed by body.
func (b *Builder) Bytes() []byte {
	buf := make([]byte, 2+len(b.body))
	binary.LittleEndian.PutUint16(buf[0:2], uint16(b.op))
	copy(buf[2:], b.body)
	return buf
}
