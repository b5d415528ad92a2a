// Package crc implements the Mode S 24 bit CRC used to validate and, where
// possible, repair demodulated 56/112 bit frames.
package crc

// modesChecksumTable is the standard 112 entry Mode S parity table. Every
// element corresponds to a bit position in a long (112 bit) message; the
// checksum is the XOR of the entries whose bit is set in msg. The final 24
// entries are zero because the checksum field itself never contributes to
// the computation.
var modesChecksumTable = [112]uint32{
	0x3935ea, 0x1c9af5, 0xf1b77e, 0x78dbbf, 0xc397db, 0x9e31e9, 0xb0e2f0, 0x587178,
	0x2c38bc, 0x161c5e, 0x0b0e2f, 0xfa7d13, 0x82c48d, 0xbe9842, 0x5f4c21, 0xd05c14,
	0x682e0a, 0x341705, 0xe5f186, 0x72f8c3, 0xc68665, 0x9cb936, 0x4e5c9b, 0xd8d449,
	0x939020, 0x49c810, 0x24e408, 0x127204, 0x093902, 0x049c81, 0xfdb444, 0x7eda22,
	0x3f6d11, 0xe04c8c, 0x702646, 0x381323, 0xe3f395, 0x8e03ce, 0x4701e7, 0xdc7af7,
	0x91c77f, 0xb719bb, 0xa476d9, 0xadc168, 0x56e0b4, 0x2b705a, 0x15b82d, 0xf52612,
	0x7a9309, 0xc2b380, 0x6159c0, 0x30ace0, 0x185670, 0x0c2b38, 0x06159c, 0x030ace,
	0x018567, 0xff38b7, 0x80665f, 0xbfc92b, 0xa01e91, 0xaff54c, 0x57faa6, 0x2bfd53,
	0xea04ad, 0x8af852, 0x457c29, 0xdd4410, 0x6ea208, 0x375104, 0x1ba882, 0x0dd441,
	0xf91024, 0x7c8812, 0x3e4409, 0xe0d800, 0x706c00, 0x383600, 0x1c1b00, 0x0e0d80,
	0x0706c0, 0x038360, 0x01c1b0, 0x00e0d8, 0x00706c, 0x003836, 0x001c1b, 0xfff409,
	0x000000, 0x000000, 0x000000, 0x000000, 0x000000, 0x000000, 0x000000, 0x000000,
	0x000000, 0x000000, 0x000000, 0x000000, 0x000000, 0x000000, 0x000000, 0x000000,
	0x000000, 0x000000, 0x000000, 0x000000, 0x000000, 0x000000, 0x000000, 0x000000,
}

const (
	LongMsgBits   = 112
	ShortMsgBits  = 56
	LongMsgBytes  = LongMsgBits / 8
	ShortMsgBytes = ShortMsgBits / 8
)

// ComputeCRC runs the table-driven Mode S CRC over msg's data bits (every bit
// except the trailing 24 bit checksum field). Short (56 bit) messages use
// the table's tail: the table is indexed MSB-first over the full 112 bit
// message space, so a short message starts at offset 112-56.
func ComputeCRC(msg []byte) uint32 {
	bits := len(msg) * 8
	offset := 0
	if bits != LongMsgBits {
		offset = LongMsgBits - ShortMsgBits
	}

	var c uint32
	for j := 0; j < bits-24; j++ {
		byteNdx := j / 8
		bitMask := byte(1) << (7 - uint(j%8))
		if msg[byteNdx]&bitMask != 0 {
			c ^= modesChecksumTable[offset+j]
		}
	}
	return c & 0xffffff
}

// Checksum XORs the computed CRC with the 24 bit remainder carried in msg's
// last three bytes. Zero means the message is valid.
func Checksum(msg []byte) uint32 {
	c := ComputeCRC(msg)
	n := len(msg)
	rem := uint32(msg[n-3])<<16 | uint32(msg[n-2])<<8 | uint32(msg[n-1])
	return (c ^ rem) & 0xffffff
}

// BuildErrorTable builds the 1 and 2 bit error syndrome table over the full
// 112 bit long-message space, once, at process start. Later insertions for
// the same syndrome overwrite earlier ones; outer i ascending, inner j
// ascending.
func BuildErrorTable() map[uint32]uint16 {
	table := make(map[uint32]uint16, LongMsgBits*LongMsgBits/2)
	msg := make([]byte, LongMsgBytes)

	for i := 5; i < LongMsgBits; i++ {
		byte0 := i >> 3
		mask0 := byte(1) << (7 - uint(i&7))
		msg[byte0] |= mask0
		table[Checksum(msg)] = uint16(i)

		for j := i + 1; j < LongMsgBits; j++ {
			byte1 := j >> 3
			mask1 := byte(1) << (7 - uint(j&7))
			msg[byte1] ^= mask1

			table[Checksum(msg)] = uint16(i) | uint16(j)<<8

			msg[byte1] ^= mask1
		}

		msg[byte0] ^= mask0
	}

	return table
}

// FixBitErrors looks up msg's syndrome in table and, if found, flips the
// encoded bit position(s) in place. Returns the number of bits corrected: 0,
// 1, or 2. A position outside msg's local bit space (short message, long
// table entry) is reported as "no fix" rather than risking an out of range
// flip.
func FixBitErrors(msg []byte, table map[uint32]uint16) int {
	syndrome := Checksum(msg)
	offset := LongMsgBits - len(msg)*8

	pei, ok := table[syndrome]
	if !ok {
		return 0
	}

	a := int(pei & 0xff)
	b := int(pei>>8) & 0xff

	if b != 0 {
		if offset > a || offset > b {
			return 0
		}
		bitpos0 := a - offset
		bitpos1 := b - offset
		msg[bitpos0>>3] ^= 1 << (7 - uint(bitpos0&7))
		msg[bitpos1>>3] ^= 1 << (7 - uint(bitpos1&7))
		return 2
	}

	if offset > a {
		return 0
	}
	bitpos0 := a - offset
	msg[bitpos0>>3] ^= 1 << (7 - uint(bitpos0&7))
	return 1
}
