package common

import (
	"math/bits"
	"strings"
)

// EmptyHash is the FilenameHash of a zero length input. It is never a valid
// lookup key.
const EmptyHash uint64 = 0xDEADBEEFDEADBEEF

// NormalizePath converts path to the form hashed by FilenameHash:
// backslash separators, upper case, ASCII only.
func NormalizePath(path string) string {
	path = strings.ToUpper(strings.ReplaceAll(path, "/", "\\"))
	return strings.Map(func(r rune) rune {
		if r > 0x7f {
			return '?'
		}
		return r
	}, path)
}

// FilenameHash returns the 64 bit root manifest hash of path.
// https://wowdev.wiki/TACT#Root
func FilenameHash(path string) uint64 {
	c, b := HashLittle2([]byte(NormalizePath(path)), 0, 0)
	return uint64(c)<<32 | uint64(b)
}

// ValidHash reports whether h can be used as a lookup key.
func ValidHash(h uint64) bool {
	return h != 0 && h != EmptyHash
}

// HashLittle2 is Bob Jenkins' lookup3 hashlittle2. pc and pb are the
// initial values, the two 32 bit results are returned in the same order.
func HashLittle2(k []byte, pc, pb uint32) (uint32, uint32) {
	length := len(k)
	a := 0xdeadbeef + uint32(length) + pc
	b := a
	c := a + pb

	for length > 12 {
		a += le32(k[0:])
		b += le32(k[4:])
		c += le32(k[8:])
		a, b, c = mix(a, b, c)
		length -= 12
		k = k[12:]
	}

	switch length {
	case 12:
		c += uint32(k[11]) << 24
		fallthrough
	case 11:
		c += uint32(k[10]) << 16
		fallthrough
	case 10:
		c += uint32(k[9]) << 8
		fallthrough
	case 9:
		c += uint32(k[8])
		fallthrough
	case 8:
		b += uint32(k[7]) << 24
		fallthrough
	case 7:
		b += uint32(k[6]) << 16
		fallthrough
	case 6:
		b += uint32(k[5]) << 8
		fallthrough
	case 5:
		b += uint32(k[4])
		fallthrough
	case 4:
		a += uint32(k[3]) << 24
		fallthrough
	case 3:
		a += uint32(k[2]) << 16
		fallthrough
	case 2:
		a += uint32(k[1]) << 8
		fallthrough
	case 1:
		a += uint32(k[0])
	case 0:
		return c, b
	}

	_, b, c = final(a, b, c)
	return c, b
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func mix(a, b, c uint32) (uint32, uint32, uint32) {
	a -= c
	a ^= bits.RotateLeft32(c, 4)
	c += b
	b -= a
	b ^= bits.RotateLeft32(a, 6)
	a += c
	c -= b
	c ^= bits.RotateLeft32(b, 8)
	b += a
	a -= c
	a ^= bits.RotateLeft32(c, 16)
	c += b
	b -= a
	b ^= bits.RotateLeft32(a, 19)
	a += c
	c -= b
	c ^= bits.RotateLeft32(b, 4)
	b += a
	return a, b, c
}

func final(a, b, c uint32) (uint32, uint32, uint32) {
	c ^= b
	c -= bits.RotateLeft32(b, 14)
	a ^= c
	a -= bits.RotateLeft32(c, 11)
	b ^= a
	b -= bits.RotateLeft32(a, 25)
	c ^= b
	c -= bits.RotateLeft32(b, 16)
	a ^= c
	a -= bits.RotateLeft32(c, 4)
	b ^= a
	b -= bits.RotateLeft32(a, 14)
	c ^= b
	c -= bits.RotateLeft32(b, 24)
	return a, b, c
}
