// Package binary holds the little-endian field helpers used by program
// instruction and account layouts. Every helper advances the caller's offset
// by the width of the field it handled.
package binary

import (
	"encoding/binary"

	"github.com/code-payments/code-runtime/pkg/solana"
)

func PutKey32(dst []byte, src solana.Identity, offset *int) {
	copy(dst, src[:])
	*offset += solana.IdentitySize
}

func PutUint64(dst []byte, v uint64, offset *int) {
	binary.LittleEndian.PutUint64(dst, v)
	*offset += 8
}

func PutUint32(dst []byte, v uint32, offset *int) {
	binary.LittleEndian.PutUint32(dst, v)
	*offset += 4
}

func PutUint8(dst []byte, v uint8, offset *int) {
	dst[0] = v
	*offset += 1
}

func GetKey32(src []byte, dst *solana.Identity, offset *int) {
	copy(dst[:], src)
	*offset += solana.IdentitySize
}

func GetUint64(src []byte, dst *uint64, offset *int) {
	*dst = binary.LittleEndian.Uint64(src)
	*offset += 8
}

func GetUint32(src []byte, dst *uint32, offset *int) {
	*dst = binary.LittleEndian.Uint32(src)
	*offset += 4
}

func GetUint8(src []byte, dst *uint8, offset *int) {
	*dst = src[0]
	*offset += 1
}
