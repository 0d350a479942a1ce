package query

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

var ErrInvalidCursor = errors.New("invalid cursor")

// Cursor is the big-endian id of the last record a caller has seen. An empty
// cursor starts from the beginning of the result set in either direction.
type Cursor []byte

var EmptyCursor = Cursor([]byte{})

func ToCursor(id uint64) Cursor {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return b
}

func (c Cursor) Validate() error {
	if len(c) != 0 && len(c) != 8 {
		return errors.Wrapf(ErrInvalidCursor, "length %d", len(c))
	}
	return nil
}

func (c Cursor) ToUint64() uint64 {
	return binary.BigEndian.Uint64(c)
}
