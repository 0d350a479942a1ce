package counter

import (
	"github.com/pkg/errors"

	"github.com/code-payments/code-runtime/pkg/solana/binary"
)

// StateSize is the size of a counter account's data.
const StateSize = 4

// State is the data of a counter account, a single little-endian u32 that is
// layout compatible with its borsh encoding.
type State struct {
	Count uint32
}

func (obj State) Marshal() []byte {
	data := make([]byte, StateSize)

	var offset int
	binary.PutUint32(data[offset:], obj.Count, &offset)

	return data
}

func (obj *State) Unmarshal(data []byte) error {
	if len(data) != StateSize {
		return errors.Errorf("invalid counter state size: %d", len(data))
	}

	var offset int
	binary.GetUint32(data[offset:], &obj.Count, &offset)

	return nil
}

// Apply returns the state after one doubling. A zero count becomes one,
// anything else doubles and wraps around on overflow.
func Apply(s State) State {
	if s.Count == 0 {
		return State{Count: 1}
	}
	return State{Count: s.Count * 2}
}
