package runtime

import (
	"github.com/pkg/errors"

	"github.com/code-payments/code-runtime/pkg/solana"
)

// frameAccount is the runtime's immutable record of how a frame may use an
// account. Programs can scribble over their views' flags; authorization is
// always decided from here.
type frameAccount struct {
	id         solana.Identity
	view       *AccountView
	isSigner   bool
	isWritable bool
}

// frame is the runtime's record of one entrypoint execution.
type frame struct {
	program solana.Identity
	data    []byte

	// views are passed to the entrypoint in instruction order. Duplicate
	// account metas share a single view.
	views []*AccountView

	// accounts holds one entry per distinct account, in first appearance
	// order. Signer entries are the authority the frame carries, either from
	// real signatures or from derived addresses validated by its parent.
	accounts []frameAccount

	returnData []byte
}

func (f *frame) account(id solana.Identity) *frameAccount {
	for i := range f.accounts {
		if f.accounts[i].id == id {
			return &f.accounts[i]
		}
	}
	return nil
}

func (f *frame) holdsSignature(id solana.Identity) bool {
	acct := f.account(id)
	return acct != nil && acct.isSigner
}

func (f *frame) signers() []solana.Identity {
	var res []solana.Identity
	for _, acct := range f.accounts {
		if acct.isSigner {
			res = append(res, acct.id)
		}
	}
	return res
}

func (f *frame) reset() {
	*f = frame{}
}

// frameStack is a bounded stack of frames backed by a fixed arena. Frames are
// addressed by their index, which doubles as their depth minus one.
type frameStack struct {
	frames []frame
	height int
}

func newFrameStack(maxHeight int) *frameStack {
	return &frameStack{
		frames: make([]frame, maxHeight),
	}
}

func (s *frameStack) push(f frame) (int, error) {
	if s.height >= len(s.frames) {
		return 0, errors.Wrapf(solana.ErrInvocationDepthExceeded, "max stack height %d", len(s.frames))
	}

	index := s.height
	s.frames[index] = f
	s.height++
	return index, nil
}

func (s *frameStack) pop() {
	if s.height == 0 {
		return
	}

	s.height--
	s.frames[s.height].reset()
}

// at returns the frame at index, or nil if it is not on the stack.
func (s *frameStack) at(index int) *frame {
	if index < 0 || index >= s.height {
		return nil
	}
	return &s.frames[index]
}

func (s *frameStack) top() int {
	return s.height - 1
}

func (s *frameStack) full() bool {
	return s.height >= len(s.frames)
}
