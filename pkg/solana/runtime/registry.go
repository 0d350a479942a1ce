package runtime

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/code-payments/code-runtime/pkg/solana"
)

// Entrypoint executes a program's instruction. accounts is in the order of
// the instruction's account metas.
type Entrypoint func(ictx *InvocationContext, accounts []*AccountView, data []byte) error

// Registry maps program identities to their entrypoints. It is safe for
// concurrent use.
type Registry struct {
	mu       sync.RWMutex
	programs map[solana.Identity]Entrypoint
}

func NewRegistry() *Registry {
	return &Registry{
		programs: make(map[solana.Identity]Entrypoint),
	}
}

// Register adds a program. Registering the same program twice fails.
func (r *Registry) Register(program solana.Identity, entrypoint Entrypoint) error {
	if entrypoint == nil {
		return errors.New("entrypoint is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.programs[program]; ok {
		return errors.Errorf("program %s already registered", program)
	}
	r.programs[program] = entrypoint
	return nil
}

// MustRegister is like Register but panics on failure.
func (r *Registry) MustRegister(program solana.Identity, entrypoint Entrypoint) *Registry {
	if err := r.Register(program, entrypoint); err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) Get(program solana.Identity) (Entrypoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entrypoint, ok := r.programs[program]
	return entrypoint, ok
}
