package runtime

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/code-runtime/pkg/metrics"
	"github.com/code-payments/code-runtime/pkg/solana"
)

// AuthorityProof lets a program vouch for an address derived from its own
// identity. The runtime recomputes the address from the seeds and bump under
// the invoking program's identity, never anyone else's.
type AuthorityProof struct {
	Seeds [][]byte
	Bump  uint8
}

// CalleeResult is what a successful cross-program invocation hands back.
type CalleeResult struct {
	Program    solana.Identity
	ReturnData []byte
}

// InvocationRecord describes one entrypoint dispatch within a transaction.
type InvocationRecord struct {
	// Depth is the stack height of the dispatched frame, 1 for the top level
	Depth   int
	Program solana.Identity
	Signers []solana.Identity
}

// InvocationContext is a program's handle onto the runtime for the duration
// of a single entrypoint execution. It must not be retained once the
// entrypoint returns.
type InvocationContext struct {
	exec  *executor
	index int
}

// ProgramID returns the identity of the executing program.
func (c *InvocationContext) ProgramID() solana.Identity {
	if f := c.frame(); f != nil {
		return f.program
	}
	return solana.ZeroIdentity
}

// Depth returns the stack height of the executing frame. The top level
// instruction runs at depth 1.
func (c *InvocationContext) Depth() int {
	return c.index + 1
}

// IsSigner reports whether the executing frame carries id's authority.
func (c *InvocationContext) IsSigner(id solana.Identity) bool {
	f := c.frame()
	return f != nil && f.holdsSignature(id)
}

// Log appends a program log line to the transaction's logs.
func (c *InvocationContext) Log(format string, args ...interface{}) {
	c.exec.appendLog("Program log: " + fmt.Sprintf(format, args...))
}

// SetReturnData sets the data handed back to the invoking program.
func (c *InvocationContext) SetReturnData(data []byte) {
	if f := c.frame(); f != nil {
		f.returnData = cloneBytes(data)
	}
}

// Invoke dispatches ix to another program on behalf of the executing one.
//
// Every account meta must name an account the caller holds, and may not ask
// for write access the caller lacks. A signer meta must either carry a
// signature the caller already holds, or be an address one of proofs derives
// from the caller's own program identity. Nothing is dispatched when any of
// these checks fail.
//
// Errors returned by the callee are forwarded unchanged. Writes the callee
// was entitled to make are kept even when it fails.
func (c *InvocationContext) Invoke(ix solana.Instruction, proofs ...AuthorityProof) (*CalleeResult, error) {
	e := c.exec

	caller := c.frame()
	if caller == nil || c.index != e.stack.top() {
		return nil, errors.Wrap(solana.ErrInvalidArgument, "invocation context is not executing")
	}

	tracer := metrics.TraceMethodCall(e.ctx, metricsStructName, "Invoke")
	tracer.AddAttributes(map[string]interface{}{
		"caller": caller.program.String(),
		"callee": ix.Program.String(),
		"depth":  c.Depth(),
	})
	defer tracer.End()

	log := e.log.WithFields(logrus.Fields{
		"method": "Invoke",
		"caller": caller.program.String(),
		"callee": ix.Program.String(),
		"depth":  c.Depth(),
	})

	if err := authorize(caller, ix, proofs); err != nil {
		log.WithError(err).Debug("rejected cross-program invocation")
		if errors.Is(err, solana.ErrMissingRequiredAuthority) {
			metrics.RecordEvent(e.ctx, authorityRejectedEventName, map[string]interface{}{
				"caller": caller.program.String(),
				"callee": ix.Program.String(),
			})
		}
		tracer.OnError(err)
		return nil, err
	}

	if e.stack.full() {
		err := errors.Wrapf(solana.ErrInvocationDepthExceeded, "max stack height %d", len(e.stack.frames))
		log.WithError(err).Debug("rejected cross-program invocation")
		tracer.OnError(err)
		return nil, err
	}

	// The callee must observe everything the caller wrote so far
	if err := e.syncFrame(caller); err != nil {
		tracer.OnError(err)
		return nil, err
	}

	entrypoint, ok := e.registry.Get(ix.Program)
	if !ok {
		err := errors.Wrapf(solana.ErrUnsupportedProgramID, "program %s", ix.Program)
		tracer.OnError(err)
		return nil, err
	}

	callee, err := e.newFrame(ix)
	if err != nil {
		tracer.OnError(err)
		return nil, err
	}

	returnData, err := e.dispatch(callee, entrypoint)

	// The caller observes the callee's writes, including those of a failed
	// callee that were not discarded.
	e.refreshFrame(caller)

	if err != nil {
		tracer.OnError(err)
		return nil, err
	}

	return &CalleeResult{
		Program:    ix.Program,
		ReturnData: returnData,
	}, nil
}

func (c *InvocationContext) frame() *frame {
	return c.exec.stack.at(c.index)
}

// authorize validates a sub instruction against the caller's frame.
func authorize(caller *frame, ix solana.Instruction, proofs []AuthorityProof) error {
	for _, meta := range ix.Accounts {
		held := caller.account(meta.PublicKey)
		if held == nil {
			return errors.Wrapf(solana.ErrMissingAccount, "account %s", meta.PublicKey)
		}

		if meta.IsWritable && !held.isWritable {
			return errors.Wrapf(solana.ErrPrivilegeEscalation, "account %s", meta.PublicKey)
		}

		if !meta.IsSigner || held.isSigner {
			continue
		}

		if !provesAuthority(meta.PublicKey, caller.program, proofs) {
			return errors.Wrapf(solana.ErrMissingRequiredAuthority, "signer %s", meta.PublicKey)
		}
	}

	return nil
}

// provesAuthority reports whether any proof derives address from program.
// Proofs that do not verify are ignored.
func provesAuthority(address, program solana.Identity, proofs []AuthorityProof) bool {
	for _, proof := range proofs {
		if solana.VerifyProgramAddress(address, program, proof.Seeds, proof.Bump) {
			return true
		}
	}
	return false
}

// executor holds the state of a single transaction's execution.
type executor struct {
	ctx         context.Context
	log         *logrus.Entry
	registry    *Registry
	accounts    map[solana.Identity]*account
	stack       *frameStack
	maxDataSize uint64

	logs        []string
	invocations []InvocationRecord
}

func newExecutor(ctx context.Context, log *logrus.Entry, registry *Registry, accounts map[solana.Identity]*account, maxDepth int, maxDataSize uint64) *executor {
	return &executor{
		ctx:         ctx,
		log:         log,
		registry:    registry,
		accounts:    accounts,
		stack:       newFrameStack(maxDepth),
		maxDataSize: maxDataSize,
	}
}

// executeInstruction runs a top level instruction. signers are the
// identities with verified signatures.
func (e *executor) executeInstruction(ix solana.Instruction, signers map[solana.Identity]struct{}) error {
	for _, meta := range ix.Accounts {
		if meta.IsSigner {
			if _, ok := signers[meta.PublicKey]; !ok {
				return errors.Wrapf(solana.ErrMissingRequiredSignature, "signer %s", meta.PublicKey)
			}
		}

		acct, ok := e.accounts[meta.PublicKey]
		if !ok {
			return errors.Wrapf(solana.ErrMissingAccount, "account %s", meta.PublicKey)
		}
		if meta.IsWritable && !acct.writable {
			return errors.Wrapf(solana.ErrPrivilegeEscalation, "account %s", meta.PublicKey)
		}
	}

	entrypoint, ok := e.registry.Get(ix.Program)
	if !ok {
		return errors.Wrapf(solana.ErrUnsupportedProgramID, "program %s", ix.Program)
	}

	f, err := e.newFrame(ix)
	if err != nil {
		return err
	}

	_, err = e.dispatch(f, entrypoint)
	return err
}

// newFrame builds fresh views over the transaction's accounts for ix.
// Duplicate metas share a view whose flags are the union of theirs.
func (e *executor) newFrame(ix solana.Instruction) (frame, error) {
	f := frame{
		program: ix.Program,
		data:    ix.Data,
		views:   make([]*AccountView, len(ix.Accounts)),
	}

	for i, meta := range ix.Accounts {
		acct, ok := e.accounts[meta.PublicKey]
		if !ok {
			return frame{}, errors.Wrapf(solana.ErrMissingAccount, "account %s", meta.PublicKey)
		}

		isWritable := meta.IsWritable && acct.writable

		if existing := f.account(meta.PublicKey); existing != nil {
			existing.isSigner = existing.isSigner || meta.IsSigner
			existing.isWritable = existing.isWritable || isWritable
			existing.view.IsSigner = existing.isSigner
			existing.view.IsWritable = existing.isWritable
			f.views[i] = existing.view
			continue
		}

		view := acct.newView(meta.IsSigner, isWritable)
		f.views[i] = view
		f.accounts = append(f.accounts, frameAccount{
			id:         meta.PublicKey,
			view:       view,
			isSigner:   meta.IsSigner,
			isWritable: isWritable,
		})
	}

	return f, nil
}

// dispatch pushes f, runs the entrypoint and syncs the frame's views back
// into the transaction's accounts before popping it.
func (e *executor) dispatch(f frame, entrypoint Entrypoint) ([]byte, error) {
	index, err := e.stack.push(f)
	if err != nil {
		return nil, err
	}
	defer e.stack.pop()

	pushed := e.stack.at(index)
	depth := index + 1

	e.invocations = append(e.invocations, InvocationRecord{
		Depth:   depth,
		Program: pushed.program,
		Signers: pushed.signers(),
	})
	e.appendLog(fmt.Sprintf("Program %s invoke [%d]", pushed.program, depth))

	e.log.WithFields(logrus.Fields{
		"method":  "dispatch",
		"program": pushed.program.String(),
		"depth":   depth,
	}).Trace("dispatching instruction")

	ictx := &InvocationContext{
		exec:  e,
		index: index,
	}
	err = callEntrypoint(entrypoint, ictx, pushed.views, pushed.data)

	// Legitimate writes are kept even when the program failed, in which case
	// its own error takes precedence over any sync violation.
	if syncErr := e.syncFrame(pushed); err == nil {
		err = syncErr
	}

	if err != nil {
		e.appendLog(fmt.Sprintf("Program %s failed: %v", pushed.program, err))
		return nil, err
	}

	e.appendLog(fmt.Sprintf("Program %s success", pushed.program))
	return pushed.returnData, nil
}

func callEntrypoint(entrypoint Entrypoint, ictx *InvocationContext, views []*AccountView, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("program %s panicked: %v", ictx.ProgramID(), r)
		}
	}()

	return entrypoint(ictx, views, data)
}

// syncFrame syncs every view of f, skipping the ones that violate the
// ownership rules. The first violation is returned.
func (e *executor) syncFrame(f *frame) error {
	if f == nil {
		return nil
	}

	var first error
	for i := range f.accounts {
		fa := &f.accounts[i]

		acct, ok := e.accounts[fa.id]
		if !ok {
			continue
		}

		if err := acct.sync(f.program, fa, e.maxDataSize); err != nil {
			e.log.WithError(err).WithFields(logrus.Fields{
				"method":  "syncFrame",
				"program": f.program.String(),
				"account": fa.id.String(),
			}).Debug("discarding illegal account modification")

			if first == nil {
				first = err
			}
		}
	}
	return first
}

// refreshFrame brings f's views up to date with the transaction's accounts.
func (e *executor) refreshFrame(f *frame) {
	if f == nil {
		return
	}

	for _, fa := range f.accounts {
		if acct, ok := e.accounts[fa.id]; ok {
			acct.refresh(fa.view)
		}
	}
}

func (e *executor) appendLog(line string) {
	e.logs = append(e.logs, line)
}
