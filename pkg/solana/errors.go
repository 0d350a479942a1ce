package solana

import (
	"fmt"

	"github.com/pkg/errors"
)

// TransactionErrorKey classifies a failure of an entire transaction.
//
// Source: https://github.com/solana-labs/solana/blob/fc2bf2d3b669d1c6655ae48b0a05f470938f3676/sdk/src/transaction/mod.rs#L37
type TransactionErrorKey string

const (
	TransactionErrorInternal               TransactionErrorKey = "Internal"               // Internal error
	TransactionErrorAccountInUse           TransactionErrorKey = "AccountInUse"           // An account is already being processed in another transaction in a way that does not support parallelism
	TransactionErrorProgramAccountNotFound TransactionErrorKey = "ProgramAccountNotFound" // Attempt to load a program that does not exist
	TransactionErrorDuplicateSignature     TransactionErrorKey = "DuplicateSignature"     // The transaction has been processed before
	TransactionErrorBlockhashNotFound      TransactionErrorKey = "BlockhashNotFound"      // The recent blockhash is unknown or has been expired
	TransactionErrorInstructionError       TransactionErrorKey = "InstructionError"       // An instruction failed, see InstructionError for the index
	TransactionErrorSignatureFailure       TransactionErrorKey = "SignatureFailure"       // Transaction did not pass signature verification
	TransactionErrorSanitizeFailure        TransactionErrorKey = "SanitizeFailure"        // Transaction message is malformed
)

// InstructionErrorKey classifies a failure of a single instruction.
//
// Source: https://github.com/solana-labs/solana/blob/4e2754341514cd181ae3f373cc2548bd22e918b8/sdk/program/src/instruction.rs#L23
type InstructionErrorKey string

const (
	InstructionErrorGenericError                InstructionErrorKey = "GenericError"
	InstructionErrorInvalidArgument             InstructionErrorKey = "InvalidArgument"
	InstructionErrorInvalidInstructionData      InstructionErrorKey = "InvalidInstructionData"
	InstructionErrorInvalidAccountData          InstructionErrorKey = "InvalidAccountData"
	InstructionErrorIncorrectProgramID          InstructionErrorKey = "IncorrectProgramId"
	InstructionErrorMissingRequiredSignature    InstructionErrorKey = "MissingRequiredSignature"
	InstructionErrorAccountAlreadyInitialized   InstructionErrorKey = "AccountAlreadyInitialized"
	InstructionErrorModifiedProgramID           InstructionErrorKey = "ModifiedProgramId"
	InstructionErrorExternalAccountDataModified InstructionErrorKey = "ExternalAccountDataModified"
	InstructionErrorReadonlyDataModified        InstructionErrorKey = "ReadonlyDataModified"
	InstructionErrorNotEnoughAccountKeys        InstructionErrorKey = "NotEnoughAccountKeys"
	InstructionErrorCustom                      InstructionErrorKey = "Custom"
	InstructionErrorUnsupportedProgramID        InstructionErrorKey = "UnsupportedProgramId"
	InstructionErrorCallDepth                   InstructionErrorKey = "CallDepth"
	InstructionErrorMissingAccount              InstructionErrorKey = "MissingAccount"
	InstructionErrorPrivilegeEscalation         InstructionErrorKey = "PrivilegeEscalation"
	InstructionErrorInvalidSeeds                InstructionErrorKey = "InvalidSeeds"
)

// Errors raised by the runtime and by programs while processing an
// instruction. Callee errors travel up the invocation chain unchanged, so
// callers match them with errors.Is.
var (
	// ErrMissingRequiredAuthority is returned when a sub-instruction marks an
	// account as a signer that the invoking program can neither prove with a
	// held signature nor derive from its own identity.
	ErrMissingRequiredAuthority = errors.New("cross-program invocation with unauthorized signer")

	ErrMissingRequiredSignature    = errors.New("missing required signature for instruction")
	ErrInvocationDepthExceeded     = errors.New("cross-program invocation call depth too deep")
	ErrMissingAccount              = errors.New("an account required by the instruction is missing")
	ErrPrivilegeEscalation         = errors.New("cross-program invocation with unauthorized writable account")
	ErrExternalAccountDataModified = errors.New("instruction modified data of an account it does not own")
	ErrReadonlyDataModified        = errors.New("instruction modified data of a read-only account")
	ErrModifiedProgramID           = errors.New("instruction illegally modified the program id of an account")
	ErrUnsupportedProgramID        = errors.New("unsupported program id")
	ErrInvalidInstructionData      = errors.New("invalid instruction data")
	ErrInvalidAccountData          = errors.New("invalid account data for instruction")
	ErrAccountAlreadyInitialized   = errors.New("account already initialized")
	ErrNotEnoughAccountKeys        = errors.New("insufficient account keys for instruction")
	ErrIncorrectProgramID          = errors.New("incorrect program id for instruction")
	ErrInvalidArgument             = errors.New("invalid program argument")
)

var instructionErrorKeys = []struct {
	err error
	key InstructionErrorKey
}{
	{ErrExhaustedBumpSpace, InstructionErrorInvalidSeeds},
	{ErrTooManySeeds, InstructionErrorInvalidSeeds},
	{ErrMaxSeedLengthExceeded, InstructionErrorInvalidSeeds},
	{ErrMissingRequiredAuthority, InstructionErrorPrivilegeEscalation},
	{ErrMissingRequiredSignature, InstructionErrorMissingRequiredSignature},
	{ErrInvocationDepthExceeded, InstructionErrorCallDepth},
	{ErrMissingAccount, InstructionErrorMissingAccount},
	{ErrPrivilegeEscalation, InstructionErrorPrivilegeEscalation},
	{ErrExternalAccountDataModified, InstructionErrorExternalAccountDataModified},
	{ErrReadonlyDataModified, InstructionErrorReadonlyDataModified},
	{ErrModifiedProgramID, InstructionErrorModifiedProgramID},
	{ErrUnsupportedProgramID, InstructionErrorUnsupportedProgramID},
	{ErrInvalidInstructionData, InstructionErrorInvalidInstructionData},
	{ErrInvalidAccountData, InstructionErrorInvalidAccountData},
	{ErrAccountAlreadyInitialized, InstructionErrorAccountAlreadyInitialized},
	{ErrNotEnoughAccountKeys, InstructionErrorNotEnoughAccountKeys},
	{ErrIncorrectProgramID, InstructionErrorIncorrectProgramID},
	{ErrInvalidArgument, InstructionErrorInvalidArgument},
}

// InstructionErrorKeyOf classifies err, which may be wrapped. Unknown errors
// are GenericError.
func InstructionErrorKeyOf(err error) InstructionErrorKey {
	if err == nil {
		return ""
	}

	var custom CustomError
	if errors.As(err, &custom) {
		return InstructionErrorCustom
	}

	for _, entry := range instructionErrorKeys {
		if errors.Is(err, entry.err) {
			return entry.key
		}
	}

	return InstructionErrorGenericError
}

// CustomError is the numerical error returned by a non-system program.
type CustomError int

func (c CustomError) Error() string {
	return fmt.Sprintf("custom program error: %x", int(c))
}

// InstructionError indicates an instruction returned an error in a transaction.
type InstructionError struct {
	Index int
	Err   error
}

func (i InstructionError) Error() string {
	return fmt.Sprintf("Error processing Instruction %d: %v", i.Index, i.Err)
}

func (i InstructionError) Unwrap() error {
	return i.Err
}

func (i InstructionError) ErrorKey() InstructionErrorKey {
	return InstructionErrorKeyOf(i.Err)
}

func (i InstructionError) CustomError() *CustomError {
	var ce CustomError
	if errors.As(i.Err, &ce) {
		return &ce
	}

	return nil
}

// TransactionError contains the transaction error details.
type TransactionError struct {
	key              TransactionErrorKey
	cause            error
	instructionError *InstructionError
}

// NewTransactionError returns a transaction level error, optionally carrying
// the underlying cause for logging.
func NewTransactionError(key TransactionErrorKey, cause ...error) *TransactionError {
	txErr := &TransactionError{
		key: key,
	}
	if len(cause) > 0 {
		txErr.cause = cause[0]
	}
	return txErr
}

func TransactionErrorFromInstructionError(err *InstructionError) *TransactionError {
	return &TransactionError{
		key:              TransactionErrorInstructionError,
		instructionError: err,
	}
}

func (t TransactionError) Error() string {
	if t.instructionError != nil {
		return t.instructionError.Error()
	}

	if t.cause != nil {
		return fmt.Sprintf("%s: %v", t.key, t.cause)
	}

	return string(t.key)
}

func (t TransactionError) Unwrap() error {
	if t.instructionError != nil {
		return *t.instructionError
	}
	return t.cause
}

func (t TransactionError) ErrorKey() TransactionErrorKey {
	return t.key
}

func (t TransactionError) InstructionError() *InstructionError {
	return t.instructionError
}
