package common

// Kind identifies one of the public error variants from spec.md §7.
// Every component surfaces errors tagged with a Kind so the CLI, the
// daemon's structured logs, and embedding callers can switch on a
// stable value instead of string-matching.
type Kind string

const (
	KindAeadAuthFailure        Kind = "AeadAuthFailure"
	KindIntegrityFailure       Kind = "IntegrityFailure"
	KindSignatureFailure       Kind = "SignatureFailure"
	KindInsufficientShares     Kind = "InsufficientShares"
	KindInconsistentShares     Kind = "InconsistentShares"
	KindParameterError         Kind = "ParameterError"
	KindCurveError             Kind = "CurveError"
	KindSizeLimit              Kind = "SizeLimit"
	KindRngFailure             Kind = "RngFailure"
	KindRelayUnreachable       Kind = "RelayUnreachable"
	KindRelayRejected          Kind = "RelayRejected"
	KindQuorumNotMet           Kind = "QuorumNotMet"
	KindTimelockNotValid       Kind = "TimelockNotValid"
	KindNoUtxos                Kind = "NoUtxos"
	KindInsufficientValue      Kind = "InsufficientValue"
	KindInvalidStateTransition Kind = "InvalidStateTransition"
	KindIo                     Kind = "Io"
	KindChainUnreachable       Kind = "ChainUnreachable"
	KindWeakPassword           Kind = "WeakPassword"
	KindScriptConstructionError Kind = "ScriptConstructionError"
)

// Error is the common envelope every EchoLock component returns for a
// classified failure. Embedding the original error keeps errors.Is
// and errors.Unwrap working for callers that care about the cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError constructs a classified Error.
func NewError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind from err if it (or something it wraps) is
// an *Error, and reports ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	for err != nil {
		if ce, ok := err.(*Error); ok {
			e = ce
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if e == nil {
		return "", false
	}
	return e.Kind, true
}
