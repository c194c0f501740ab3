package ledger

import "errors"

// Kind classifies a failure for the caller
type Kind int

const (
	// KindCollaborator covers storage and value-transfer failures, and any error not raised by the ledger
	KindCollaborator Kind = iota
	KindValidation
	KindStateConflict
	KindArithmetic
	KindNotFound
	KindUnauthorized
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindStateConflict:
		return "state_conflict"
	case KindArithmetic:
		return "arithmetic"
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "collaborator"
	}
}

// Error is a typed ledger failure. Sentinels below are compared with errors.Is.
type Error struct {
	Code    string
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(code string, kind Kind, msg string) *Error {
	return &Error{Code: code, Kind: kind, Message: msg}
}

// Validation errors
var (
	ErrMarketIDTooLong      = newError("MarketIdTooLong", KindValidation, "market id exceeds 50 bytes")
	ErrInvalidMarketID      = newError("InvalidMarketId", KindValidation, "market id must not be empty")
	ErrDescriptionTooLong   = newError("DescriptionTooLong", KindValidation, "description exceeds 500 bytes")
	ErrInvalidMinBetAmount  = newError("InvalidMinBetAmount", KindValidation, "minimum bet amount must be greater than zero")
	ErrInvalidEndTime       = newError("InvalidEndTime", KindValidation, "end timestamp must be in the future")
	ErrBetAmountTooLow      = newError("BetAmountTooLow", KindValidation, "bet amount is below the market minimum")
	ErrInvalidOutcome       = newError("InvalidOutcome", KindValidation, "outcome must be YES or NO")
	ErrInvalidIdentity      = newError("InvalidIdentity", KindValidation, "identity must not be empty")
	ErrInvalidTransferValue = newError("InvalidTransferAmount", KindValidation, "transfer amount must be positive")
)

// State-conflict errors
var (
	ErrProtocolPaused             = newError("ProtocolPaused", KindStateConflict, "protocol is paused")
	ErrProtocolAlreadyInitialized = newError("ProtocolAlreadyInitialized", KindStateConflict, "protocol is already initialized")
	ErrMarketAlreadyExists        = newError("MarketAlreadyExists", KindStateConflict, "market already exists")
	ErrMarketAlreadyResolved      = newError("MarketAlreadyResolved", KindStateConflict, "market has already been resolved")
	ErrMarketExpired              = newError("MarketExpired", KindStateConflict, "market has expired")
	ErrMarketNotExpired           = newError("MarketNotExpired", KindStateConflict, "market has not reached its end timestamp")
	ErrMarketNotResolved          = newError("MarketNotResolved", KindStateConflict, "market is not resolved")
	ErrUserAlreadyPredicted       = newError("UserAlreadyPredicted", KindStateConflict, "user already placed a prediction on this market")
	ErrAlreadyClaimed             = newError("AlreadyClaimed", KindStateConflict, "winnings already claimed")
	ErrUserLost                   = newError("UserLost", KindStateConflict, "prediction did not win")
)

// Arithmetic errors
var (
	ErrMathOverflow = newError("MathOverflow", KindArithmetic, "arithmetic overflow")
)

// Lookup and authorization errors
var (
	ErrProtocolNotInitialized = newError("ProtocolNotInitialized", KindNotFound, "protocol is not initialized")
	ErrMarketNotFound         = newError("MarketNotFound", KindNotFound, "market not found")
	ErrStakeNotFound          = newError("StakeNotFound", KindNotFound, "no prediction found for user on this market")
	ErrAccountNotFound        = newError("AccountNotFound", KindNotFound, "account not found")
	ErrUnauthorized           = newError("Unauthorized", KindUnauthorized, "caller is not the authority")
)

// Collaborator errors raised by the value-transfer layer
var (
	ErrInsufficientFunds = newError("InsufficientFunds", KindCollaborator, "insufficient funds")
)

// KindOf classifies err. Errors not raised by the ledger are collaborator failures.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return KindCollaborator
}

// CodeOf returns the ledger error code for err, "Internal" for foreign errors and "" for nil
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var le *Error
	if errors.As(err, &le) {
		return le.Code
	}
	return "Internal"
}
