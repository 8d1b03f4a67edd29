// Package failure describes client-visible errors and fatal connection failures.
package failure

// Classification is the top-level family of a status code.
type Classification uint8

const (
	ClientError Classification = iota + 1
	ClientNotification
	TransientError
	DatabaseError
)

// String returns the classification name used inside status codes.
func (c Classification) String() string {
	switch c {
	case ClientError:
		return "ClientError"
	case ClientNotification:
		return "ClientNotification"
	case TransientError:
		return "TransientError"
	case DatabaseError:
		return "DatabaseError"
	default:
		return "Unknown"
	}
}

// Status is a protocol status such as Neo.ClientError.Request.Invalid.
type Status struct {
	Classification Classification
	Category       string
	Title          string
}

// Code renders the dotted status code sent to clients.
func (s Status) Code() string {
	return "Neo." + s.Classification.String() + "." + s.Category + "." + s.Title
}

// String implements fmt.Stringer.
func (s Status) String() string { return s.Code() }

var (
	StatusRequestInvalid            = Status{ClientError, "Request", "Invalid"}
	StatusRequestInvalidFormat      = Status{ClientError, "Request", "InvalidFormat"}
	StatusUnauthorized              = Status{ClientError, "Security", "Unauthorized"}
	StatusAuthorizationExpired      = Status{ClientError, "Security", "AuthorizationExpired"}
	StatusCredentialsExpired        = Status{ClientError, "Security", "CredentialsExpired"}
	StatusSyntaxError               = Status{ClientError, "Statement", "SyntaxError"}
	StatusParameterMissing          = Status{ClientError, "Statement", "ParameterMissing"}
	StatusTransactionTerminated     = Status{ClientError, "Transaction", "Terminated"}
	StatusTransactionTimedOut       = Status{ClientError, "Transaction", "TransactionTimedOut"}
	StatusTransactionNotFound       = Status{ClientError, "Transaction", "TransactionNotFound"}
	StatusResultNotFound            = Status{ClientError, "Request", "ResultNotFound"}
	StatusInvalidBookmark           = Status{ClientError, "Transaction", "InvalidBookmark"}
	StatusTransactionCommitFailed   = Status{DatabaseError, "Transaction", "TransactionCommitFailed"}
	StatusTransactionRollbackFailed = Status{DatabaseError, "Transaction", "TransactionRollbackFailed"}
	StatusNoThreadsAvailable        = Status{TransientError, "Request", "NoThreadsAvailable"}
	StatusUnknownError              = Status{DatabaseError, "General", "UnknownError"}
)
