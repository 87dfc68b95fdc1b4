package core

import "errors"

// Error kinds for domain errors. Callers branch on kinds, never on raw
// backend error text.
const (
	KindAuthentication = "authentication"
	KindTenantMissing  = "tenant_missing"
	KindNotFound       = "not_found"
	KindStorage        = "storage"
	KindValidation     = "validation"
)

// Error wraps a kind and human-readable message.
type Error struct {
	Kind    string
	Message string
	cause   error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// KindOf extracts the error kind, or "" for untyped errors.
func KindOf(err error) string {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

func authError(msg string) *Error {
	return &Error{Kind: KindAuthentication, Message: msg}
}

func tenantError(msg string) *Error {
	return &Error{Kind: KindTenantMissing, Message: msg}
}

func notFoundError(msg string, cause error) *Error {
	return &Error{Kind: KindNotFound, Message: msg, cause: cause}
}

func storageError(msg string, cause error) *Error {
	return &Error{Kind: KindStorage, Message: msg, cause: cause}
}

func validationError(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}
