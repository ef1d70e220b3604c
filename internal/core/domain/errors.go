package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a failure. The set is closed: the transport layer maps every
// kind to exactly one status.
type Kind uint8

const (
	KindInternal Kind = iota
	KindValidation
	KindInvalidCredentials
	KindAccountInactive
	KindInvalidToken
	KindTokenExpired
	KindInsufficientPermission
	KindDuplicateEntity
	KindNotFound
)

var kindNames = map[Kind]string{
	KindInternal:               "internal",
	KindValidation:             "validation",
	KindInvalidCredentials:     "invalid_credentials",
	KindAccountInactive:        "account_inactive",
	KindInvalidToken:           "invalid_token",
	KindTokenExpired:           "token_expired",
	KindInsufficientPermission: "insufficient_permission",
	KindDuplicateEntity:        "duplicate_entity",
	KindNotFound:               "not_found",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Kinds returns every defined kind, internal first.
func Kinds() []Kind {
	return []Kind{
		KindInternal,
		KindValidation,
		KindInvalidCredentials,
		KindAccountInactive,
		KindInvalidToken,
		KindTokenExpired,
		KindInsufficientPermission,
		KindDuplicateEntity,
		KindNotFound,
	}
}

// Error is a domain failure tagged with its Kind.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Msg != "" {
		return e.Msg + ": " + e.Err.Error()
	}
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound) holds
// for every not-found failure regardless of its message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// E builds a new error of the given kind.
func E(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap tags err with kind, keeping it reachable through errors.Unwrap.
func Wrap(kind Kind, msg string, err error) error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf reports the kind of err. Untagged errors are internal.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// Message returns the user-facing message carried by err, or "" for internal errors.
func Message(err error) string {
	var de *Error
	if errors.As(err, &de) && de.Kind != KindInternal {
		if de.Msg != "" {
			return de.Msg
		}
		return de.Kind.String()
	}
	return ""
}

var (
	ErrValidation             = &Error{Kind: KindValidation, Msg: "validation failed"}
	ErrInvalidCredentials     = &Error{Kind: KindInvalidCredentials, Msg: "invalid credentials"}
	ErrAccountInactive        = &Error{Kind: KindAccountInactive, Msg: "account is deactivated"}
	ErrInvalidToken           = &Error{Kind: KindInvalidToken, Msg: "invalid token"}
	ErrTokenExpired           = &Error{Kind: KindTokenExpired, Msg: "token expired"}
	ErrInsufficientPermission = &Error{Kind: KindInsufficientPermission, Msg: "insufficient permissions"}
	ErrDuplicateEntity        = &Error{Kind: KindDuplicateEntity, Msg: "entity already exists"}
	ErrNotFound               = &Error{Kind: KindNotFound, Msg: "not found"}

	ErrUserNotFound       = &Error{Kind: KindNotFound, Msg: "user not found"}
	ErrPermissionNotFound = &Error{Kind: KindNotFound, Msg: "permission not found"}
	ErrEmailExists        = &Error{Kind: KindDuplicateEntity, Msg: "email already exists"}
	ErrUsernameExists     = &Error{Kind: KindDuplicateEntity, Msg: "username already exists"}
	ErrPermissionExists   = &Error{Kind: KindDuplicateEntity, Msg: "permission with this name already exists"}
)
