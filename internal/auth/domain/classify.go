package domain

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"syscall"
)

type FailureKind string

const (
	FailureExpired FailureKind = "expired"
	FailureInvalid FailureKind = "invalid"
	FailureNetwork FailureKind = "network"
	FailureUnknown FailureKind = "unknown"
)

const (
	NoticeSessionExpired = "Your session has expired. Please sign in again."
	NoticeNetwork        = "We couldn't reach the server. Check your connection and try again."
	NoticeUnknown        = "Something went wrong while checking your session."
)

// Failure is the user-facing reading of an auth error.
type Failure struct {
	Kind        FailureKind `json:"kind"`
	Notice      string      `json:"notice"`
	ForceReauth bool        `json:"force_reauth"`
}

// Classify maps any auth-path error to a Failure. It never returns an
// unhandled kind.
func Classify(err error) Failure {
	switch {
	case err == nil:
		return Failure{}
	case errors.Is(err, ErrSessionExpired), errors.Is(err, ErrTokenExpired):
		return Failure{Kind: FailureExpired, Notice: NoticeSessionExpired, ForceReauth: true}
	case errors.Is(err, ErrInvalidSession), errors.Is(err, ErrInvalidToken),
		errors.Is(err, ErrSessionRevoked), errors.Is(err, ErrSessionNotFound):
		return Failure{Kind: FailureInvalid, Notice: NoticeSessionExpired, ForceReauth: true}
	case isNetworkErr(err):
		return Failure{Kind: FailureNetwork, Notice: NoticeNetwork}
	default:
		return Failure{Kind: FailureUnknown, Notice: NoticeUnknown}
	}
}

func isNetworkErr(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
