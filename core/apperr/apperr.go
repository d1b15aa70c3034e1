// Package apperr carries the error taxonomy shared by the sync engine, the
// radio pipeline and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 错误类别
type Kind int

const (
	Internal Kind = iota
	NotFound
	Upstream
	Unauthorized
	Malformed
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case Upstream:
		return "upstream"
	case Unauthorized:
		return "unauthorized"
	case Malformed:
		return "malformed"
	default:
		return "internal"
	}
}

// Error is a classified error. Message is safe to show to clients; Err is
// kept for logs only.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newf(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func NotFoundf(format string, args ...interface{}) *Error {
	return newf(NotFound, nil, format, args...)
}

func Upstreamf(err error, format string, args ...interface{}) *Error {
	return newf(Upstream, err, format, args...)
}

func Unauthorizedf(format string, args ...interface{}) *Error {
	return newf(Unauthorized, nil, format, args...)
}

func Malformedf(err error, format string, args ...interface{}) *Error {
	return newf(Malformed, err, format, args...)
}

func Internalf(err error, format string, args ...interface{}) *Error {
	return newf(Internal, err, format, args...)
}

// KindOf returns the kind of the first *Error in err's chain, Internal otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// PublicMessage 返回可以暴露给客户端的错误信息
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal server error"
}

// HTTPStatus maps err to a response status.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case NotFound:
		return http.StatusNotFound
	case Unauthorized:
		return http.StatusUnauthorized
	case Malformed:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
