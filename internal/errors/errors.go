package errors

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/victornm/adaptivequiz/internal/domain"
)

type Code codes.Code

const (
	CodeInvalidArgument    = Code(codes.InvalidArgument)
	CodeNotFound           = Code(codes.NotFound)
	CodeAlreadyExists      = Code(codes.AlreadyExists)
	CodeFailedPrecondition = Code(codes.FailedPrecondition)
	CodeAborted            = Code(codes.Aborted)
	CodeUnavailable        = Code(codes.Unavailable)
	CodeInternal           = Code(codes.Internal)
	CodeUnauthenticated    = Code(codes.Unauthenticated)
)

var code2http = map[Code]int{
	CodeInvalidArgument:    http.StatusBadRequest,
	CodeNotFound:           http.StatusNotFound,
	CodeAlreadyExists:      http.StatusConflict,
	CodeFailedPrecondition: http.StatusConflict,
	CodeAborted:            http.StatusConflict,
	CodeUnavailable:        http.StatusServiceUnavailable,
	CodeInternal:           http.StatusInternalServerError,
	CodeUnauthenticated:    http.StatusUnauthorized,
}

// kind2code maps the quiz error kinds to their transport code.
var kind2code = map[error]Code{
	domain.ErrInvalidArgument:        CodeInvalidArgument,
	domain.ErrSessionNotFound:        CodeNotFound,
	domain.ErrSessionAlreadyComplete: CodeFailedPrecondition,
	domain.ErrSessionNotComplete:     CodeFailedPrecondition,
	domain.ErrQuestionMismatch:       CodeAborted,
	domain.ErrNoQuestionsAvailable:   CodeNotFound,
	domain.ErrUserNotFound:           CodeNotFound,
	domain.ErrRepositoryUnavailable:  CodeUnavailable,
}

type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	err     error
}

func New(code Code, opts ...Option) *Error {
	e := &Error{
		Code:    code,
		Message: codes.Code(code).String(),
	}

	for _, opt := range opts {
		opt.apply(e)
	}

	return e
}

// Kind builds an error of one of the domain error kinds, e.g. domain.ErrSessionNotFound.
// The kind stays reachable with errors.Is.
func Kind(kind error, opts ...Option) *Error {
	code, ok := kind2code[kind]
	if !ok {
		code = CodeInternal
	}

	e := New(code, WithCause(kind), WithMessagef("%s", kind))
	for _, opt := range opts {
		opt.apply(e)
	}

	return e
}

// Unavailable reports a failed repository call.
func Unavailable(err error) *Error {
	return New(CodeUnavailable,
		WithCause(fmt.Errorf("%w: %w", domain.ErrRepositoryUnavailable, err)),
		WithMessagef("%s", domain.ErrRepositoryUnavailable),
	)
}

func (e *Error) Error() string {
	s := fmt.Sprintf("code: %d, message: %s", e.Code, e.Message)
	if e.err != nil {
		s += fmt.Sprintf(", err: %s", e.err)
	}

	return s
}

func (e *Error) Unwrap() error {
	return e.err
}

func (e *Error) GRPCStatus() *status.Status {
	return status.New(codes.Code(e.Code), e.Message)
}

func (e *Error) HTTPStatusCode() int {
	if c, ok := code2http[e.Code]; ok {
		return c
	}

	return http.StatusInternalServerError
}

// Convert returns err as an *Error. Bare domain kinds get their code, anything else becomes Internal.
func Convert(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}

	for kind := range kind2code {
		if errors.Is(err, kind) {
			return Kind(kind, WithCause(err))
		}
	}

	return Internal(err)
}

func Internal(err error) *Error {
	return New(CodeInternal, WithCause(err))
}

type Option interface {
	apply(*Error)
}

type optionFunc func(*Error)

func (f optionFunc) apply(e *Error) {
	f(e)
}

func WithCause(err error) Option {
	return optionFunc(func(e *Error) {
		e.err = err
	})
}

func WithMessagef(format string, args ...any) Option {
	return optionFunc(func(e *Error) {
		e.Message = fmt.Sprintf(format, args...)
	})
}
