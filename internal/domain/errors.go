package domain

import (
	"errors"
)

var (
	ErrInvalidArgument        = errors.New("invalid argument")
	ErrSessionNotFound        = errors.New("session not found")
	ErrSessionAlreadyComplete = errors.New("session already complete")
	ErrSessionNotComplete     = errors.New("session not complete")
	ErrQuestionMismatch       = errors.New("question mismatch")
	ErrNoQuestionsAvailable   = errors.New("no questions available")
	ErrUserNotFound           = errors.New("user not found")
	ErrRepositoryUnavailable  = errors.New("repository unavailable")
)
