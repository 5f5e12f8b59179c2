package domain

import "errors"

var (
	ErrNotFound         = errors.New("profile not found")
	ErrInvalidUserID    = errors.New("invalid user id")
	ErrNicknameRequired = errors.New("nickname required")
)
