package domain

import "errors"

var (
	ErrNotFound        = errors.New("tool_not_found")
	ErrInvalidID       = errors.New("invalid_tool_id")
	ErrInvalidName     = errors.New("invalid_name")
	ErrInvalidCategory = errors.New("invalid_category")
	ErrInvalidURL      = errors.New("invalid_url")
	ErrInvalidKind     = errors.New("invalid_list_kind")
	ErrEmptyQuery      = errors.New("empty_query")
	ErrAlreadyApproved = errors.New("tool_already_approved")
)
