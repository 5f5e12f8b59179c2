package domain

import "errors"

var (
	ErrConversationNotFound = errors.New("conversation_not_found")
	ErrInvalidConversation  = errors.New("invalid_conversation_id")
	ErrEmptyContent         = errors.New("empty_content")
	ErrContentTooLong       = errors.New("content_too_long")
	ErrInvalidRole          = errors.New("invalid_role")
	ErrForbidden            = errors.New("conversation_forbidden")
)
