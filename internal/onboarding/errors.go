package onboarding

import "errors"

var (
	ErrNoSession          = errors.New("no_session")
	ErrTermsRequired      = errors.New("terms_required")
	ErrNicknameRequired   = errors.New("nickname_required")
	ErrFileTooLarge       = errors.New("file_too_large")
	ErrUnsupportedFile    = errors.New("unsupported_file_type")
	ErrUpload             = errors.New("upload_failed")
	ErrSaveProfile        = errors.New("profile_save_failed")
	ErrVerificationFailed = errors.New("verification_failed")
	ErrInProgress         = errors.New("onboarding_in_progress")
)
