package services

import (
	"errors"

	"github.com/contactsbook/identity/internal/avatar"
)

var (
	// ErrInvalidInput is returned when required fields are missing.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmailInUse is returned when registering an email that already has an account.
	ErrEmailInUse = errors.New("email in use")

	// ErrInvalidCredentials covers unknown email, wrong password and
	// unverified account alike so callers cannot probe account state.
	ErrInvalidCredentials = errors.New("email or password is wrong")

	// ErrUnauthorized is returned for missing, expired or revoked session
	// tokens and for unknown verification tokens.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrAlreadyVerified is returned when resending verification to a verified account.
	ErrAlreadyVerified = errors.New("verification has already been passed")

	// ErrUnsupportedImage is returned when an avatar upload cannot be decoded.
	ErrUnsupportedImage = avatar.ErrUnsupportedImage
)
