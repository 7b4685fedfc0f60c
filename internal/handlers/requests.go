package handlers

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/contactsbook/identity/types"
)

var emailPattern = regexp.MustCompile(`^([a-zA-Z0-9_\-]+)@([a-zA-Z0-9_\-]+)\.[a-zA-Z]{2,5}$`)

const emailTag = "contactemail"

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation(emailTag, func(fl validator.FieldLevel) bool {
		return emailPattern.MatchString(fl.Field().String())
	})
	return v
}

type RegisterRequest struct {
	Email        string             `json:"email" validate:"required,contactemail"`
	Password     string             `json:"password" validate:"required"`
	Subscription types.Subscription `json:"subscription" validate:"omitempty,oneof=starter pro business"`
}

func (r *RegisterRequest) normalize() {
	r.Email = strings.TrimSpace(r.Email)
	r.Subscription = types.Subscription(strings.TrimSpace(string(r.Subscription)))
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,contactemail"`
	Password string `json:"password" validate:"required"`
}

type ResendVerificationRequest struct {
	Email string `json:"email" validate:"required,contactemail"`
}

type UserResponse struct {
	User types.Profile `json:"user"`
}

type AuthResponse struct {
	Token string        `json:"token"`
	User  types.Profile `json:"user"`
}

type AvatarResponse struct {
	AvatarURL string `json:"avatarURL"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
