package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"github.com/contactsbook/identity/internal/logging"
	"github.com/contactsbook/identity/internal/services"
	"github.com/contactsbook/identity/types"
)

type contextKey string

const contextUserKey contextKey = "user"

func withUser(ctx context.Context, user types.User) context.Context {
	return context.WithValue(ctx, contextUserKey, user)
}

func userFromContext(ctx context.Context) (types.User, error) {
	user, ok := ctx.Value(contextUserKey).(types.User)
	if !ok || user.ID == "" {
		return types.User{}, errors.New("missing user")
	}
	return user, nil
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeServiceError maps identity errors to HTTP statuses. Anything not in
// the taxonomy is logged and reported as a server fault.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "missing required field")
	case errors.Is(err, services.ErrEmailInUse):
		writeError(w, http.StatusConflict, "Email in use")
	case errors.Is(err, services.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Email or password is wrong")
	case errors.Is(err, services.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "Not authorized")
	case errors.Is(err, services.ErrAlreadyVerified):
		writeError(w, http.StatusBadRequest, "Verification has already been passed")
	case errors.Is(err, services.ErrUnsupportedImage):
		writeError(w, http.StatusUnsupportedMediaType, "unsupported image")
	default:
		hlog.FromRequest(r).Error().Err(err).Str("route", logging.RoutePattern(r)).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
