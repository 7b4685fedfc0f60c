package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/contactsbook/identity/internal/services"
)

const (
	maxAvatarBytes  = 5 << 20
	formFieldAvatar = "avatar"
)

// AuthHandler exposes the identity lifecycle over HTTP.
type AuthHandler struct {
	identity *services.IdentityService
	validate *validator.Validate
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(identity *services.IdentityService) *AuthHandler {
	return &AuthHandler{
		identity: identity,
		validate: newValidator(),
	}
}

// AuthRouter registers user routes on the given router.
func AuthRouter(r chi.Router, identity *services.IdentityService) {
	handler := NewAuthHandler(identity)

	r.Post("/register", handler.Register)
	r.Get("/verify/{verificationToken}", handler.ConfirmVerification)
	r.Post("/verify", handler.ResendVerification)
	r.Post("/login", handler.Login)
	r.Group(func(r chi.Router) {
		r.Use(handler.RequireAuth)
		r.Get("/current", handler.Current)
		r.Post("/logout", handler.Logout)
		r.Patch("/avatars", handler.UpdateAvatar)
	})
}

// RequireAuth resolves the bearer token to a user and injects it into context.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return RequireAuth(h.identity)(next)
}

// RequireAuth constructs auth middleware for other routers.
func RequireAuth(identity *services.IdentityService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Not authorized")
				return
			}

			user, err := identity.Authenticate(r.Context(), tokenString)
			if err != nil {
				writeServiceError(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
		})
	}
}

// Register creates an unverified account.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	req.normalize()
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "missing required field")
		return
	}

	user, err := h.identity.Register(r.Context(), services.RegisterParams{
		Email:        req.Email,
		Password:     req.Password,
		Subscription: req.Subscription,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, UserResponse{User: user.Profile()})
}

// ConfirmVerification consumes the token from the emailed link.
func (h *AuthHandler) ConfirmVerification(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(chi.URLParam(r, "verificationToken"))
	if err := h.identity.ConfirmVerification(r.Context(), token); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Verification successful"})
}

// ResendVerification mails the verification link again.
func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req ResendVerificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "missing required field email")
		return
	}

	if err := h.identity.ResendVerification(r.Context(), req.Email); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Verification email sent"})
}

// Login verifies credentials and returns a session token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "missing required field")
		return
	}

	result, err := h.identity.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{Token: result.Token, User: result.User.Profile()})
}

// Current returns the authenticated user's profile.
func (h *AuthHandler) Current(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Not authorized")
		return
	}
	writeJSON(w, http.StatusOK, user.Profile())
}

// Logout revokes the caller's session.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Not authorized")
		return
	}
	if err := h.identity.Logout(r.Context(), user); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "You logout"})
}

// UpdateAvatar replaces the caller's avatar with the uploaded image.
// Only the file is read; other form fields are ignored.
func (h *AuthHandler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Not authorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAvatarBytes+(1<<20))
	if err := r.ParseMultipartForm(maxAvatarBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "avatar too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, _, err := r.FormFile(formFieldAvatar)
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing avatar file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxAvatarBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read avatar")
		return
	}
	if len(data) > maxAvatarBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "avatar too large")
		return
	}

	avatarURL, err := h.identity.UpdateAvatar(r.Context(), user, data)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, AvatarResponse{AvatarURL: avatarURL})
}

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, MessageResponse{Message: "ok"})
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
