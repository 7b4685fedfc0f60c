package handlers

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/contactsbook/identity/internal/avatar"
	"github.com/contactsbook/identity/internal/metrics"
	"github.com/contactsbook/identity/internal/security"
	"github.com/contactsbook/identity/internal/services"
	"github.com/contactsbook/identity/internal/storage"
	"github.com/contactsbook/identity/types"
)

type testAPI struct {
	router http.Handler
	users  *memUsers
	mail   *outbox
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	users := &memUsers{byID: map[string]types.User{}}
	mail := &outbox{}

	tokens, err := security.NewTokenIssuer("handler-secret")
	require.NoError(t, err)
	backend, err := storage.NewLocalClient(t.TempDir())
	require.NoError(t, err)

	identity := services.NewIdentityService(services.IdentityDeps{
		Users:     users,
		Sessions:  &memSessions{byUser: map[string]types.Session{}},
		Hasher:    security.NewBcryptHasher(bcrypt.MinCost),
		Tokens:    tokens,
		Avatars:   avatar.NewProcessor(),
		Storage:   storage.NewStorage(backend, ""),
		Mail:      mail,
		Metrics:   metrics.New(prometheus.NewRegistry()),
		Logger:    zerolog.Nop(),
		PublicURL: "http://localhost:3000",
	})

	router := chi.NewRouter()
	router.Route("/api/users", func(r chi.Router) {
		AuthRouter(r, identity)
	})
	return &testAPI{router: router, users: users, mail: mail}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) pendingToken(t *testing.T, email string) string {
	t.Helper()
	a.users.mu.Lock()
	defer a.users.mu.Unlock()
	for _, user := range a.users.byID {
		if user.Email == email {
			token, ok := user.VerificationToken()
			require.True(t, ok)
			return token
		}
	}
	t.Fatalf("user %s not found", email)
	return ""
}

func (a *testAPI) loggedIn(t *testing.T, email, password string) string {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/users/register", "", map[string]string{"email": email, "password": password})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = a.do(t, http.MethodGet, "/api/users/verify/"+a.pendingToken(t, email), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/users/login", "", map[string]string{"email": email, "password": password})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var value T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &value))
	return value
}

func TestRegisterEndpoint(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/users/register", "", map[string]string{
		"email":    "ann@mail.com",
		"password": "secret1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decode[UserResponse](t, rec)
	assert.Equal(t, "ann@mail.com", resp.User.Email)
	assert.Equal(t, types.SubscriptionStarter, resp.User.Subscription)
	assert.Equal(t, 1, api.mail.count())

	rec = api.do(t, http.MethodPost, "/api/users/register", "", map[string]string{
		"email":    "ann@mail.com",
		"password": "other",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Email in use", decode[ErrorResponse](t, rec).Error)
}

func TestRegisterValidation(t *testing.T) {
	api := newTestAPI(t)

	tests := []struct {
		name string
		body any
	}{
		{name: "missing password", body: map[string]string{"email": "ann@mail.com"}},
		{name: "missing email", body: map[string]string{"password": "secret1"}},
		{name: "malformed email", body: map[string]string{"email": "ann.mail.com", "password": "secret1"}},
		{name: "unknown subscription", body: map[string]string{"email": "ann@mail.com", "password": "secret1", "subscription": "gold"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(t, http.MethodPost, "/api/users/register", "", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/users/register", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, api.mail.count())
}

func TestVerificationEndpoints(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/users/register", "", map[string]string{"email": "ann@mail.com", "password": "secret1"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/users/verify", "", map[string]string{"email": "ann@mail.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Verification email sent", decode[MessageResponse](t, rec).Message)
	assert.Equal(t, 2, api.mail.count())

	token := api.pendingToken(t, "ann@mail.com")
	rec = api.do(t, http.MethodGet, "/api/users/verify/"+token, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Verification successful", decode[MessageResponse](t, rec).Message)

	rec = api.do(t, http.MethodGet, "/api/users/verify/"+token, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/users/verify", "", map[string]string{"email": "ann@mail.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Verification has already been passed", decode[ErrorResponse](t, rec).Error)

	rec = api.do(t, http.MethodPost, "/api/users/verify", "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing required field email", decode[ErrorResponse](t, rec).Error)

	rec = api.do(t, http.MethodPost, "/api/users/verify", "", map[string]string{"email": "nobody@mail.com"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginRequiresVerification(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/users/register", "", map[string]string{"email": "ann@mail.com", "password": "secret1"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/users/login", "", map[string]string{"email": "ann@mail.com", "password": "secret1"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Email or password is wrong", decode[ErrorResponse](t, rec).Error)

	rec = api.do(t, http.MethodGet, "/api/users/verify/"+api.pendingToken(t, "ann@mail.com"), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/users/login", "", map[string]string{"email": "ann@mail.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/users/login", "", map[string]string{"email": "ann@mail.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[AuthResponse](t, rec)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "ann@mail.com", resp.User.Email)
}

func TestSessionEndpoints(t *testing.T) {
	api := newTestAPI(t)
	token := api.loggedIn(t, "ann@mail.com", "secret1")

	rec := api.do(t, http.MethodGet, "/api/users/current", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	profile := decode[types.Profile](t, rec)
	assert.Equal(t, "ann@mail.com", profile.Email)
	assert.Equal(t, types.SubscriptionStarter, profile.Subscription)

	rec = api.do(t, http.MethodPost, "/api/users/logout", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "You logout", decode[MessageResponse](t, rec).Message)

	rec = api.do(t, http.MethodGet, "/api/users/current", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = api.do(t, http.MethodPost, "/api/users/logout", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuthRejectsMalformedHeaders(t *testing.T) {
	api := newTestAPI(t)

	for _, header := range []string{"", "Bearer", "Basic abc", "Bearer not-a-jwt"} {
		req := httptest.NewRequest(http.MethodGet, "/api/users/current", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		api.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, header)
		assert.Equal(t, "Not authorized", decode[ErrorResponse](t, rec).Error)
	}
}

func multipartAvatar(t *testing.T, field string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(field, "avatar.png")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func pngImage(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for x := 0; x < 40; x++ {
		for y := 0; y < 20; y++ {
			img.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestUpdateAvatarEndpoint(t *testing.T) {
	api := newTestAPI(t)
	token := api.loggedIn(t, "ann@mail.com", "secret1")

	upload := func(field string, data []byte, bearer string) *httptest.ResponseRecorder {
		body, contentType := multipartAvatar(t, field, data)
		req := httptest.NewRequest(http.MethodPatch, "/api/users/avatars", body)
		req.Header.Set("Content-Type", contentType)
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}
		rec := httptest.NewRecorder()
		api.router.ServeHTTP(rec, req)
		return rec
	}

	rec := upload("avatar", pngImage(t), token)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[AvatarResponse](t, rec)
	assert.True(t, strings.HasPrefix(resp.AvatarURL, "avatars/"))
	assert.True(t, strings.HasSuffix(resp.AvatarURL, ".jpg"))

	rec = upload("avatar", []byte("plain text"), token)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	rec = upload("picture", pngImage(t), token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = upload("avatar", pngImage(t), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
