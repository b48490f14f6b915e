package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"chatapp/core"
	"chatapp/storage"

	"golang.org/x/crypto/bcrypt"
)

// SignupRequest is the body of POST /api/auth/signup
type SignupRequest struct {
	FullName string `json:"fullName" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// LoginRequest is the body of POST /api/auth/login
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// UpdateProfileRequest is the body of PUT /api/auth/update-profile
type UpdateProfileRequest struct {
	ProfilePic string `json:"profilePic" validate:"required"`
}

// MessageResponse is a plain confirmation body
type MessageResponse struct {
	Message string `json:"message"`
}

var signupMessages = fieldMessages{
	"*.required":   "All fields are required",
	"password.min": "Password must be at least 6 characters",
	"email.email":  "Invalid email format",
}

var loginMessages = fieldMessages{
	"*.required": "All fields are required",
}

var profileMessages = fieldMessages{
	"*.required": "Profile pic is required",
}

// signup creates an account and starts a session
func (a *API) signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := decodeJSONBody(r, &req); err != nil {
		a.writeBodyError(w, err)
		return
	}
	req.FullName = strings.TrimSpace(req.FullName)
	req.Email = core.NormalizeEmail(req.Email)

	if err := a.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, validationMessage(err, signupMessages), nil, a.logger)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), a.config.Auth.BcryptCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternalError, "Internal server error", err, a.logger)
		return
	}

	user := core.NewUser(req.FullName, req.Email, string(hash))

	ctx, cancel := context.WithTimeout(r.Context(), core.DBOperationTimeout)
	defer cancel()
	if err := a.users.CreateUser(ctx, user); err != nil {
		writeStorageError(w, err, a.logger)
		return
	}

	if !a.startSession(w, user) {
		return
	}
	a.cacheUser(user)

	LogWithRequestID(r, a.logger).Infow("User signed up", "user_id", user.ID)
	respondJSON(w, user, http.StatusCreated)
}

// login verifies credentials and starts a session
func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSONBody(r, &req); err != nil {
		a.writeBodyError(w, err)
		return
	}
	req.Email = core.NormalizeEmail(req.Email)

	if err := a.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, validationMessage(err, loginMessages), nil, a.logger)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), core.DBOperationTimeout)
	defer cancel()

	user, err := a.users.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			writeError(w, http.StatusBadRequest, CodeUnauthorized, "Invalid credentials", nil, a.logger)
			return
		}
		writeStorageError(w, err, a.logger)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		writeError(w, http.StatusBadRequest, CodeUnauthorized, "Invalid credentials", nil, a.logger)
		return
	}

	if !a.startSession(w, user) {
		return
	}
	a.cacheUser(user)

	LogWithRequestID(r, a.logger).Infow("User logged in", "user_id", user.ID)
	respondJSON(w, user, http.StatusOK)
}

// logout revokes the current token, if any, and clears the cookie
func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	if token := GetCookies(r.Context())[core.AuthCookieName]; token != "" {
		if claims, err := validateJWT(token, a.config); err == nil {
			a.revokeToken(r.Context(), claims.ID, claims.ExpiresAt.Time)
		}
	}

	a.clearAuthCookie(w)
	respondJSON(w, MessageResponse{Message: "Logged out successfully"}, http.StatusOK)
}

// updateProfile sets the caller's profile picture
func (a *API) updateProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := GetUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Unauthorized - No Token Provided", nil, a.logger)
		return
	}

	var req UpdateProfileRequest
	if err := decodeJSONBody(r, &req); err != nil {
		a.writeBodyError(w, err)
		return
	}
	req.ProfilePic = strings.TrimSpace(req.ProfilePic)
	if err := a.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, validationMessage(err, profileMessages), nil, a.logger)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), core.DBOperationTimeout)
	defer cancel()

	updated, err := a.users.UpdateProfilePic(ctx, user.ID, req.ProfilePic)
	if err != nil {
		writeStorageError(w, err, a.logger)
		return
	}
	a.cacheUser(updated)

	respondJSON(w, updated, http.StatusOK)
}

// checkAuth returns the authenticated user
func (a *API) checkAuth(w http.ResponseWriter, r *http.Request) {
	user, ok := GetUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Unauthorized - No Token Provided", nil, a.logger)
		return
	}
	respondJSON(w, user, http.StatusOK)
}

// startSession issues a token and sets the cookie. It reports false after
// writing an error response.
func (a *API) startSession(w http.ResponseWriter, user *core.User) bool {
	token, _, err := generateJWT(user.ID, a.config)
	if err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternalError, "Internal server error", err, a.logger)
		return false
	}
	a.setAuthCookie(w, token)
	return true
}
