package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/nishantshetty7/quizania-backend/internal/store"
	"github.com/nishantshetty7/quizania-backend/pkg/auth"
)

const refreshCookie = "jwt"

type AuthAPI struct {
	DB         *store.Postgres
	JWT        *auth.JWT
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type registerReq struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	PhoneNumber string `json:"phone_number"`
	Image       string `json:"image"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type googleReq struct {
	Email      string `json:"email"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	Picture    string `json:"picture"`
}
type tokenResp struct {
	AccessToken string      `json:"access_token"`
	User        authUserDTO `json:"user"`
}
type authUserDTO struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	Image     string `json:"image,omitempty"`
}

// Register handles signup; email, password and first name are required
func (a *AuthAPI) Register(w http.ResponseWriter, r *http.Request) {
	var req registerReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}
	req.Email = strings.TrimSpace(req.Email)

	// Basic validation
	if req.FirstName == "" || len(req.Password) < 8 || !strings.Contains(req.Email, "@") {
		http.Error(w, "email, password and first name are required", http.StatusBadRequest)
		return
	}

	_, err := a.DB.CreateUser(r.Context(), store.NewUser{
		Email:       req.Email,
		Password:    req.Password,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		PhoneNumber: req.PhoneNumber,
		Image:       req.Image,
	})
	if err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			http.Error(w, "email already in use", http.StatusConflict)
			return
		}
		http.Error(w, "registration failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]string{"message": "user registered"})
}

// Login verifies credentials, returns an access token and sets the refresh cookie
func (a *AuthAPI) Login(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}

	u, err := a.DB.VerifyUser(r.Context(), req.Email, req.Password)
	if err != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	if u.AuthType == store.AuthGoogle {
		// Registered through Google; password login is not available.
		http.Error(w, "use google sign-in for this account", http.StatusForbidden)
		return
	}

	a.issueTokens(w, u)
}

// GoogleLogin signs in (creating on first sight) a Google-verified identity
func (a *AuthAPI) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	var req googleReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		http.Error(w, "email is required", http.StatusBadRequest)
		return
	}

	u, err := a.DB.UpsertGoogleUser(r.Context(), req.Email, req.GivenName, req.FamilyName, req.Picture)
	if err != nil {
		http.Error(w, "login failed", http.StatusInternalServerError)
		return
	}
	if u.AuthType != store.AuthGoogle {
		http.Error(w, "account uses password authentication", http.StatusConflict)
		return
	}

	a.issueTokens(w, u)
}

// Logout clears the refresh cookie
func (a *AuthAPI) Logout(w http.ResponseWriter, r *http.Request) {
	if _, err := r.Cookie(refreshCookie); err != nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    "",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		Path:     "/",
	})
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the authenticated identity
func (a *AuthAPI) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.User(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, map[string]string{
		"userId": id.UserID,
		"email":  id.Email,
		"name":   id.Name,
	})
}

// issueTokens writes the access token in the body and the refresh token as an
// httponly cookie.
func (a *AuthAPI) issueTokens(w http.ResponseWriter, u store.User) {
	id := auth.Identity{UserID: u.ID, Email: u.Email, Name: u.FullName(), Image: u.Image}
	access, err := a.JWT.Sign(id, a.AccessTTL)
	if err != nil {
		http.Error(w, "token error", http.StatusInternalServerError)
		return
	}
	refresh, _ := a.JWT.Sign(id, a.RefreshTTL)

	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    refresh,
		MaxAge:   int(a.RefreshTTL / time.Second),
		HttpOnly: true,
		Secure:   true,
		Path:     "/",
	})
	writeJSON(w, tokenResp{
		AccessToken: access,
		User:        authUserDTO{ID: u.ID, Email: u.Email, FirstName: u.FirstName, Image: u.Image},
	})
}

// send JSON with proper headers
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
