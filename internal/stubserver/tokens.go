package stubserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"orgsync/backend/sqlite"
	"orgsync/internal/utils"
)

// Token types carried in the token_type claim
const (
	accessToken  = "access"
	refreshToken = "refresh"
)

// Claims are the JWT claims issued by the server
type Claims struct {
	TokenType string `json:"token_type"`
	Username  string `json:"username"`
	jwt.RegisteredClaims
}

type contextKey struct{}

// userFrom returns the username authenticated by requireAccessToken
func userFrom(ctx context.Context) string {
	u, _ := ctx.Value(contextKey{}).(string)
	return u
}

func (s *Server) issue(username, tokenType string) (string, error) {
	ttl := s.cfg.AccessTokenTTL
	if tokenType == refreshToken {
		ttl = s.cfg.RefreshTokenTTL
	}
	now := s.cfg.Now()
	claims := Claims{
		TokenType: tokenType,
		Username:  username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.Secret)
}

func (s *Server) parse(token, tokenType string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.cfg.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.cfg.Now))
	if err != nil {
		return nil, err
	}
	if claims.TokenType != tokenType {
		return nil, errors.New("wrong token type")
	}
	return claims, nil
}

// requireAccessToken rejects requests without a valid bearer access token
func (s *Server) requireAccessToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeDetail(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
			return
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			writeDetail(w, http.StatusUnauthorized, "Authorization header must contain a Bearer token.")
			return
		}

		claims, err := s.parse(strings.TrimSpace(token), accessToken)
		if err != nil {
			utils.Debugf("stub: rejected token: %v", err)
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"detail": "Given token not valid for any token type",
				"code":   "token_not_valid",
			})
			return
		}
		ctx := context.WithValue(r.Context(), contextKey{}, claims.Username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// =============================================================================
// Endpoints
// =============================================================================

func decodeStrings(r *http.Request) (map[string]string, error) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(body))
	for k, v := range body {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out, nil
}

func requireFields(body map[string]string, errs fieldErrors, names ...string) {
	for _, name := range names {
		if strings.TrimSpace(body[name]) == "" {
			errs.add(name, "This field is required.")
		}
	}
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	body, err := decodeStrings(r)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "JSON parse error")
		return
	}
	errs := fieldErrors{}
	requireFields(body, errs, "username", "password")
	if len(errs) > 0 {
		writeFieldErrors(w, errs)
		return
	}

	user, err := s.store.GetUser(r.Context(), body["username"])
	if err == nil {
		err = bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(body["password"]))
	}
	if err != nil {
		if !errors.Is(err, sqlite.ErrNotFound) && !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			utils.Errorf("stub: token lookup: %v", err)
			writeDetail(w, http.StatusInternalServerError, "A server error occurred.")
			return
		}
		writeDetail(w, http.StatusUnauthorized, "No active account found with the given credentials")
		return
	}

	access, err := s.issue(user.Username, accessToken)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "A server error occurred.")
		return
	}
	refresh, err := s.issue(user.Username, refreshToken)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "A server error occurred.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access": access, "refresh": refresh})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	body, err := decodeStrings(r)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "JSON parse error")
		return
	}
	errs := fieldErrors{}
	requireFields(body, errs, "refresh")
	if len(errs) > 0 {
		writeFieldErrors(w, errs)
		return
	}

	claims, err := s.parse(body["refresh"], refreshToken)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"detail": "Token is invalid or expired",
			"code":   "token_not_valid",
		})
		return
	}
	access, err := s.issue(claims.Username, accessToken)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "A server error occurred.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access": access})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	body, err := decodeStrings(r)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "JSON parse error")
		return
	}

	errs := fieldErrors{}
	requireFields(body, errs, "username", "password", "password2")
	if p := body["password"]; p != "" && len(p) < MinPasswordLength {
		errs.add("password", "This password is too short. It must contain at least 8 characters.")
	}
	if body["password"] != body["password2"] {
		errs.add("password", "Password fields didn't match.")
	}
	if len(errs) > 0 {
		writeFieldErrors(w, errs)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(body["password"]), s.cfg.BcryptCost)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "A server error occurred.")
		return
	}
	username := strings.TrimSpace(body["username"])
	if err := s.store.CreateUser(r.Context(), username, body["email"], hash); err != nil {
		if errors.Is(err, sqlite.ErrUserExists) {
			errs.add("username", "A user with that username already exists.")
			writeFieldErrors(w, errs)
			return
		}
		utils.Errorf("stub: creating user: %v", err)
		writeDetail(w, http.StatusInternalServerError, "A server error occurred.")
		return
	}
	utils.Infof("stub: registered %s", username)
	writeJSON(w, http.StatusCreated, map[string]string{"username": username, "email": body["email"]})
}
