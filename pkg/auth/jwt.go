package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type ctxKey int

const userKey ctxKey = 1

// Identity is the claim set carried in issued tokens.
type Identity struct {
	UserID string
	Email  string
	Name   string
	Image  string
}

// WithUser adds an identity to the context
func WithUser(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, userKey, id)
}

// User extracts the identity from the context; ok=false for anonymous requests
func User(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(userKey).(Identity)
	return id, ok
}

// JWT wraps a signing secret for issuing/verifying tokens
type JWT struct{ secret []byte }

// New creates a new JWT signer/verifier.
func New(secret string) *JWT { return &JWT{secret: []byte(secret)} }

// Verify checks a token and returns the identity claims
func (j *JWT) Verify(tok string) (Identity, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tok, claims, func(token *jwt.Token) (interface{}, error) {
		return j.secret, nil
	})
	if err != nil {
		return Identity{}, err
	}
	uid, _ := claims["sub"].(string)
	if uid == "" {
		return Identity{}, errors.New("no sub")
	}
	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)
	image, _ := claims["image"].(string)
	return Identity{UserID: uid, Email: email, Name: name, Image: image}, nil
}

// Sign creates a token for the identity with the given TTL
func (j *JWT) Sign(id Identity, ttl time.Duration) (string, error) {
	if id.UserID == "" {
		return "", errors.New("empty user id")
	}
	claims := jwt.MapClaims{
		"sub":   id.UserID,
		"email": id.Email,
		"name":  id.Name,
		"image": id.Image,
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(ttl).Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(j.secret)
}
