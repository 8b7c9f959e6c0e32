package store

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrEmailTaken    = errors.New("email taken")
	ErrBadCredential = errors.New("invalid credentials")
)

// normEmail trims and lowercases the email (needed if DB col isnt citext)
func normEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// NewUser carries the fields accepted at registration.
type NewUser struct {
	Email       string
	Password    string
	FirstName   string
	LastName    string
	PhoneNumber string
	Image       string
	AuthType    string
}

// CreateUser inserts a new user with a hashed password
func (p *Postgres) CreateUser(ctx context.Context, nu NewUser) (User, error) {
	nu.Email = normEmail(nu.Email)
	if nu.Email == "" || nu.Password == "" {
		return User{}, errors.New("missing email or password")
	}
	if nu.AuthType == "" {
		nu.AuthType = AuthRegular
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(nu.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}

	row := p.pool.QueryRow(ctx, `
		INSERT INTO users (email, password_hash, first_name, last_name, phone_number, image, auth_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (email) DO NOTHING
		RETURNING id, email, first_name, last_name, phone_number, image, auth_type, is_active, created_at
	`, nu.Email, string(hash), nu.FirstName, nu.LastName, nu.PhoneNumber, nu.Image, nu.AuthType)

	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrEmailTaken
	}
	return u, err
}

// GetUserByEmail returns the user + hashed password for login verification
func (p *Postgres) GetUserByEmail(ctx context.Context, email string) (User, string, error) {
	email = normEmail(email)

	row := p.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, first_name, last_name, phone_number, image, auth_type, is_active, created_at
		FROM users
		WHERE email = $1
	`, email)

	var u User
	var hash string
	err := row.Scan(&u.ID, &u.Email, &hash, &u.FirstName, &u.LastName, &u.PhoneNumber,
		&u.Image, &u.AuthType, &u.IsActive, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, "", ErrNotFound
		}
		return User{}, "", err
	}
	return u, hash, nil
}

// VerifyUser checks email + password match
func (p *Postgres) VerifyUser(ctx context.Context, email, password string) (User, error) {
	u, hash, err := p.GetUserByEmail(ctx, email)
	if err != nil {
		return User{}, ErrBadCredential
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return User{}, ErrBadCredential
	}

	return u, nil
}

// UpsertGoogleUser returns the existing account for email or creates an
// active google-typed one. Existing password accounts are returned as-is so
// the handler can refuse the cross-type login.
func (p *Postgres) UpsertGoogleUser(ctx context.Context, email, firstName, lastName, image string) (User, error) {
	email = normEmail(email)
	if email == "" {
		return User{}, errors.New("missing email")
	}

	u, _, err := p.GetUserByEmail(ctx, email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return User{}, err
	}

	// No local password for social accounts; derive an unusable one.
	return p.CreateUser(ctx, NewUser{
		Email:     email,
		Password:  email + "_" + firstName,
		FirstName: firstName,
		LastName:  lastName,
		Image:     image,
		AuthType:  AuthGoogle,
	})
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.PhoneNumber,
		&u.Image, &u.AuthType, &u.IsActive, &u.CreatedAt)
	return u, err
}
