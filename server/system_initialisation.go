package server

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/jrsteele09/go-finance-server/internal/config"
	apperrors "github.com/jrsteele09/go-finance-server/internal/errors"
	"github.com/jrsteele09/go-finance-server/users"
	"github.com/rs/zerolog/log"
)

const defaultAdminName = "Administrator"

// InitialiseSystem creates the administrator account named by ADMIN_EMAIL when it does not
// exist yet. Without ADMIN_EMAIL nothing is created.
func (s *Server) InitialiseSystem(config config.Config) error {
	email := config.GetAdminEmail()
	if email == "" {
		return nil
	}

	generatedPassword, err := createAdmin(s.auth.Users(), email, config.GetAdminPassword())
	if err != nil {
		return fmt.Errorf("[Server InitialiseSystem] failed to bootstrap admin: %w", err)
	}
	if generatedPassword != "" {
		log.Warn().Str("email", email).Str("password", generatedPassword).Msg("Generated administrator password, change it after first login")
	}
	return nil
}

// createAdmin returns the generated password when it had to make one up, or "" when the
// account already existed or the configured password was used.
func createAdmin(repo users.UserRepo, email, password string) (generatedPassword string, err error) {
	existing, err := repo.GetByEmail(email)
	if err == nil {
		if existing.Role != users.RoleAdmin {
			log.Warn().Str("email", email).Msg("ADMIN_EMAIL belongs to a non-admin account")
		}
		return "", nil
	}
	if !apperrors.Is(err, apperrors.ErrUserNotFound) {
		return "", err
	}

	if password == "" {
		passwordBytes := make([]byte, 18)
		if _, err := rand.Read(passwordBytes); err != nil {
			return "", fmt.Errorf("[server createAdmin] failed to generate password: %w", err)
		}
		password = base64.RawURLEncoding.EncodeToString(passwordBytes)
		generatedPassword = password
	} else if err := users.ValidatePasswordStrength(password); err != nil {
		return "", apperrors.Configf("ADMIN_PASSWORD: %v", err)
	}

	passwordHash, err := users.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("[server createAdmin] failed to hash password: %w", err)
	}

	admin := &users.User{
		Email:        email,
		Name:         defaultAdminName,
		PasswordHash: passwordHash,
		Role:         users.RoleAdmin,
		Status:       users.StatusApproved,
		DateJoined:   time.Now(),
	}
	if err := repo.Upsert(admin); err != nil {
		return "", fmt.Errorf("[server createAdmin] failed to create admin: %w", err)
	}
	log.Info().Str("email", email).Str("user_id", admin.ID).Msg("Administrator account created")
	return generatedPassword, nil
}
