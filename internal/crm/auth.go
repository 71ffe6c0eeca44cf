package crm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nextlevelbuilder/omniwp/internal/api"
	"github.com/nextlevelbuilder/omniwp/internal/notify"
	"github.com/nextlevelbuilder/omniwp/internal/session"
	"github.com/nextlevelbuilder/omniwp/internal/validate"
)

// Login signs in and stores the session. Cached data from any previous
// account is dropped first.
func (s *Service) Login(ctx context.Context, in api.LoginRequest) (*session.User, error) {
	if err := validate.Login(in); err != nil {
		return nil, err
	}
	resp, err := s.api.Login(ctx, in)
	if err != nil {
		return nil, s.fail(err, "Error al iniciar sesión")
	}
	if err := s.cache.Clear(ctx); err != nil {
		slog.Warn("cache clear failed", "error", err)
	}
	user := session.User{ID: resp.User.ID, Name: resp.User.Name, Email: resp.User.Email}
	if err := s.session.Login(ctx, user, resp.Token); err != nil {
		return nil, s.fail(fmt.Errorf("store session: %w", err), "Error al iniciar sesión")
	}
	notify.Success(s.notify, "¡Bienvenido!")
	return &user, nil
}

// Register creates an account. The user still has to log in afterwards.
func (s *Service) Register(ctx context.Context, in api.RegisterRequest) error {
	if err := validate.Register(in); err != nil {
		return err
	}
	if _, err := s.api.Register(ctx, in); err != nil {
		return s.fail(err, "Error al crear la cuenta")
	}
	notify.Success(s.notify, "¡Cuenta creada exitosamente!")
	return nil
}

// Logout clears the cache, closes push channels and forgets the session.
func (s *Service) Logout(ctx context.Context) error {
	if err := s.teardown(ctx); err != nil {
		return err
	}
	notify.Success(s.notify, "Sesión cerrada")
	return nil
}

// HandleUnauthorized tears the session down after the API rejected the token.
func (s *Service) HandleUnauthorized(ctx context.Context) {
	if !s.session.Snapshot().Authenticated() {
		return
	}
	slog.Warn("security.session_expired")
	if err := s.teardown(ctx); err != nil {
		slog.Warn("session teardown failed", "error", err)
	}
}

func (s *Service) teardown(ctx context.Context) error {
	if err := s.cache.Clear(ctx); err != nil {
		slog.Warn("cache clear failed", "error", err)
	}
	s.closePushes()
	if err := s.session.Logout(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}
