// Package crm is the application layer behind the CLI: it validates input,
// calls the API, keeps the query cache coherent and reports outcomes as toasts.
package crm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/nextlevelbuilder/omniwp/internal/api"
	"github.com/nextlevelbuilder/omniwp/internal/cache"
	"github.com/nextlevelbuilder/omniwp/internal/notify"
	"github.com/nextlevelbuilder/omniwp/internal/session"
	"github.com/nextlevelbuilder/omniwp/internal/validate"
)

// API is the subset of *api.Client the service uses.
type API interface {
	Login(ctx context.Context, in api.LoginRequest) (*api.AuthResponse, error)
	Register(ctx context.Context, in api.RegisterRequest) (*api.AuthResponse, error)
	Health(ctx context.Context) (*api.Health, error)

	ListClients(ctx context.Context) ([]api.ClientRecord, error)
	CreateClient(ctx context.Context, in api.ClientInput) (*api.ClientRecord, error)
	UpdateClient(ctx context.Context, id string, in api.ClientUpdate) (*api.ClientRecord, error)
	DeleteClient(ctx context.Context, id string) (string, error)

	ListOrders(ctx context.Context) ([]api.Order, error)
	CreateOrder(ctx context.Context, in api.OrderInput) (*api.Order, error)
	UpdateOrder(ctx context.Context, id string, in api.OrderUpdate) (*api.Order, error)
	DeleteOrder(ctx context.Context, id string) (string, error)

	GenerateTemplate(ctx context.Context, in api.TemplateRequest) (*api.TemplateResponse, error)
	SendMessage(ctx context.Context, in api.SendRequest) (*api.SendResponse, error)
	ListMessages(ctx context.Context, f api.MessageFilters) ([]api.Message, error)

	WhatsAppStatus(ctx context.Context) (*api.WhatsAppStatus, error)
	ConnectWhatsApp(ctx context.Context) (*api.ConnectResponse, error)
	DisconnectWhatsApp(ctx context.Context) (*api.ActionResponse, error)
	RestoreWhatsApp(ctx context.Context) (*api.ConnectResponse, error)
	WhatsAppInfo(ctx context.Context) (*api.WhatsAppInfo, error)
	WhatsAppAvailability(ctx context.Context) (*api.Availability, error)
	WhatsAppMessages(ctx context.Context, q api.WhatsAppMessagesQuery) (*api.WhatsAppMessages, error)
}

// Config wires a Service.
type Config struct {
	API      API
	Cache    *cache.Cache
	Session  *session.Manager
	Notifier notify.Notifier // optional
}

// Service is the CRM front end without its presentation.
type Service struct {
	api     API
	cache   *cache.Cache
	session *session.Manager
	notify  notify.Notifier

	mu       sync.Mutex
	pushes   map[int]io.Closer
	nextPush int
}

func New(cfg Config) *Service {
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Discard
	}
	return &Service{
		api:     cfg.API,
		cache:   cfg.Cache,
		session: cfg.Session,
		notify:  cfg.Notifier,
	}
}

// Session returns the session manager.
func (s *Service) Session() *session.Manager { return s.session }

// Health checks the backend.
func (s *Service) Health(ctx context.Context) (*api.Health, error) {
	return s.api.Health(ctx)
}

// AttachPush registers a push channel to close on logout. Call detach once
// the channel is closed by its owner.
func (s *Service) AttachPush(c io.Closer) (detach func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pushes == nil {
		s.pushes = make(map[int]io.Closer)
	}
	id := s.nextPush
	s.nextPush++
	s.pushes[id] = c
	return func() {
		s.mu.Lock()
		delete(s.pushes, id)
		s.mu.Unlock()
	}
}

func (s *Service) attachedPushes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pushes)
}

func (s *Service) closePushes() {
	s.mu.Lock()
	pushes := s.pushes
	s.pushes = nil
	s.mu.Unlock()
	for _, p := range pushes {
		if err := p.Close(); err != nil {
			slog.Debug("push close", "error", err)
		}
	}
}

func (s *Service) invalidate(ctx context.Context, resources ...string) {
	for _, r := range resources {
		if err := s.cache.Invalidate(ctx, r); err != nil {
			slog.Warn("cache invalidate failed", "resource", r, "error", err)
		}
	}
}

// CacheScope keys cached data by the signed-in user so accounts never see
// each other's entries.
func CacheScope(m *session.Manager) func() string {
	return func() string {
		if u := m.Snapshot().User; u != nil {
			return u.ID
		}
		return ""
	}
}

// ServeStale reports whether a cached value may stand in for a failed fetch.
// Auth failures never fall back to cached data.
func ServeStale(err error) bool {
	return !errors.Is(err, api.ErrUnauthorized) && !errors.Is(err, session.ErrNoToken)
}

// ErrorMessage returns the user-facing text for err: the server's message
// when it sent one, else fallback, else "Error desconocido".
func ErrorMessage(err error, fallback string) string {
	var fe validate.Errors
	if errors.As(err, &fe) && len(fe) > 0 {
		return fe[0].Message
	}
	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	if fallback != "" {
		return fallback
	}
	return "Error desconocido"
}

// fail emits an error toast unless err is a field validation error, which the
// caller shows next to the form.
func (s *Service) fail(err error, fallback string) error {
	var fe validate.Errors
	if !errors.As(err, &fe) {
		notify.Error(s.notify, ErrorMessage(err, fallback))
	}
	return err
}
