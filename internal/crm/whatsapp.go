package crm

import (
	"context"
	"strconv"

	"github.com/nextlevelbuilder/omniwp/internal/api"
	"github.com/nextlevelbuilder/omniwp/internal/cache"
	"github.com/nextlevelbuilder/omniwp/internal/notify"
)

var whatsappResources = []string{
	cache.ResourceWhatsAppStatus,
	cache.ResourceWhatsAppInfo,
	cache.ResourceAvailability,
	cache.ResourceWhatsAppMessages,
}

func (s *Service) WhatsAppStatus(ctx context.Context) (*api.WhatsAppStatus, error) {
	return cache.Query(ctx, s.cache, cache.Key{Resource: cache.ResourceWhatsAppStatus}, s.api.WhatsAppStatus)
}

func (s *Service) WhatsAppInfo(ctx context.Context) (*api.WhatsAppInfo, error) {
	return cache.Query(ctx, s.cache, cache.Key{Resource: cache.ResourceWhatsAppInfo}, s.api.WhatsAppInfo)
}

func (s *Service) WhatsAppAvailability(ctx context.Context) (*api.Availability, error) {
	return cache.Query(ctx, s.cache, cache.Key{Resource: cache.ResourceAvailability}, s.api.WhatsAppAvailability)
}

func (s *Service) WhatsAppMessages(ctx context.Context, q api.WhatsAppMessagesQuery) (*api.WhatsAppMessages, error) {
	key := cache.Key{
		Resource: cache.ResourceWhatsAppMessages,
		Params:   cache.ParamsKey("limit", itoa(q.Limit), "offset", itoa(q.Offset), "direction", q.Direction),
	}
	return cache.Query(ctx, s.cache, key, func(ctx context.Context) (*api.WhatsAppMessages, error) {
		return s.api.WhatsAppMessages(ctx, q)
	})
}

// ConnectWhatsApp starts pairing. It is the connector behind the pairing
// view, which reports failures itself, so only the start is announced here.
func (s *Service) ConnectWhatsApp(ctx context.Context) (*api.ConnectResponse, error) {
	resp, err := s.api.ConnectWhatsApp(ctx)
	if err != nil {
		return nil, err
	}
	if resp.Success {
		notify.Info(s.notify, "Iniciando conexión de WhatsApp...")
		s.invalidate(ctx, whatsappResources...)
	}
	return resp, nil
}

func (s *Service) DisconnectWhatsApp(ctx context.Context) (*api.ActionResponse, error) {
	resp, err := s.api.DisconnectWhatsApp(ctx)
	if err != nil {
		notify.Error(s.notify, "Error al desconectar WhatsApp: "+ErrorMessage(err, ""))
		return nil, err
	}
	if !resp.Success {
		notify.Error(s.notify, orDefault(resp.Message, "Error al desconectar WhatsApp"))
		return resp, nil
	}
	s.invalidate(ctx, whatsappResources...)
	notify.Success(s.notify, "WhatsApp desconectado correctamente")
	return resp, nil
}

func (s *Service) RestoreWhatsApp(ctx context.Context) (*api.ConnectResponse, error) {
	resp, err := s.api.RestoreWhatsApp(ctx)
	if err != nil {
		notify.Error(s.notify, "Error al restaurar sesión: "+ErrorMessage(err, ""))
		return nil, err
	}
	if !resp.Success {
		notify.Error(s.notify, orDefault(resp.Message, "Error al restaurar sesión de WhatsApp"))
		return resp, nil
	}
	s.invalidate(ctx, whatsappResources...)
	notify.Success(s.notify, "Sesión de WhatsApp restaurada")
	return resp, nil
}

func itoa(n int) string {
	if n <= 0 {
		return ""
	}
	return strconv.Itoa(n)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
