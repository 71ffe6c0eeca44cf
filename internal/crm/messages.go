package crm

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/nextlevelbuilder/omniwp/internal/api"
	"github.com/nextlevelbuilder/omniwp/internal/cache"
	"github.com/nextlevelbuilder/omniwp/internal/notify"
	"github.com/nextlevelbuilder/omniwp/internal/validate"
)

// ErrNotFound is returned when a referenced client or order does not exist.
var ErrNotFound = errors.New("client or order not found")

// GenerateMessage renders a template preview for a client and order.
func (s *Service) GenerateMessage(ctx context.Context, in api.TemplateRequest) (*api.TemplateResponse, error) {
	if err := validate.Template(in); err != nil {
		return nil, err
	}
	resp, err := s.api.GenerateTemplate(ctx, in)
	if err != nil {
		return nil, s.fail(err, "Error al generar el mensaje")
	}
	notify.Success(s.notify, "Mensaje generado")
	return resp, nil
}

// SendMessage sends a templated message. The client and order are looked up
// to fill the template variables and to check the client has a phone.
func (s *Service) SendMessage(ctx context.Context, in api.SendRequest) (*api.SendResponse, error) {
	var client *api.ClientRecord
	var order *api.Order
	if in.ClientID != "" && in.OrderID != "" {
		var okC, okO bool
		var err error
		if client, okC, err = s.Client(ctx, in.ClientID); err != nil {
			return nil, s.fail(err, "Error al enviar mensaje")
		}
		if order, okO, err = s.Order(ctx, in.OrderID); err != nil {
			return nil, s.fail(err, "Error al enviar mensaje")
		}
		if !okC || !okO {
			notify.Error(s.notify, "Error: No se encontraron los datos del cliente o pedido")
			return nil, ErrNotFound
		}
	}

	phone := ""
	if client != nil {
		phone = client.Phone
		if in.Variables.ClientName == "" {
			in.Variables.ClientName = client.Name
		}
	}
	if order != nil && in.Variables.OrderDescription == "" {
		in.Variables.OrderDescription = order.Description
	}
	if err := validate.Send(in, phone); err != nil {
		return nil, err
	}

	resp, err := s.api.SendMessage(ctx, in)
	if err != nil {
		notify.Error(s.notify, "Error al enviar mensaje: "+ErrorMessage(err, ""))
		return nil, err
	}
	s.invalidate(ctx, cache.ResourceMessages, cache.ResourceWhatsAppMessages)
	if resp.Channel == "whatsapp" {
		notify.Success(s.notify, "Mensaje enviado por WhatsApp")
	} else {
		notify.Success(s.notify, "Mensaje enviado")
	}
	return resp, nil
}

// HistoryQuery selects message history. Filters go to the server; Search is
// a case-insensitive substring match on the text applied locally.
type HistoryQuery struct {
	Filters api.MessageFilters
	Search  string
}

// MessageGroup is the history of one client.
type MessageGroup struct {
	ClientID   string        `json:"clientId" yaml:"clientId"`
	ClientName string        `json:"clientName,omitempty" yaml:"clientName,omitempty"`
	Messages   []api.Message `json:"messages" yaml:"messages"`
}

// History is the filtered message list and the same messages grouped by
// client in first-seen order.
type History struct {
	Messages []api.Message  `json:"messages" yaml:"messages"`
	Groups   []MessageGroup `json:"groups" yaml:"groups"`
}

func (s *Service) MessageHistory(ctx context.Context, q HistoryQuery) (*History, error) {
	key := cache.Key{Resource: cache.ResourceMessages, Params: q.Filters.Key()}
	msgs, err := cache.Query(ctx, s.cache, key, func(ctx context.Context) ([]api.Message, error) {
		return s.api.ListMessages(ctx, q.Filters)
	})
	if err != nil {
		return nil, err
	}

	names := map[string]string{}
	if clients, err := s.Clients(ctx); err == nil {
		for _, c := range clients {
			names[c.ID] = c.Name
		}
	}
	return groupHistory(msgs, q.Search, names), nil
}

// foldText makes search case and accent insensitive: "ENVÍO" and "envio"
// fold to the same string.
func foldText(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	plain, _, err := transform.String(t, s)
	if err != nil {
		plain = s
	}
	return cases.Fold().String(plain)
}

func groupHistory(msgs []api.Message, search string, names map[string]string) *History {
	needle := foldText(strings.TrimSpace(search))
	h := &History{Messages: []api.Message{}, Groups: []MessageGroup{}}
	index := map[string]int{}
	for _, m := range msgs {
		if needle != "" && !strings.Contains(foldText(m.Text), needle) {
			continue
		}
		h.Messages = append(h.Messages, m)
		i, ok := index[m.ClientID]
		if !ok {
			i = len(h.Groups)
			index[m.ClientID] = i
			h.Groups = append(h.Groups, MessageGroup{ClientID: m.ClientID, ClientName: names[m.ClientID]})
		}
		h.Groups[i].Messages = append(h.Groups[i].Messages, m)
	}
	return h
}
