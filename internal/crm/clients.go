package crm

import (
	"context"
	"errors"
	"fmt"

	"github.com/nextlevelbuilder/omniwp/internal/api"
	"github.com/nextlevelbuilder/omniwp/internal/cache"
	"github.com/nextlevelbuilder/omniwp/internal/notify"
	"github.com/nextlevelbuilder/omniwp/internal/validate"
)

// ErrClientHasOrders is returned when deleting a client that still has orders.
var ErrClientHasOrders = errors.New("client has orders")

func (s *Service) Clients(ctx context.Context) ([]api.ClientRecord, error) {
	return cache.Query(ctx, s.cache, cache.Key{Resource: cache.ResourceClients}, s.api.ListClients)
}

// Client returns one client from the cached list.
func (s *Service) Client(ctx context.Context, id string) (*api.ClientRecord, bool, error) {
	clients, err := s.Clients(ctx)
	if err != nil {
		return nil, false, err
	}
	for i := range clients {
		if clients[i].ID == id {
			return &clients[i], true, nil
		}
	}
	return nil, false, nil
}

func (s *Service) CreateClient(ctx context.Context, in api.ClientInput) (*api.ClientRecord, error) {
	if err := validate.Client(in); err != nil {
		return nil, err
	}
	rec, err := s.api.CreateClient(ctx, in)
	if err != nil {
		return nil, s.fail(err, "Error al crear el cliente")
	}
	s.invalidate(ctx, cache.ResourceClients)
	notify.Success(s.notify, "Cliente creado exitosamente")
	return rec, nil
}

func (s *Service) UpdateClient(ctx context.Context, id string, in api.ClientUpdate) (*api.ClientRecord, error) {
	if err := validate.ClientUpdate(in); err != nil {
		return nil, err
	}
	rec, err := s.api.UpdateClient(ctx, id, in)
	if err != nil {
		return nil, s.fail(err, "Error al actualizar el cliente")
	}
	s.invalidate(ctx, cache.ResourceClients)
	notify.Success(s.notify, "Cliente actualizado exitosamente")
	return rec, nil
}

// DeleteClient refuses to delete a client that still has orders.
func (s *Service) DeleteClient(ctx context.Context, id string) error {
	orders, err := s.Orders(ctx)
	if err != nil {
		return s.fail(err, "Error al eliminar el cliente")
	}
	n := 0
	for _, o := range orders {
		if o.ClientID == id {
			n++
		}
	}
	if n > 0 {
		notify.Error(s.notify, fmt.Sprintf("No se puede eliminar este cliente porque tiene %d pedido(s) asociado(s). Elimina primero los pedidos.", n))
		return fmt.Errorf("%w: %d", ErrClientHasOrders, n)
	}

	if _, err := s.api.DeleteClient(ctx, id); err != nil {
		return s.fail(err, "Error al eliminar el cliente")
	}
	s.invalidate(ctx, cache.ResourceClients)
	notify.Success(s.notify, "Cliente eliminado exitosamente")
	return nil
}
