package crm

import (
	"context"

	"github.com/nextlevelbuilder/omniwp/internal/api"
	"github.com/nextlevelbuilder/omniwp/internal/cache"
	"github.com/nextlevelbuilder/omniwp/internal/notify"
	"github.com/nextlevelbuilder/omniwp/internal/validate"
)

func (s *Service) Orders(ctx context.Context) ([]api.Order, error) {
	return cache.Query(ctx, s.cache, cache.Key{Resource: cache.ResourceOrders}, s.api.ListOrders)
}

// Order returns one order from the cached list.
func (s *Service) Order(ctx context.Context, id string) (*api.Order, bool, error) {
	orders, err := s.Orders(ctx)
	if err != nil {
		return nil, false, err
	}
	for i := range orders {
		if orders[i].ID == id {
			return &orders[i], true, nil
		}
	}
	return nil, false, nil
}

func (s *Service) CreateOrder(ctx context.Context, in api.OrderInput) (*api.Order, error) {
	if err := validate.Order(in); err != nil {
		return nil, err
	}
	o, err := s.api.CreateOrder(ctx, in)
	if err != nil {
		return nil, s.fail(err, "Error al crear el pedido")
	}
	s.invalidate(ctx, cache.ResourceOrders)
	notify.Success(s.notify, "Pedido creado exitosamente")
	return o, nil
}

func (s *Service) UpdateOrder(ctx context.Context, id string, in api.OrderUpdate) (*api.Order, error) {
	if err := validate.OrderUpdate(in); err != nil {
		return nil, err
	}
	o, err := s.api.UpdateOrder(ctx, id, in)
	if err != nil {
		return nil, s.fail(err, "Error al actualizar el pedido")
	}
	s.invalidate(ctx, cache.ResourceOrders)
	notify.Success(s.notify, "Pedido actualizado exitosamente")
	return o, nil
}

func (s *Service) DeleteOrder(ctx context.Context, id string) error {
	if _, err := s.api.DeleteOrder(ctx, id); err != nil {
		return s.fail(err, "Error al eliminar el pedido")
	}
	s.invalidate(ctx, cache.ResourceOrders)
	notify.Success(s.notify, "Pedido eliminado exitosamente")
	return nil
}
