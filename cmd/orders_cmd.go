package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/omniwp/internal/api"
	"github.com/nextlevelbuilder/omniwp/internal/filter"
	"github.com/nextlevelbuilder/omniwp/internal/validate"
)

var orderFields = []string{"id", "clientId", "description", "status"}

func ordersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "orders",
		Aliases: []string{"order"},
		Short:   "Manage orders",
	}
	cmd.AddCommand(ordersListCmd())
	cmd.AddCommand(ordersCreateCmd())
	cmd.AddCommand(ordersUpdateCmd())
	cmd.AddCommand(ordersDeleteCmd())
	return cmd
}

func ordersListCmd() *cobra.Command {
	var where string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List orders",
		RunE: authed(func(ctx context.Context, a *app, args []string) error {
			f, err := filter.Compile(where, orderFields...)
			if err != nil {
				return err
			}
			orders, err := a.svc.Orders(ctx)
			if err != nil {
				return err
			}
			if orders, err = filter.Apply(f, orders); err != nil {
				return err
			}
			names := clientNames(ctx, a)
			return render(orders, func() *table {
				t := newTable("ID", "CLIENT", "STATUS", "DESCRIPTION")
				for _, o := range orders {
					t.add(o.ID, orDash(names[o.ClientID], o.ClientID), string(o.Status), o.Description)
				}
				return t
			})
		}),
	}
	cmd.Flags().StringVar(&where, "where", "", `CEL filter, e.g. 'status == "pendiente"'`)
	return cmd
}

// clientNames maps client IDs to names for display. Failures only cost the names.
func clientNames(ctx context.Context, a *app) map[string]string {
	names := map[string]string{}
	clients, err := a.svc.Clients(ctx)
	if err != nil {
		return names
	}
	for _, c := range clients {
		names[c.ID] = c.Name
	}
	return names
}

func orDash(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}

// pickClient asks for a client when id is empty.
func pickClient(ctx context.Context, a *app, id string) (string, error) {
	if id != "" {
		return id, nil
	}
	clients, err := a.svc.Clients(ctx)
	if err != nil {
		return "", err
	}
	if len(clients) == 0 {
		return "", fmt.Errorf("no clients yet: create one with `omniwp clients create`")
	}
	opts := make([]SelectOption[string], 0, len(clients))
	for _, c := range clients {
		opts = append(opts, SelectOption[string]{Label: c.Name + "  " + c.Phone, Value: c.ID})
	}
	return promptSelect("Cliente", opts, 0)
}

// pickOrder asks for an order of clientID when id is empty.
func pickOrder(ctx context.Context, a *app, clientID, id string) (string, error) {
	if id != "" {
		return id, nil
	}
	orders, err := a.svc.Orders(ctx)
	if err != nil {
		return "", err
	}
	opts := make([]SelectOption[string], 0, len(orders))
	for _, o := range orders {
		if clientID == "" || o.ClientID == clientID {
			opts = append(opts, SelectOption[string]{Label: o.Description + "  [" + string(o.Status) + "]", Value: o.ID})
		}
	}
	if len(opts) == 0 {
		return "", fmt.Errorf("the client has no orders")
	}
	return promptSelect("Pedido", opts, 0)
}

func ordersCreateCmd() *cobra.Command {
	var in api.OrderInput
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an order",
		RunE: authed(func(ctx context.Context, a *app, args []string) error {
			var err error
			if in.ClientID, err = pickClient(ctx, a, in.ClientID); err != nil {
				return err
			}
			if in.Description, err = valueOrPrompt(in.Description, "Descripción", "", validate.DescriptionMessage); err != nil {
				return err
			}
			o, err := a.svc.CreateOrder(ctx, in)
			if err != nil {
				return err
			}
			fmt.Printf("Created order %s [%s]\n", o.ID, o.Status)
			return nil
		}),
	}
	cmd.Flags().StringVar(&in.ClientID, "client", "", "client ID (prompted when omitted)")
	cmd.Flags().StringVar(&in.Description, "description", "", "what was ordered")
	return cmd
}

func ordersUpdateCmd() *cobra.Command {
	var description, status string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update an order's description or status",
		Args:  cobra.ExactArgs(1),
		RunE: authed(func(ctx context.Context, a *app, args []string) error {
			in := api.OrderUpdate{Description: description, Status: api.OrderStatus(status)}
			if in.Description == "" && in.Status == "" {
				opts := make([]SelectOption[api.OrderStatus], 0, len(api.OrderStatuses))
				for _, s := range api.OrderStatuses {
					opts = append(opts, SelectOption[api.OrderStatus]{Label: string(s), Value: s})
				}
				st, err := promptSelect("Estado", opts, 0)
				if err != nil {
					return err
				}
				in.Status = st
			}
			o, err := a.svc.UpdateOrder(ctx, args[0], in)
			if err != nil {
				return err
			}
			fmt.Printf("Updated order %s [%s]\n", o.ID, o.Status)
			return nil
		}),
	}
	cmd.Flags().StringVar(&description, "description", "", "new description")
	cmd.Flags().StringVar(&status, "status", "", "pendiente, en_proceso, completado or cancelado")
	return cmd
}

func ordersDeleteCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an order",
		Args:  cobra.ExactArgs(1),
		RunE: authed(func(ctx context.Context, a *app, args []string) error {
			if !yes {
				ok, err := promptConfirm("¿Eliminar el pedido "+args[0]+"?", false)
				if err != nil || !ok {
					fmt.Println("Cancelled.")
					return nil
				}
			}
			return a.svc.DeleteOrder(ctx, args[0])
		}),
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")
	return cmd
}
