package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/omniwp/internal/api"
	"github.com/nextlevelbuilder/omniwp/internal/filter"
	"github.com/nextlevelbuilder/omniwp/internal/validate"
)

var clientFields = []string{"id", "name", "phone", "email"}

func clientsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "clients",
		Aliases: []string{"client"},
		Short:   "Manage clients",
	}
	cmd.AddCommand(clientsListCmd())
	cmd.AddCommand(clientsCreateCmd())
	cmd.AddCommand(clientsUpdateCmd())
	cmd.AddCommand(clientsDeleteCmd())
	return cmd
}

func clientsListCmd() *cobra.Command {
	var where string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List clients",
		RunE: authed(func(ctx context.Context, a *app, args []string) error {
			f, err := filter.Compile(where, clientFields...)
			if err != nil {
				return err
			}
			clients, err := a.svc.Clients(ctx)
			if err != nil {
				return err
			}
			if clients, err = filter.Apply(f, clients); err != nil {
				return err
			}
			return render(clients, func() *table {
				t := newTable("ID", "NAME", "PHONE", "WHATSAPP", "EMAIL")
				for _, c := range clients {
					jid := ""
					if j, err := validate.PhoneJID(c.Phone); err == nil {
						jid = j.String()
					}
					t.add(c.ID, c.Name, c.Phone, jid, c.Email)
				}
				return t
			})
		}),
	}
	cmd.Flags().StringVar(&where, "where", "", `CEL filter, e.g. 'name.startsWith("A")'`)
	return cmd
}

func clientsCreateCmd() *cobra.Command {
	var in api.ClientInput
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a client",
		RunE: authed(func(ctx context.Context, a *app, args []string) error {
			var err error
			if in.Name, err = valueOrPrompt(in.Name, "Nombre", "", validate.NameMessage); err != nil {
				return err
			}
			if in.Phone, err = valueOrPrompt(in.Phone, "Teléfono", "Con código de país, ej: 549112345678", validate.PhoneMessage); err != nil {
				return err
			}
			rec, err := a.svc.CreateClient(ctx, in)
			if err != nil {
				return err
			}
			fmt.Printf("Created client %s (%s)\n", rec.Name, rec.ID)
			return nil
		}),
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "client name")
	cmd.Flags().StringVar(&in.Phone, "phone", "", "phone with country code")
	cmd.Flags().StringVar(&in.Email, "email", "", "email (optional)")
	return cmd
}

func clientsUpdateCmd() *cobra.Command {
	var name, phone, email string
	var cmd *cobra.Command
	cmd = &cobra.Command{
		Use:   "update <id>",
		Short: "Update a client (only the flags given are changed)",
		Args:  cobra.ExactArgs(1),
		RunE: authed(func(ctx context.Context, a *app, args []string) error {
			var in api.ClientUpdate
			flags := cmd.Flags()
			if flags.Changed("name") {
				in.Name = &name
			}
			if flags.Changed("phone") {
				in.Phone = &phone
			}
			if flags.Changed("email") {
				in.Email = &email
			}
			if in.Name == nil && in.Phone == nil && in.Email == nil {
				return fmt.Errorf("nothing to update: pass --name, --phone or --email")
			}
			rec, err := a.svc.UpdateClient(ctx, args[0], in)
			if err != nil {
				return err
			}
			fmt.Printf("Updated client %s (%s)\n", rec.Name, rec.ID)
			return nil
		}),
	}
	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVar(&phone, "phone", "", "new phone")
	cmd.Flags().StringVar(&email, "email", "", "new email (empty clears it)")
	return cmd
}

func clientsDeleteCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a client without orders",
		Args:  cobra.ExactArgs(1),
		RunE: authed(func(ctx context.Context, a *app, args []string) error {
			if !yes {
				ok, err := promptConfirm("¿Eliminar el cliente "+args[0]+"?", false)
				if err != nil || !ok {
					fmt.Println("Cancelled.")
					return nil
				}
			}
			return a.svc.DeleteClient(ctx, args[0])
		}),
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")
	return cmd
}
