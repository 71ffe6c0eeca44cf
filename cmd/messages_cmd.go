package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/omniwp/internal/api"
	"github.com/nextlevelbuilder/omniwp/internal/crm"
	"github.com/nextlevelbuilder/omniwp/internal/filter"
)

var messageFields = []string{"id", "clientId", "orderId", "channel", "status", "text", "createdAt"}

func messagesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "messages",
		Aliases: []string{"msg"},
		Short:   "Generate, send and review client messages",
	}
	cmd.AddCommand(messagesTemplateCmd())
	cmd.AddCommand(messagesSendCmd())
	cmd.AddCommand(messagesHistoryCmd())
	return cmd
}

func templateOptions(types []api.TemplateType) []SelectOption[api.TemplateType] {
	opts := make([]SelectOption[api.TemplateType], 0, len(types))
	for _, t := range types {
		opts = append(opts, SelectOption[api.TemplateType]{Label: string(t), Value: t})
	}
	return opts
}

func messagesTemplateCmd() *cobra.Command {
	var in api.TemplateRequest
	var tmpl string
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Preview a message from a template",
		RunE: authed(func(ctx context.Context, a *app, args []string) error {
			var err error
			if in.ClientID, err = pickClient(ctx, a, in.ClientID); err != nil {
				return err
			}
			if in.OrderID, err = pickOrder(ctx, a, in.ClientID, in.OrderID); err != nil {
				return err
			}
			in.TemplateType = api.TemplateType(tmpl)
			if in.TemplateType == "" {
				if in.TemplateType, err = promptSelect("Plantilla", templateOptions(api.GenerateTemplates), 0); err != nil {
					return err
				}
			}
			resp, err := a.svc.GenerateMessage(ctx, in)
			if err != nil {
				return err
			}
			return render(resp, func() *table {
				t := newTable("CLIENT", "ORDER", "MESSAGE")
				t.add(resp.Client.Name, resp.Order.Description, resp.Message)
				return t
			})
		}),
	}
	cmd.Flags().StringVar(&in.ClientID, "client", "", "client ID")
	cmd.Flags().StringVar(&in.OrderID, "order", "", "order ID")
	cmd.Flags().StringVar(&tmpl, "template", "", "confirmacion, recordatorio or seguimiento")
	return cmd
}

func messagesSendCmd() *cobra.Command {
	var in api.SendRequest
	var tmpl string
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a templated message to a client",
		RunE: authed(func(ctx context.Context, a *app, args []string) error {
			var err error
			if in.ClientID, err = pickClient(ctx, a, in.ClientID); err != nil {
				return err
			}
			if in.OrderID, err = pickOrder(ctx, a, in.ClientID, in.OrderID); err != nil {
				return err
			}
			in.TemplateType = api.TemplateType(tmpl)
			if in.TemplateType == "" {
				if in.TemplateType, err = promptSelect("Plantilla", templateOptions(api.SendTemplates), 0); err != nil {
					return err
				}
			}
			resp, err := a.svc.SendMessage(ctx, in)
			if err != nil {
				return err
			}
			return render(resp, func() *table {
				t := newTable("ID", "STATUS", "CHANNEL", "PROVIDER ID")
				t.add(resp.ID, resp.Status, resp.Channel, resp.ProviderMessageID)
				return t
			})
		}),
	}
	cmd.Flags().StringVar(&in.ClientID, "client", "", "client ID")
	cmd.Flags().StringVar(&in.OrderID, "order", "", "order ID")
	cmd.Flags().StringVar(&tmpl, "template", "", "confirmacion, recordatorio, seguimiento, entrega or agradecimiento")
	return cmd
}

func messagesHistoryCmd() *cobra.Command {
	var q crm.HistoryQuery
	var where string
	var grouped bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show sent messages",
		RunE: authed(func(ctx context.Context, a *app, args []string) error {
			f, err := filter.Compile(where, messageFields...)
			if err != nil {
				return err
			}
			h, err := a.svc.MessageHistory(ctx, q)
			if err != nil {
				return err
			}
			if f != nil {
				if h.Messages, err = filter.Apply(f, h.Messages); err != nil {
					return err
				}
				for i := range h.Groups {
					if h.Groups[i].Messages, err = filter.Apply(f, h.Groups[i].Messages); err != nil {
						return err
					}
				}
			}
			if grouped {
				return render(h.Groups, func() *table {
					t := newTable("CLIENT", "MESSAGES", "LAST")
					for _, g := range h.Groups {
						if len(g.Messages) == 0 {
							continue
						}
						last := g.Messages[len(g.Messages)-1]
						t.add(orDash(g.ClientName, g.ClientID), itoa(len(g.Messages)), last.Text)
					}
					return t
				})
			}
			if outputFormat == "table" {
				fmt.Printf("%d message(s)\n", len(h.Messages))
			}
			return render(h.Messages, func() *table {
				t := newTable("DATE", "CLIENT", "CHANNEL", "STATUS", "TEXT")
				for _, m := range h.Messages {
					t.add(m.CreatedAt, m.ClientID, m.Channel, m.Status, m.Text)
				}
				return t
			})
		}),
	}
	cmd.Flags().StringVar(&q.Filters.ClientID, "client", "", "only this client")
	cmd.Flags().StringVar(&q.Filters.OrderID, "order", "", "only this order")
	cmd.Flags().StringVar(&q.Filters.Status, "status", "", "sent, delivered, read or failed")
	cmd.Flags().StringVar(&q.Filters.Channel, "channel", "", "whatsapp or email")
	cmd.Flags().StringVar(&q.Search, "search", "", "text contains (case-insensitive)")
	cmd.Flags().StringVar(&where, "where", "", "CEL filter over messages")
	cmd.Flags().BoolVar(&grouped, "group", false, "group by client")
	return cmd
}
