package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/omniwp/internal/api"
	"github.com/nextlevelbuilder/omniwp/internal/bus"
	"github.com/nextlevelbuilder/omniwp/internal/config"
	"github.com/nextlevelbuilder/omniwp/internal/pairing"
	"github.com/nextlevelbuilder/omniwp/internal/push"
	"github.com/nextlevelbuilder/omniwp/internal/validate"
	"github.com/nextlevelbuilder/omniwp/pkg/protocol"
)

func whatsappCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "whatsapp",
		Aliases: []string{"wa"},
		Short:   "Link and manage the WhatsApp account",
	}
	cmd.AddCommand(whatsappStatusCmd())
	cmd.AddCommand(whatsappInfoCmd())
	cmd.AddCommand(whatsappAvailabilityCmd())
	cmd.AddCommand(whatsappConnectCmd())
	cmd.AddCommand(whatsappDisconnectCmd())
	cmd.AddCommand(whatsappRestoreCmd())
	cmd.AddCommand(whatsappMessagesCmd())
	cmd.AddCommand(whatsappWatchCmd())
	return cmd
}

// statusLabel is the badge text for a link status.
func statusLabel(s protocol.LinkStatus) string {
	switch s {
	case protocol.StatusConnected:
		return "Conectado"
	case protocol.StatusConnecting:
		return "Conectando..."
	case protocol.StatusError:
		return "Error"
	}
	return "Desconectado"
}

// indicatorLabel describes the background indicator, flagging stale values.
func indicatorLabel(ind pairing.Indicator) string {
	if !ind.Known {
		return "Cargando..."
	}
	label := statusLabel(ind.Status)
	if ind.Stale {
		label += " (sin confirmar)"
	}
	return label
}

// dialPush opens the push channel with the current session token. The
// channel stays registered for logout teardown until it closes.
func dialPush(ctx context.Context, a *app, b *bus.Bus) (*push.Client, error) {
	url, err := config.PushURL(a.cfg.API.BaseURL, protocol.EngineIOVersion)
	if err != nil {
		return nil, err
	}
	pc, err := push.Dial(ctx, push.Config{URL: url, Token: a.session.Snapshot().Token, Bus: b})
	if err != nil {
		return nil, fmt.Errorf("push channel: %w", err)
	}
	detach := a.svc.AttachPush(pc)
	go func() {
		<-pc.Done()
		detach()
	}()
	return pc, nil
}

func whatsappStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the WhatsApp link status",
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			st, err := a.svc.WhatsAppStatus(ctx)
			if err != nil {
				return err
			}
			return render(st, func() *table {
				t := newTable("STATUS", "MESSAGE", "LAST SEEN")
				t.add(statusLabel(st.Status), st.Message, st.LastSeen)
				return t
			})
		}),
	}
}

func whatsappInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the linked account",
		RunE: authed(func(ctx context.Context, a *app, args []string) error {
			info, err := a.svc.WhatsAppInfo(ctx)
			if err != nil {
				return err
			}
			return render(info, func() *table {
				t := newTable("NUMBER", "NAME", "CONNECTED", "LAST SEEN")
				t.add(validate.DisplayPhone(info.Number), info.Name, yesNo(info.IsConnected), info.LastSeen)
				return t
			})
		}),
	}
}

func whatsappAvailabilityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "availability",
		Short: "Show which WhatsApp features the server offers",
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			av, err := a.svc.WhatsAppAvailability(ctx)
			if err != nil {
				return err
			}
			return render(av, func() *table {
				t := newTable("FEATURE", "ENABLED")
				t.add("WhatsApp Web", yesNo(av.WhatsAppWeb.Enabled))
				t.add("Redis", yesNo(av.Features.Redis))
				t.add("WebSockets", yesNo(av.Features.WebSockets))
				return t
			})
		}),
	}
}

func whatsappDisconnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Unlink the WhatsApp account",
		RunE: authed(func(ctx context.Context, a *app, args []string) error {
			resp, err := a.svc.DisconnectWhatsApp(ctx)
			if err != nil {
				return err
			}
			if !resp.Success {
				return fmt.Errorf("disconnect refused")
			}
			return nil
		}),
	}
}

func whatsappRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore",
		Short: "Restore a previously linked WhatsApp session",
		RunE: authed(func(ctx context.Context, a *app, args []string) error {
			resp, err := a.svc.RestoreWhatsApp(ctx)
			if err != nil {
				return err
			}
			if !resp.Success {
				return fmt.Errorf("restore refused")
			}
			return nil
		}),
	}
}

func whatsappMessagesCmd() *cobra.Command {
	var q api.WhatsAppMessagesQuery
	cmd := &cobra.Command{
		Use:   "messages",
		Short: "List WhatsApp messages seen by the linked account",
		RunE: authed(func(ctx context.Context, a *app, args []string) error {
			res, err := a.svc.WhatsAppMessages(ctx, q)
			if err != nil {
				return err
			}
			return render(res, func() *table {
				t := newTable("TIME", "DIR", "FROM", "TO", "BODY")
				for _, m := range res.Messages {
					t.add(m.Timestamp, m.Direction, validate.DisplayPhone(m.From), validate.DisplayPhone(m.To), m.Body)
				}
				return t
			})
		}),
	}
	cmd.Flags().IntVar(&q.Limit, "limit", 50, "page size")
	cmd.Flags().IntVar(&q.Offset, "offset", 0, "page offset")
	cmd.Flags().StringVar(&q.Direction, "direction", "", "incoming or outgoing")
	return cmd
}
