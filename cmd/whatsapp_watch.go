package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/omniwp/internal/bus"
	"github.com/nextlevelbuilder/omniwp/internal/config"
	"github.com/nextlevelbuilder/omniwp/internal/pairing"
	"github.com/nextlevelbuilder/omniwp/internal/validate"
)

func whatsappWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow link status and message activity until interrupted",
		RunE: authed(func(ctx context.Context, a *app, args []string) error {
			return runWatch(ctx, a)
		}),
	}
}

// watchLine formats one bus event for the watch log, or "" to skip it.
func watchLine(e bus.Event) string {
	switch ev := e.(type) {
	case bus.QRGenerated:
		return "QR code issued (run `omniwp whatsapp connect` to scan it)"
	case bus.StatusChanged:
		line := "status: " + statusLabel(ev.Status)
		if ev.PhoneNumber != "" {
			line += " " + validate.DisplayPhone(ev.PhoneNumber)
		}
		if ev.Message != "" {
			line += " (" + ev.Message + ")"
		}
		return line
	case bus.PairingError:
		return "error: " + ev.Message
	case bus.MessageActivity:
		var m struct {
			From string `json:"from"`
			To   string `json:"to"`
			Body string `json:"body"`
		}
		if err := json.Unmarshal(ev.Raw, &m); err != nil {
			return "message " + ev.Direction
		}
		if ev.Direction == "received" {
			return fmt.Sprintf("← %s: %s", validate.DisplayPhone(m.From), cell(m.Body))
		}
		return fmt.Sprintf("→ %s: %s", validate.DisplayPhone(m.To), cell(m.Body))
	}
	return ""
}

func runWatch(ctx context.Context, a *app) error {
	b := bus.New()
	ind := pairing.NewLinkIndicator()
	ind.OnChange(func(i pairing.Indicator) {
		fmt.Printf("%s  indicator: %s\n", time.Now().Format(time.TimeOnly), indicatorLabel(i))
	})
	defer ind.Watch(b)()
	seen := bus.NewDedupeCache(bus.DefaultDedupeTTL, bus.DefaultDedupeSize)
	defer b.Subscribe(bus.Deduplicated(seen, func(e bus.Event) {
		if line := watchLine(e); line != "" {
			fmt.Printf("%s  %s\n", time.Now().Format(time.TimeOnly), line)
		}
	}))()

	pc, err := dialPush(ctx, a, b)
	if err != nil {
		return err
	}
	defer pc.Close()
	fmt.Printf("Watching WhatsApp activity (push session %s). Ctrl-C to stop.\n", pc.SID())

	pollCtx, stopPoll := context.WithCancel(ctx)
	go pairing.NewStatusPoller(a.client, ind, pollerConfig(a)).Run(pollCtx)

	reloads := make(chan *config.Config, 1)
	if w, err := config.NewWatcher(resolveConfigPath()); err != nil {
		slog.Debug("config watcher unavailable", "error", err)
	} else {
		w.OnChange(func(cfg *config.Config) {
			select {
			case reloads <- cfg:
			default:
			}
		})
		if err := w.Start(); err != nil {
			slog.Debug("config file not watched", "error", err)
		}
		defer w.Stop()
	}

	for {
		select {
		case <-ctx.Done():
			stopPoll()
			return nil
		case <-pc.Done():
			stopPoll()
			if err := pc.Err(); err != nil {
				return fmt.Errorf("push channel dropped: %w", err)
			}
			return nil
		case cfg := <-reloads:
			a.applyConfig(cfg)
			stopPoll()
			pollCtx, stopPoll = context.WithCancel(ctx)
			go pairing.NewStatusPoller(a.client, ind, pollerConfig(a)).Run(pollCtx)
		}
	}
}
