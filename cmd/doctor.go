package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/omniwp/internal/bus"
	"github.com/nextlevelbuilder/omniwp/internal/crypto"
	"github.com/nextlevelbuilder/omniwp/pkg/protocol"
)

const doctorTimeout = 10 * time.Second

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, backend reachability and local storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd.Context())
		},
	}
}

type checkResult struct {
	name   string
	detail string
	ok     bool
}

func runDoctor(ctx context.Context) error {
	fmt.Println("omniwp doctor")
	fmt.Printf("  Version:  %s (engine.io %d)\n", Version, protocol.EngineIOVersion)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (not found, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	a, err := getApp(ctx)
	if err != nil {
		fmt.Printf("  Startup error: %s\n", formatError(err))
		return err
	}
	fmt.Printf("  API:      %s\n", a.cfg.API.BaseURL)
	fmt.Printf("  Data:     %s\n", a.cfg.DBPath())
	fmt.Printf("  Cache:    %s\n", a.cfg.Cache.Backend)
	snap := a.session.Snapshot()
	if snap.Authenticated() {
		fmt.Printf("  Session:  %s <%s>\n", snap.User.Name, snap.User.Email)
	} else {
		fmt.Println("  Session:  not logged in")
	}
	fmt.Println()

	checks := []struct {
		name string
		run  func(ctx context.Context) (string, error)
	}{
		{"Backend", func(ctx context.Context) (string, error) {
			h, err := a.svc.Health(ctx)
			if err != nil {
				return "", err
			}
			return h.Status, nil
		}},
		{"WhatsApp", func(ctx context.Context) (string, error) {
			av, err := a.client.WhatsAppAvailability(ctx)
			if err != nil {
				return "", err
			}
			return "web " + yesNo(av.WhatsAppWeb.Enabled) + ", websockets " + yesNo(av.Features.WebSockets), nil
		}},
		{"Link", func(ctx context.Context) (string, error) {
			st, err := a.client.WhatsAppStatus(ctx)
			if err != nil {
				return "", err
			}
			return statusLabel(st.Status), nil
		}},
		{"Push", func(ctx context.Context) (string, error) {
			if !snap.Authenticated() {
				return "skipped (not logged in)", nil
			}
			pc, err := dialPush(ctx, a, bus.New())
			if err != nil {
				return "", err
			}
			defer pc.Close()
			return "handshake OK (sid " + pc.SID() + ")", nil
		}},
		{"Keyring", func(ctx context.Context) (string, error) {
			if !a.cfg.Storage.EncryptToken {
				return "not used (storage.encryptToken is off)", nil
			}
			if _, err := crypto.KeyringSealer(); err != nil {
				return "", err
			}
			return "sealing key available", nil
		}},
	}

	results := make([]checkResult, len(checks))
	ctx, cancel := context.WithTimeout(ctx, doctorTimeout)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range checks {
		g.Go(func() error {
			detail, err := c.run(gctx)
			if err != nil {
				results[i] = checkResult{name: c.name, detail: formatError(err)}
				return nil
			}
			results[i] = checkResult{name: c.name, detail: detail, ok: true}
			return nil
		})
	}
	g.Wait()

	failed := 0
	for _, r := range results {
		mark := "OK  "
		if !r.ok {
			mark = "FAIL"
			failed++
		}
		fmt.Printf("  [%s] %-10s %s\n", mark, r.name+":", r.detail)
	}
	fmt.Println()
	if failed > 0 {
		return fmt.Errorf("%d check(s) failed", failed)
	}
	fmt.Println("Doctor check complete.")
	return nil
}
