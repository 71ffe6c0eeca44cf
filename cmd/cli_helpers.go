package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

type appRunFunc func(ctx context.Context, a *app, args []string) error

// withApp builds (or reuses) the app before running fn.
func withApp(fn appRunFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		a, err := getApp(ctx)
		if err != nil {
			return err
		}
		return fn(ctx, a, args)
	}
}

// authed is withApp for commands that need a session.
func authed(fn appRunFunc) func(*cobra.Command, []string) error {
	return withApp(func(ctx context.Context, a *app, args []string) error {
		if err := a.requireLogin(); err != nil {
			return err
		}
		return fn(ctx, a, args)
	})
}

// valueOrPrompt returns flag when set, else asks interactively. Flag values
// are not checked here; the crm layer validates them with the same rules.
func valueOrPrompt(flag, title, description string, check checkFunc) (string, error) {
	if strings.TrimSpace(flag) != "" {
		return flag, nil
	}
	return promptString(title, description, check)
}

func itoa(n int) string { return strconv.Itoa(n) }

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func printTitle(s string) {
	fmt.Println(s)
	fmt.Println(strings.Repeat("-", len([]rune(s))))
}
