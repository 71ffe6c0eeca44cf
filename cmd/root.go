package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/omniwp/internal/config"
)

// Version is set at build time.
var Version = "dev"

var (
	cfgFile      string
	apiURL       string
	outputFormat string
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "omniwp",
	Short: "OmniWP CRM: clients, orders and WhatsApp messaging from the terminal",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging()
		switch outputFormat {
		case "table", "json", "yaml":
			return nil
		}
		return fmt.Errorf("unknown --output %q (want table, json or yaml)", outputFormat)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.omniwp/config.json, env OMNIWP_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "API base URL (overrides config and OMNIWP_API_URL)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format: table, json or yaml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(registerCmd())
	rootCmd.AddCommand(logoutCmd())
	rootCmd.AddCommand(whoamiCmd())
	rootCmd.AddCommand(clientsCmd())
	rootCmd.AddCommand(ordersCmd())
	rootCmd.AddCommand(messagesCmd())
	rootCmd.AddCommand(whatsappCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(doctorCmd())
	rootCmd.AddCommand(shellCmd())
	rootCmd.AddCommand(versionCmd())
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer closeApp()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", formatError(err))
		closeApp()
		os.Exit(1)
	}
}

func setupLogging() {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func resolveConfigPath() string {
	return config.ResolvePath(cfgFile)
}

// loadConfig reads the config file and applies --api-url.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, err
	}
	if apiURL != "" {
		u, err := config.NormalizeBaseURL(apiURL)
		if err != nil {
			return nil, err
		}
		cfg.API.BaseURL = u
	}
	return cfg, nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("omniwp %s\n", Version)
		},
	}
}
