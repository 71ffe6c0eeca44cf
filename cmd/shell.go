package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	shellwords "github.com/mattn/go-shellwords"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive session sharing one login, cache and push channel",
		Long: `Run commands without the "omniwp" prefix, e.g. "clients list" or
"whatsapp connect". Cached queries stay warm between commands. Type "exit" to quit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := getApp(ctx); err != nil {
				return err
			}
			return runShell(ctx, os.Stdin, os.Stderr)
		},
	}
}

func runShell(ctx context.Context, in io.Reader, prompt io.Writer) error {
	globals := snapshotFlags(rootCmd.PersistentFlags())
	fmt.Fprintf(prompt, "\nOmniWP shell %s\n", Version)
	fmt.Fprintf(prompt, "Type \"help\" for commands, \"exit\" to quit\n\n")

	scanner := bufio.NewScanner(in)
	for ctx.Err() == nil {
		fmt.Fprint(prompt, "omniwp> ")
		if !scanner.Scan() {
			break
		}
		args, err := shellArgs(scanner.Text())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		if len(args) == 0 {
			continue
		}
		switch args[0] {
		case "exit", "quit":
			fmt.Fprintln(prompt, "Goodbye!")
			return nil
		case "shell":
			fmt.Fprintln(os.Stderr, "Error: already in a shell")
			continue
		}

		rootCmd.SetArgs(args)
		err = rootCmd.ExecuteContext(ctx)
		resetFlags(rootCmd, globals)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", formatError(err))
		}
		fmt.Fprintln(prompt)
	}
	return scanner.Err()
}

// shellArgs splits one input line the way a POSIX shell would, without
// expanding environment variables or backquotes.
func shellArgs(line string) ([]string, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil, nil
	}
	p := shellwords.NewParser()
	p.ParseEnv = false
	p.ParseBacktick = false
	args, err := p.Parse(line)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", line, err)
	}
	if len(args) > 0 && args[0] == "omniwp" {
		args = args[1:]
	}
	return args, nil
}

func snapshotFlags(fs *pflag.FlagSet) map[string]string {
	out := make(map[string]string)
	fs.VisitAll(func(f *pflag.Flag) {
		out[f.Name] = f.Value.String()
	})
	return out
}

// resetFlags puts every flag in the tree back to its default so values from
// one shell line do not leak into the next. Root persistent flags go back to
// the values the shell was started with.
func resetFlags(root *cobra.Command, globals map[string]string) {
	var walk func(c *cobra.Command)
	walk = func(c *cobra.Command) {
		c.Flags().VisitAll(resetFlag)
		for _, sub := range c.Commands() {
			walk(sub)
		}
	}
	walk(root)
	root.PersistentFlags().VisitAll(func(f *pflag.Flag) {
		if v, ok := globals[f.Name]; ok {
			_ = f.Value.Set(v)
		}
		f.Changed = false
	})
	root.SetArgs(nil)
}

// Flag variables are also written by prompts, so every flag is reset,
// not only the ones given on the command line.
func resetFlag(f *pflag.Flag) {
	if sv, ok := f.Value.(pflag.SliceValue); ok {
		_ = sv.Replace(nil)
	} else {
		_ = f.Value.Set(f.DefValue)
	}
	f.Changed = false
}
