package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// errIncomplete marks a run that stopped early without failing, such as a
// cancelled job. It maps to exit code 2.
var errIncomplete = errors.New("run incomplete")

func Main() {
	_ = godotenv.Load() // best-effort: load .env if present

	root := newRootCommand(os.Stdout, os.Stderr)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, errIncomplete) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:          "textwipe",
		Short:        "Remove burned-in text from video and derive subtitle timings",
		SilenceUsage: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SilenceErrors = true

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file (default ./textwipe.toml or ~/.config/textwipe/config.toml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "Log format: console or json")

	root.AddCommand(newRunCommand(opts))
	root.AddCommand(newAutoSubCommand(opts))
	root.AddCommand(newConfigCommand())
	return root
}
