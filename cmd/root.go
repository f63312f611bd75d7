package cmd

import (
	"io"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/papershelf/internal/config"
)

// rootOptions is shared by every subcommand once the root pre-run has loaded it.
type rootOptions struct {
	configPath string
	libraryDir string
	cfg        config.Config
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "papershelf",
		Short: "Personal literature library with LLM-powered paper analysis",
		Long: `Papershelf stores uploaded PDFs together with a structured analysis of each paper.

It extracts text and figures with poppler, asks an LLM (DeepSeek, OpenAI, Ollama or Gemini)
for a structured summary, and lets you tag papers and annotate their figures through a web
interface or from the command line.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if opts.libraryDir != "" {
				cfg.LibraryDir = opts.libraryDir
			}
			opts.cfg = cfg
			slog.SetDefault(newLogger(cfg, cmd.ErrOrStderr()))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to YAML config file (default ./papershelf.yaml when present)")
	cmd.PersistentFlags().StringVar(&opts.libraryDir, "library", "", "Library directory (overrides config and LITERATURE_DIR)")

	// Add subcommands
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newListCmd(opts))
	cmd.AddCommand(newTagsCmd(opts))
	cmd.AddCommand(newExportCmd(opts))
	cmd.AddCommand(newInspectCmd())

	return cmd
}

func newLogger(cfg config.Config, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}
