package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JaimeStill/folio/internal/config"
	"github.com/JaimeStill/folio/internal/infrastructure"
)

var (
	cfgFile string
	verbose bool

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "folio",
	Short: "Convert documents and images into slide decks and interactive packages",
	Long: `folio runs the conversion pipeline locally.

  folio convert --kind pdf-to-slides report.pdf
  folio convert --kind images-to-package -o gallery.h5p a.png b.jpg c.webp
  folio convert --kind slides-to-package deck.pptx
  folio tools`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load env file: %w", err)
		}

		var err error
		cfg, err = config.LoadFrom(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		logger = infrastructure.NewLogger(level)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", config.BaseConfigFile, "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log pipeline activity to stderr")

	rootCmd.AddCommand(newConvertCmd())
	rootCmd.AddCommand(newToolsCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
