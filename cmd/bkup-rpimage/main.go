package main

import (
	"errors"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/lzkelley/bkup-rpimage/internal/cli"
	"github.com/lzkelley/bkup-rpimage/internal/image"
	"github.com/lzkelley/bkup-rpimage/internal/system"
	"github.com/lzkelley/bkup-rpimage/internal/ui"
)

var (
	verbose bool
	quiet   bool
	noColor bool
	debug   bool

	ctx  *cli.GlobalContext
	once sync.Once
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		ctx.Logger.Error("%v", err)
		if errors.Is(err, system.ErrInterrupted) {
			os.Exit(130)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "bkup-rpimage",
	Short: "bkup-rpimage - live Raspberry Pi SD card backups",
	Long: `bkup-rpimage backs up a running Raspberry Pi onto an SD card image.

The image is a sparse file carrying the card's partition table,
filesystems and identity, kept current with rsync while the system
runs. A finished image can be written straight back to a card. The
rotate command wraps the backup in a staged-rename protocol so a
directory of backups always holds exactly one committed copy.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Update context components with parsed flag values
		once.Do(func() {
			executor := system.NewExecutor(debug)
			ctx.Runner = executor
			ctx.Logger = ui.NewLogger(verbose, quiet, noColor)
			ctx.Lifecycle = image.NewLifecycle(executor, ctx.Logger)
			ctx.Discovery = image.NewDiscovery(executor)
		})
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Quiet mode (suppress non-error output)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable color output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Debug mode (show commands)")

	// Create initial context with default values
	// Will be updated in PersistentPreRun with parsed flag values
	ctx = cli.NewGlobalContext(false, false, false, false)

	// Register commands
	rootCmd.AddCommand(cli.NewStartCommand(ctx))
	rootCmd.AddCommand(cli.NewMountCommand(ctx))
	rootCmd.AddCommand(cli.NewUmountCommand(ctx))
	rootCmd.AddCommand(cli.NewGzipCommand(ctx))
	rootCmd.AddCommand(cli.NewCloneIDCommand(ctx))
	rootCmd.AddCommand(cli.NewRotateCommand(ctx))
	rootCmd.AddCommand(cli.NewListCommand(ctx))

	// Set up help templates
	rootCmd.SetHelpCommand(&cobra.Command{
		Use:    "no-help",
		Hidden: true,
	})

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
