package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/spaghettifunk/marionette/engine"
	"github.com/spaghettifunk/marionette/engine/character"
	"github.com/spaghettifunk/marionette/engine/config"
	"github.com/spaghettifunk/marionette/engine/core"
	"github.com/spaghettifunk/marionette/testbed"
)

var (
	cfgFile        string
	headless       bool
	startCharacter string
)

var rootCmd = &cobra.Command{
	Use:   "marionette",
	Short: "Animation and expression engine for a 3D character",
	Long: `Marionette drives a rigged character: idle motion, gaze, blinking,
lip-sync, emotions and generated clip sequences. It is controlled over
HTTP and streams its state on a websocket.

Every configuration key can be overridden with a MARIONETTE_ environment
variable, e.g. MARIONETTE_CONTROL_ADDR. A .env file in the working
directory is loaded first.`,
	SilenceUsage: true,
	RunE:         runEngine,
}

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Validate and list the character profiles in the asset directories",
	RunE:  listProfiles,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "marionette.toml", "config file")
	rootCmd.Flags().BoolVar(&headless, "headless", false, "run without a window")
	rootCmd.Flags().StringVar(&startCharacter, "character", "", "profile selected at startup")

	rootCmd.AddCommand(profilesCmd)
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		core.LogWarn("failed to load .env: %v", err)
	}
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("headless") {
		cfg.App.Headless = headless
	}
	if startCharacter != "" {
		cfg.App.Character = startCharacter
	}
	return cfg, nil
}

func runEngine(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	tb, err := testbed.NewTestGame(cfg)
	if err != nil {
		return err
	}

	e, err := engine.New(tb.Game)
	if err != nil {
		return err
	}

	if err := e.Initialize(); err != nil {
		_ = e.Shutdown()
		return err
	}

	// capture sigterm and other system calls here
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer stop()

	// the loop stays on the main goroutine, the window needs it
	runErr := e.Run(ctx)
	if err := e.Shutdown(); err != nil {
		core.LogError("shutdown: %v", err)
	}
	return runErr
}

func listProfiles(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	invalid := 0
	for _, dir := range cfg.Assets.Dirs {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".toml") {
				return nil
			}
			p, err := character.LoadProfile(path)
			if err != nil {
				invalid++
				fmt.Fprintf(cmd.ErrOrStderr(), "invalid  %s: %v\n", path, err)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-20s %s (model %s)\n", p.Name, path, p.Model)
			return nil
		})
		if err != nil {
			return err
		}
	}
	if invalid > 0 {
		return fmt.Errorf("%d invalid profile(s)", invalid)
	}
	return nil
}
