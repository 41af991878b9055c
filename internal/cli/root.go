package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	serverURL  string
)

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	envConfig := os.Getenv("CONFIG_PATH")
	if envConfig == "" {
		envConfig = "config/config.yaml"
	}

	cmd := &cobra.Command{
		Use:           "quizroom",
		Short:         "Real-time multiplayer trivia: practice server and terminal player",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", envConfig, "path to YAML config")
	cmd.PersistentFlags().StringVar(&serverURL, "server", "", "backend base URL (overrides config)")
	cmd.AddCommand(NewServeCmd(&configPath))
	cmd.AddCommand(NewCreateCmd(&configPath, &serverURL))
	cmd.AddCommand(NewPlayCmd(&configPath, &serverURL))
	cmd.AddCommand(NewMigrateCmd(&configPath))
	return cmd
}
