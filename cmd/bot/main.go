package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		slog.Error("bot exited with error", "error", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	options := runOptions{}

	command := &cobra.Command{
		Use:   "sandwich",
		Short: "Chat bot answering commands on Discord and Telegram",
		Long: `sandwich connects to the configured chat drivers and answers commands
such as !askai, !gitlines and !help. Replies are edited in place when the
triggering message is edited and removed when it is deleted.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(*cobra.Command, []string) error {
			return run(options)
		},
	}

	command.Flags().StringVarP(&options.configFile, "config", "c", "",
		"config file (.json, .yaml or .yml); defaults to $"+envConfigFile+" or "+configSearchPath[0])
	command.Flags().StringVar(&options.envFile, "env-file", defaultEnvFilePath,
		"dotenv file loaded before the config is read")

	return command
}
