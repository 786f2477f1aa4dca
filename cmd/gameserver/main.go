package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"

	"github.com/lk2023060901/pangya-game-go/application"
)

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "gameserver",
		Short: "PangYa game server",
		Long: `gameserver accepts client connections, authenticates them with session keys
issued by the login server and keeps the online player registry.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return application.New(configPath).Run(ctx)
		},
	}
	rootCmd.Flags().StringVar(&configPath, "config", "",
		"config file path (env: "+application.ConfigPathEnv+", default "+application.DefaultConfigPath+")")
	return rootCmd
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
