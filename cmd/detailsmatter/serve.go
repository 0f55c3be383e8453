package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mhpenta/detailsmatter/internal/server"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := root.app(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			defer a.Logger.Sync() //nolint:errcheck

			gin.SetMode(gin.ReleaseMode)
			if !a.Config.IsProduction() {
				gin.SetMode(gin.DebugMode)
			}
			if addr == "" {
				addr = a.Config.HTTPAddr
			}

			err = server.New(a, server.WithMetrics()).Run(ctx, addr)
			a.Logger.Info("server exited", zap.Error(err))
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default HTTP_ADDR)")
	return cmd
}
