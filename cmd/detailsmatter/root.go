package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mhpenta/detailsmatter/internal/app"
	"github.com/mhpenta/detailsmatter/internal/config"
	"github.com/mhpenta/detailsmatter/internal/logger"
)

type rootOptions struct {
	envFiles   []string
	jsonOutput bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:          "detailsmatter",
		Short:        "Turn-based image evolution with generative models",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", []string{".env"}, "dotenv files to load before reading the environment")
	cmd.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "print JSON instead of text")

	cmd.AddCommand(
		newServeCmd(opts),
		newEvolveCmd(opts, false),
		newEvolveCmd(opts, true),
		newSessionsCmd(opts),
		newStylesCmd(opts),
		newModelsCmd(opts),
		newEnvCmd(),
	)
	return cmd
}

func (o *rootOptions) load() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(o.envFiles...)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func (o *rootOptions) app(ctx context.Context) (*app.App, error) {
	cfg, log, err := o.load()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, log)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newEnvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Describe the environment variables the program reads",
		RunE: func(cmd *cobra.Command, args []string) error {
			usage, err := config.Usage()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), usage)
			return nil
		},
	}
}
