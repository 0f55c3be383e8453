package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mhpenta/detailsmatter"
	"github.com/mhpenta/detailsmatter/evolution"
	"github.com/mhpenta/detailsmatter/internal/app"
)

type evolveOptions struct {
	turns int
	style string
	mode  string
	seed  string
	world string
	save  bool
}

func newEvolveCmd(root *rootOptions, directed bool) *cobra.Command {
	opts := &evolveOptions{}
	variant := evolution.VariantSingle
	cmd := &cobra.Command{
		Use:   "evolve [prompt]",
		Short: "Evolve an image from a prompt, one detail at a time",
		Args:  cobra.MinimumNArgs(1),
	}
	if directed {
		variant = evolution.VariantDirected
		cmd.Use = "direct [prompt]"
		cmd.Short = "Run a directed artist and storyteller conversation"
	}

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := root.app(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		convOpts := app.ConversationOptions{Variant: variant, Style: opts.style}
		if opts.mode != "" {
			convOpts.Mode = evolution.ParseMode(opts.mode)
		}
		if opts.world != "" {
			if err := json.Unmarshal([]byte(opts.world), &convOpts.WorldBible); err != nil {
				return fmt.Errorf("--world must be a JSON object: %w", err)
			}
		}
		conv, images, err := a.NewConversation(convOpts)
		if err != nil {
			return err
		}

		var seed *detailsmatter.Image
		if opts.seed != "" {
			data, err := os.ReadFile(opts.seed)
			if err != nil {
				return fmt.Errorf("failed to read seed image: %w", err)
			}
			seed = detailsmatter.NewImage(data, detailsmatter.GetMIMEType(opts.seed))
		}

		out := cmd.OutOrStdout()
		if _, err := conv.Begin(ctx, strings.Join(args, " "), seed); err != nil {
			return err
		}
		for i := 1; i < opts.turns; i++ {
			if _, err := conv.Continue(ctx); err != nil {
				fmt.Fprintf(out, "stopped after %d turns: %v\n", conv.State().Store().Len()-1, err)
				break
			}
		}

		if root.jsonOutput {
			if err := printJSON(conv.Snapshot()); err != nil {
				return err
			}
		} else {
			printTurns(out, conv.Turns())
		}

		if opts.save {
			saved, err := a.Sessions.Export(ctx, conv.Snapshot(), images)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "saved %s\n", saved.Dir)
		}
		return nil
	}

	cmd.Flags().IntVarP(&opts.turns, "turns", "n", 3, "model turns to generate")
	cmd.Flags().StringVar(&opts.style, "style", "", "art style (default DEFAULT_STYLE)")
	cmd.Flags().StringVar(&opts.seed, "seed", "", "path to a seed image")
	cmd.Flags().BoolVar(&opts.save, "save", false, "export the session when done")
	if directed {
		cmd.Flags().StringVar(&opts.mode, "mode", "", "generation mode (default DEFAULT_MODE)")
		cmd.Flags().StringVar(&opts.world, "world", "", "initial world elements as a JSON object")
	}
	return cmd
}

func printTurns(w io.Writer, turns []evolution.Turn) {
	for i, t := range turns {
		fmt.Fprintf(w, "[%d] %s\n", i, t.ActorName)
		if t.DirectorAction != "" {
			fmt.Fprintf(w, "    director: %s: %s\n", t.DirectorAction, t.DirectorGuidance)
		}
		if t.Text != "" {
			fmt.Fprintf(w, "    %s\n", strings.ReplaceAll(strings.TrimSpace(t.Text), "\n", "\n    "))
		}
		switch {
		case t.HasImage():
			fmt.Fprintf(w, "    image: %s\n", t.ImageRef)
		case t.FailureReason != evolution.FailureNone:
			fmt.Fprintf(w, "    no image: %s\n", t.FailureReason)
		}
		if t.FallbackSource != nil {
			fmt.Fprintf(w, "    conditioned on turn %d\n", *t.FallbackSource)
		}
	}
}
