package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mhpenta/detailsmatter"
	"github.com/mhpenta/detailsmatter/provider/gemini"
	"github.com/mhpenta/detailsmatter/styles"
)

func newStylesCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "styles",
		Short: "List the built-in art styles by category",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog := styles.Builtin()
			if root.jsonOutput {
				return printJSON(catalog)
			}
			out := cmd.OutOrStdout()
			for _, cat := range catalog.Categories {
				fmt.Fprintln(out, cat.Name)
				for _, s := range cat.Styles {
					marker := " "
					if s == catalog.Default {
						marker = "*"
					}
					fmt.Fprintf(out, "  %s %s\n", marker, s)
				}
			}
			return nil
		},
	}
}

func newModelsCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the image models the Gemini provider serves",
		RunE: func(cmd *cobra.Command, args []string) error {
			models := []detailsmatter.ModelInfo{gemini.NanoBanana1Info, gemini.NanoBanana2Info}
			if root.jsonOutput {
				return printJSON(models)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "MODEL\tAPI NAME\tRPM\tTPM\tEDITING")
			for _, m := range models {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%t\n",
					m.Name, m.APIModelName,
					m.RateLimits.RequestsPerMinute, m.RateLimits.TokensPerMinute,
					m.Capabilities.SupportsImageEditing,
				)
			}
			return w.Flush()
		},
	}
}
