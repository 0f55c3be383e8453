package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mhpenta/detailsmatter/session"
)

func newSessionsCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect saved sessions",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List saved sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := root.load()
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			codec, err := session.NewCodec(cfg.Storage.SessionsDir, log)
			if err != nil {
				return err
			}
			saved, err := codec.List()
			if err != nil {
				return err
			}
			log.Debug("listed sessions", zap.Int("count", len(saved)))

			if root.jsonOutput {
				return printJSON(saved)
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "ID\tVARIANT\tSTYLE\tTURNS\tIMAGES\tEXPORTED")
			for _, s := range saved {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
					s.ID, s.Variant, s.Style, s.Turns, s.Images, s.ExportedAt.Local().Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	})
	return cmd
}
