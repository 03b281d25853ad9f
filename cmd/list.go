package cmd

import (
	"fmt"

	"github.com/audiolibrelab/streamrec/internal/service"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recordings in the output directory",
	Long:  `List the recordings in the configured output directory, newest first.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		recordings, err := service.New(cfg).ListRecordings()
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if len(recordings) == 0 {
			fmt.Fprintf(w, "No recordings in %s\n", cfg.Output.Directory)
			return nil
		}

		fmt.Fprintf(w, "Recordings in %s (%d found):\n", cfg.Output.Directory, len(recordings))
		for _, r := range recordings {
			fmt.Fprintf(w, "  %-36s %-10s %10s  %s\n", r.Name, r.Format, r.SizeHuman, r.ModTimeHuman)
		}
		return nil
	},
}
