package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCmdStream() *cobra.Command {
	return &cobra.Command{
		Use:   "stream <handle>",
		Short: "stream a program's live comments to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			handle := args[0]

			client, err := newClient(ctx)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s failed to start session: %v\n", failStatus, err)
				return err
			}

			s, err := client.StreamComments(ctx, handle)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s failed to start stream: %v\n", failStatus, err)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s streaming %s\n", okStatus, handle)

			for c := range s.Comments() {
				fmt.Fprintln(cmd.OutOrStdout(), c.String())
			}

			if err := s.Err(); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s stream ended with an error: %v\n", warnStatus, err)
				return err
			}
			return nil
		},
	}
}
