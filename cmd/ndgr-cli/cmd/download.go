package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nicolive/ndgr-client/internal/xmltranscript"
	"github.com/nicolive/ndgr-client/pkg/ndgr"
)

func newCmdDownload() *cobra.Command {
	var outputDir string

	cmd := &cobra.Command{
		Use:   `download <handle|"all">`,
		Short: "download a program's full historical comment log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			target := args[0]

			client, err := newClient(ctx)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s failed to start session: %v\n", failStatus, err)
				return err
			}

			if outputDir != "" {
				if err := os.MkdirAll(outputDir, 0o755); err != nil {
					return err
				}
			}

			handles := []string{target}
			if target == "all" {
				handles = client.Aliases()
			}

			var lastErr error
			for _, handle := range handles {
				if err := downloadOne(cmd, client, handle, outputDir); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s %s: %v\n", failStatus, handle, err)
					lastErr = err
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s downloaded\n", okStatus, handle)
			}
			return lastErr
		},
	}

	cmd.Flags().StringVar(&outputDir, "output-dir", "", "directory to write .xml transcripts into (default: current directory)")
	return cmd
}

// downloadOne is kept out of the "all" loop separately so a single
// channel's failure doesn't abort the rest; "all" iterates sequentially,
// not concurrently, since a parallel walk against every channel at once
// risks the same rate-limit response a too-fast single-channel walk does.
func downloadOne(cmd *cobra.Command, client *ndgr.Client, handle, outputDir string) error {
	ctx := cmd.Context()

	comments, err := client.DownloadBackward(ctx, handle)
	if err != nil {
		return err
	}

	path := filepath.Join(outputDir, handle+".xml")
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return xmltranscript.WriteAll(f, comments)
}
