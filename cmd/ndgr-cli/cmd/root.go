// Package cmd implements the ndgr-cli command tree: stream, download,
// version (spec.md §6 CLI surface). Grounded on
// linkerd-linkerd2/cli/cmd/root.go's RootCmd-plus-PersistentPreRunE shape,
// including its fatih/color status-symbol convention.
package cmd

import (
	"context"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nicolive/ndgr-client/pkg/ndgr"
)

var (
	okStatus   = color.New(color.FgGreen, color.Bold).SprintFunc()("√")  // √
	warnStatus = color.New(color.FgYellow, color.Bold).SprintFunc()("‼") // ‼
	failStatus = color.New(color.FgRed, color.Bold).SprintFunc()("×")    // ×

	verbose       bool
	loginMail     string
	loginPassword string
)

// NewRootCmd builds the ndgr-cli command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ndgr-cli",
		Short: "ndgr-cli streams and archives nicolive live comments",
		Long:  `ndgr-cli drives the NDGR comment message fabric: live streaming and full historical download.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				log.SetLevel(log.DebugLevel)
			} else {
				log.SetLevel(log.InfoLevel)
			}
			return nil
		},
	}

	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "turn on debug logging")
	root.PersistentFlags().StringVar(&loginMail, "login-mail", "", "niconico account email, for timeshift activation")
	root.PersistentFlags().StringVar(&loginPassword, "login-password", "", "niconico account password, for timeshift activation")

	root.AddCommand(newCmdStream())
	root.AddCommand(newCmdDownload())
	root.AddCommand(newCmdVersion())
	return root
}

func newClient(ctx context.Context) (*ndgr.Client, error) {
	opts := ndgr.DefaultOptions()
	opts.LoginMail = loginMail
	opts.LoginPassword = loginPassword
	return ndgr.NewClient(ctx, opts)
}
