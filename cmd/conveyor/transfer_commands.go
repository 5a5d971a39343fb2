package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"conveyor/internal/api"
	"conveyor/internal/ipc"
)

type transferFlags struct {
	account  int64
	resource string
	asJSON   bool
}

func (f *transferFlags) bind(cmd *cobra.Command) {
	cmd.Flags().Int64VarP(&f.account, "account", "a", 0, "Grid account id (defaults to the only configured account)")
	cmd.Flags().StringVarP(&f.resource, "resource", "r", "", "Storage resource on the grid")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "Output as JSON")
}

func newTransferCommands(ctx *commandContext) []*cobra.Command {
	var putFlags transferFlags
	putCmd := &cobra.Command{
		Use:   "put <local-path> <remote-collection>",
		Short: "Upload a local file or directory to the grid",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return enqueue(cmd, ctx, &putFlags, api.EnqueueRequest{
				Type:       "PUT",
				LocalPath:  args[0],
				RemotePath: args[1],
			})
		},
	}
	putFlags.bind(putCmd)

	var getFlags transferFlags
	getCmd := &cobra.Command{
		Use:   "get <remote-path> <local-directory>",
		Short: "Download a grid file or collection",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return enqueue(cmd, ctx, &getFlags, api.EnqueueRequest{
				Type:       "GET",
				RemotePath: args[0],
				LocalPath:  args[1],
			})
		},
	}
	getFlags.bind(getCmd)

	var replicateFlags transferFlags
	replicateCmd := &cobra.Command{
		Use:   "replicate <remote-path>",
		Short: "Replicate a grid file or collection to another resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return enqueue(cmd, ctx, &replicateFlags, api.EnqueueRequest{
				Type:       "REPLICATE",
				RemotePath: args[0],
			})
		},
	}
	replicateFlags.bind(replicateCmd)

	var copyFlags transferFlags
	copyCmd := &cobra.Command{
		Use:   "copy <remote-source> <remote-target>",
		Short: "Copy a grid file or collection to another grid collection",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return enqueue(cmd, ctx, &copyFlags, api.EnqueueRequest{
				Type:       "COPY",
				RemotePath: args[0],
				Target:     args[1],
			})
		},
	}
	copyFlags.bind(copyCmd)

	return []*cobra.Command{putCmd, getCmd, replicateCmd, copyCmd}
}

func enqueue(cmd *cobra.Command, ctx *commandContext, flags *transferFlags, req api.EnqueueRequest) error {
	return ctx.withClient(func(client *ipc.Client) error {
		accountID, err := resolveAccount(client, flags.account)
		if err != nil {
			return err
		}
		req.AccountID = accountID
		req.Resource = flags.resource

		transfer, err := client.Enqueue(req)
		if err != nil {
			return err
		}
		if flags.asJSON {
			return writeJSON(cmd, transfer)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Queued %s transfer #%d\n", transfer.Type, transfer.ID)
		return nil
	})
}

func resolveAccount(client *ipc.Client, requested int64) (int64, error) {
	if requested > 0 {
		return requested, nil
	}
	accounts, err := client.Accounts()
	if err != nil {
		return 0, err
	}
	switch len(accounts) {
	case 0:
		return 0, fmt.Errorf("no grid accounts configured; add one with `conveyor vault add-account`")
	case 1:
		return accounts[0].ID, nil
	default:
		return 0, fmt.Errorf("%d grid accounts configured; choose one with --account", len(accounts))
	}
}
