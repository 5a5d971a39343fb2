package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"conveyor/internal/api"
	"conveyor/internal/ipc"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the transfer queue",
	}

	queueCmd.AddCommand(newQueueViewCommand(ctx, "list", "current", "List pending transfers in run order"))
	queueCmd.AddCommand(newQueueViewCommand(ctx, "recent", "recent", "List recently finished transfers"))
	queueCmd.AddCommand(newQueueViewCommand(ctx, "errors", "errors", "List transfers that finished with errors"))
	queueCmd.AddCommand(newQueueViewCommand(ctx, "warnings", "warnings", "List transfers that finished with warnings"))
	queueCmd.AddCommand(newQueueDescribeCommand(ctx))
	queueCmd.AddCommand(newQueueItemsCommand(ctx))
	queueCmd.AddCommand(newQueueTransitionCommand(ctx, "cancel", "Cancel a transfer", (*ipc.Client).Cancel, "Cancelled"))
	queueCmd.AddCommand(newQueueTransitionCommand(ctx, "restart", "Restart a transfer from its last successful file", (*ipc.Client).Restart, "Restarted"))
	queueCmd.AddCommand(newQueueTransitionCommand(ctx, "resubmit", "Resubmit a transfer from the beginning", (*ipc.Client).Resubmit, "Resubmitted"))
	queueCmd.AddCommand(newQueueEngineCommand(ctx, "pause", "Pause the transfer engine", (*ipc.Client).Pause))
	queueCmd.AddCommand(newQueueEngineCommand(ctx, "resume", "Resume the transfer engine", (*ipc.Client).Resume))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))
	queueCmd.AddCommand(newQueuePurgeCommand(ctx))

	return queueCmd
}

func newQueueViewCommand(ctx *commandContext, use, view, short string) *cobra.Command {
	var limit int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				transfers, err := client.QueueList(view, limit)
				if err != nil {
					return err
				}
				if asJSON {
					if transfers == nil {
						transfers = []api.Transfer{}
					}
					return writeJSON(cmd, transfers)
				}
				printTransfers(cmd.OutOrStdout(), transfers)
				return nil
			})
		},
	}
	if view == "recent" {
		cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum transfers to show (defaults to the configured recent queue size)")
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func printTransfers(w io.Writer, transfers []api.Transfer) {
	if len(transfers) == 0 {
		fmt.Fprintln(w, "No transfers")
		return
	}
	rows := make([][]string, 0, len(transfers))
	for _, t := range transfers {
		source, target := transferEnds(t)
		rows = append(rows, []string{
			strconv.FormatInt(t.ID, 10),
			t.Type,
			t.State,
			colorStatus(w, t.Status),
			dash(source),
			dash(target),
			t.UpdatedAt,
		})
	}
	fmt.Fprint(w, renderTable(
		[]string{"ID", "Type", "State", "Status", "Source", "Target", "Updated"},
		rows,
		[]columnAlignment{alignRight},
	))
}

// transferEnds returns where a transfer reads from and writes to.
func transferEnds(t api.Transfer) (string, string) {
	switch t.Type {
	case "GET", "COPY":
		return t.RemotePath, t.LocalPath
	case "REPLICATE":
		return t.RemotePath, t.Resource
	}
	return t.LocalPath, t.RemotePath
}

func newQueueDescribeCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "describe <id>",
		Short: "Show a transfer and its attempts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				transfer, err := client.Describe(id)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, transfer)
				}
				printTransferDetail(cmd.OutOrStdout(), transfer)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func printTransferDetail(w io.Writer, t api.Transfer) {
	fmt.Fprintf(w, "Transfer:  #%d %s\n", t.ID, t.Type)
	fmt.Fprintf(w, "State:     %s\n", t.State)
	fmt.Fprintf(w, "Status:    %s\n", colorStatus(w, t.Status))
	fmt.Fprintf(w, "Local:     %s\n", dash(t.LocalPath))
	fmt.Fprintf(w, "Remote:    %s\n", dash(t.RemotePath))
	fmt.Fprintf(w, "Resource:  %s\n", dash(t.Resource))
	fmt.Fprintf(w, "Account:   %d\n", t.AccountID)
	if t.SynchronizationID > 0 {
		fmt.Fprintf(w, "Sync:      %d\n", t.SynchronizationID)
	}
	fmt.Fprintf(w, "Created:   %s\n", dash(t.CreatedAt))
	fmt.Fprintf(w, "Updated:   %s\n", dash(t.UpdatedAt))
	if len(t.Attempts) == 0 {
		fmt.Fprintln(w, "No attempts yet")
		return
	}
	rows := make([][]string, 0, len(t.Attempts))
	for _, a := range t.Attempts {
		message := a.ErrorMessage
		if message == "" {
			message = a.GlobalException
		}
		rows = append(rows, []string{
			strconv.FormatInt(a.ID, 10),
			colorStatus(w, a.Status),
			dash(a.StartedAt),
			dash(a.EndedAt),
			strconv.Itoa(a.TotalFiles),
			strconv.Itoa(a.FilesTransferred),
			strconv.Itoa(a.FilesSkipped),
			strconv.Itoa(a.ErrorCount),
			dash(message),
		})
	}
	fmt.Fprint(w, renderTable(
		[]string{"Attempt", "Status", "Started", "Ended", "Total", "Done", "Skipped", "Errors", "Message"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight},
	))
}

func newQueueItemsCommand(ctx *commandContext) *cobra.Command {
	var req ipc.ItemsRequest
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "items <id>",
		Short: "List per-file outcomes of a transfer's current attempt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			req.TransferID = id
			return ctx.withClient(func(client *ipc.Client) error {
				page, err := client.Items(req)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, page)
				}
				printItems(cmd.OutOrStdout(), page)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&req.ShowSuccess, "success", false, "Include successfully transferred files")
	cmd.Flags().BoolVar(&req.ShowSkipped, "skipped", false, "Include skipped files")
	cmd.Flags().IntVar(&req.Offset, "offset", 0, "Number of items to skip")
	cmd.Flags().IntVarP(&req.Limit, "limit", "n", 50, "Maximum items to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func printItems(w io.Writer, page api.ItemPage) {
	if len(page.Items) == 0 {
		fmt.Fprintf(w, "No items for attempt #%d\n", page.AttemptID)
		return
	}
	rows := make([][]string, 0, len(page.Items))
	for _, item := range page.Items {
		outcome := "ok"
		switch {
		case item.IsError:
			outcome = "error"
		case item.IsSkipped:
			outcome = "skipped"
		}
		rows = append(rows, []string{outcome, item.SourcePath, item.TargetPath, dash(item.ErrorMessage)})
	}
	fmt.Fprint(w, renderTable([]string{"Outcome", "Source", "Target", "Message"}, rows, nil))
	fmt.Fprintf(w, "Showing %d of %d items for attempt #%d\n", len(page.Items), page.Total, page.AttemptID)
}

func newQueueTransitionCommand(ctx *commandContext, use, short string, call func(*ipc.Client, int64) (api.Transfer, error), verb string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				transfer, err := call(client, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s transfer #%d (%s)\n", verb, transfer.ID, transfer.State)
				return nil
			})
		},
	}
}

func newQueueEngineCommand(ctx *commandContext, use, short string, call func(*ipc.Client) (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				running, err := call(client)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Engine is %s\n", running)
				return nil
			})
		},
	}
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Delete a transfer that is not running",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if err := client.Remove(id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed transfer #%d\n", id)
				return nil
			})
		},
	}
}

func newQueuePurgeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:       "purge [completed|successful|all]",
		Short:     "Delete finished transfers from the history",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"completed", "successful", "all"},
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := "completed"
			if len(args) == 1 {
				mode = args[0]
			}
			return ctx.withClient(func(client *ipc.Client) error {
				removed, err := client.Purge(mode)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Purged %d transfers\n", removed)
				return nil
			})
		},
	}
}
