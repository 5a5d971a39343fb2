package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"conveyor/internal/api"
	"conveyor/internal/ipc"
	"conveyor/internal/synch"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	syncCmd := &cobra.Command{
		Use:     "sync",
		Aliases: []string{"synch"},
		Short:   "Manage recurring synchronizations",
	}
	syncCmd.AddCommand(
		newSyncListCommand(ctx),
		newSyncAddCommand(ctx),
		newSyncDeleteCommand(ctx),
		newSyncTriggerCommand(ctx),
	)
	return syncCmd
}

func newSyncListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List synchronizations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				syncs, err := client.Syncs()
				if err != nil {
					return err
				}
				if asJSON {
					if syncs == nil {
						syncs = []api.Synchronization{}
					}
					return writeJSON(cmd, syncs)
				}
				printSyncs(cmd.OutOrStdout(), syncs)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func printSyncs(w io.Writer, syncs []api.Synchronization) {
	if len(syncs) == 0 {
		fmt.Fprintln(w, "No synchronizations")
		return
	}
	rows := make([][]string, 0, len(syncs))
	for _, s := range syncs {
		frequency := s.FrequencyType
		if s.FrequencyType == string(synch.FrequencyEveryNMinutes) {
			frequency = fmt.Sprintf("every %d min", s.FrequencyMinutes)
		}
		rows = append(rows, []string{
			strconv.FormatInt(s.ID, 10),
			s.Name,
			frequency,
			s.Mode,
			s.LocalDir,
			s.RemoteDir,
			dash(s.LastSynchronized),
			colorStatus(w, dash(s.LastStatus)),
		})
	}
	fmt.Fprint(w, renderTable(
		[]string{"ID", "Name", "Frequency", "Mode", "Local", "Remote", "Last Run", "Last Status"},
		rows,
		[]columnAlignment{alignRight},
	))
}

func newSyncAddCommand(ctx *commandContext) *cobra.Command {
	var spec synch.Spec
	var frequency, mode string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a synchronization, or update one with --id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			spec.FrequencyType = synch.FrequencyType(strings.ToUpper(strings.TrimSpace(frequency)))
			spec.Mode = synch.Mode(strings.ToUpper(strings.TrimSpace(mode)))
			return ctx.withClient(func(client *ipc.Client) error {
				accountID, err := resolveAccount(client, spec.AccountID)
				if err != nil {
					return err
				}
				spec.AccountID = accountID
				saved, err := client.SyncSave(spec)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved synchronization #%d (%s)\n", saved.ID, saved.Name)
				return nil
			})
		},
	}
	flags := cmd.Flags()
	flags.Int64Var(&spec.ID, "id", 0, "Existing synchronization to update")
	flags.StringVar(&spec.Name, "name", "", "Synchronization name")
	flags.StringVar(&frequency, "frequency", string(synch.FrequencyDaily), "MANUAL, EVERY_N_MINUTES, HOURLY, DAILY or WEEKLY")
	flags.IntVar(&spec.FrequencyMinutes, "minutes", 0, "Interval for EVERY_N_MINUTES")
	flags.StringVar(&mode, "mode", string(synch.ModeLocalToRemote), "LOCAL_TO_REMOTE or REMOTE_TO_LOCAL")
	flags.StringVar(&spec.LocalDir, "local", "", "Local directory")
	flags.StringVar(&spec.RemoteDir, "remote", "", "Remote collection")
	flags.StringVarP(&spec.Resource, "resource", "r", "", "Storage resource on the grid")
	flags.Int64VarP(&spec.AccountID, "account", "a", 0, "Grid account id (defaults to the only configured account)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("local")
	_ = cmd.MarkFlagRequired("remote")
	return cmd
}

func newSyncDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a synchronization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if err := client.SyncDelete(id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted synchronization #%d\n", id)
				return nil
			})
		},
	}
}

func newSyncTriggerCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "trigger <id>",
		Short: "Queue a synchronization run now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				transfer, err := client.SyncTrigger(id)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if transfer == nil {
					fmt.Fprintf(out, "Synchronization #%d already has a pending run\n", id)
					return nil
				}
				fmt.Fprintf(out, "Queued SYNCH transfer #%d\n", transfer.ID)
				return nil
			})
		},
	}
}
