package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"conveyor/internal/api"
	"conveyor/internal/ipc"
	"conveyor/internal/vault"
)

func newVaultCommand(ctx *commandContext) *cobra.Command {
	vaultCmd := &cobra.Command{
		Use:   "vault",
		Short: "Manage the pass phrase and stored grid accounts",
	}

	vaultCmd.AddCommand(
		newVaultStatusCommand(ctx),
		newVaultUnlockCommand(ctx),
		newVaultChangeCommand(ctx),
		newVaultAccountsCommand(ctx),
		newVaultAddAccountCommand(ctx),
		newVaultDeleteAccountCommand(ctx),
		newVaultResetCommand(ctx),
	)
	return vaultCmd
}

func newVaultStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether a pass phrase is stored and validated",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				status, err := client.VaultStatus()
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, status)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Pass phrase stored:    %s\n", yesNo(status.Stored))
				fmt.Fprintf(out, "Pass phrase validated: %s\n", yesNo(status.Validated))
				fmt.Fprintf(out, "Grid accounts:         %d\n", status.Accounts)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newVaultUnlockCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "unlock",
		Short: "Validate the pass phrase, storing it on first use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			phrase, err := ctx.readPassPhrase(cmd, "Pass phrase: ")
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if err := client.VaultUnlock(phrase); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Vault unlocked")
				return nil
			})
		},
	}
}

func newVaultChangeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "change",
		Short: "Change the pass phrase and re-encrypt stored passwords",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			phrase, err := ctx.readPassPhrase(cmd, "New pass phrase: ")
			if err != nil {
				return err
			}
			confirm, err := ctx.readPassPhrase(cmd, "Repeat new pass phrase: ")
			if err != nil {
				return err
			}
			if phrase != confirm {
				return fmt.Errorf("pass phrases do not match")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if err := client.VaultChange(phrase); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Pass phrase changed")
				return nil
			})
		},
	}
}

func newVaultAccountsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "List grid accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				accounts, err := client.Accounts()
				if err != nil {
					return err
				}
				if asJSON {
					if accounts == nil {
						accounts = []api.Account{}
					}
					return writeJSON(cmd, accounts)
				}
				printAccounts(cmd.OutOrStdout(), accounts)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func printAccounts(w io.Writer, accounts []api.Account) {
	if len(accounts) == 0 {
		fmt.Fprintln(w, "No grid accounts")
		return
	}
	rows := make([][]string, 0, len(accounts))
	for _, a := range accounts {
		rows = append(rows, []string{
			strconv.FormatInt(a.ID, 10),
			fmt.Sprintf("%s:%d", a.Host, a.Port),
			a.Zone,
			a.UserName,
			dash(a.DefaultResource),
			a.AuthScheme,
			dash(a.Comment),
		})
	}
	fmt.Fprint(w, renderTable(
		[]string{"ID", "Host", "Zone", "User", "Resource", "Auth", "Comment"},
		rows,
		[]columnAlignment{alignRight},
	))
}

func newVaultAddAccountCommand(ctx *commandContext) *cobra.Command {
	spec := vault.AccountSpec{Port: 1247}
	var authScheme string
	cmd := &cobra.Command{
		Use:   "add-account",
		Short: "Add or update a grid account; the password is prompted for",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			spec.AuthScheme = vault.AuthScheme(strings.ToUpper(strings.TrimSpace(authScheme)))
			password, err := ctx.readPassPhrase(cmd, "Grid password: ")
			if err != nil {
				return err
			}
			spec.Password = password
			return ctx.withClient(func(client *ipc.Client) error {
				account, err := client.AccountSave(spec)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved grid account #%d (%s@%s)\n", account.ID, account.UserName, account.Host)
				return nil
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&spec.Host, "host", "", "Grid host")
	flags.IntVar(&spec.Port, "port", spec.Port, "Grid port")
	flags.StringVar(&spec.Zone, "zone", "", "Grid zone")
	flags.StringVarP(&spec.UserName, "user", "u", "", "Grid user name")
	flags.StringVar(&spec.DefaultResource, "resource", "", "Default storage resource")
	flags.StringVar(&spec.HomePath, "home", "", "Home collection")
	flags.StringVar(&authScheme, "auth", string(vault.AuthStandard), "Authentication scheme (STANDARD or PAM)")
	flags.StringVar(&spec.Comment, "comment", "", "Free-form note")
	_ = cmd.MarkFlagRequired("host")
	_ = cmd.MarkFlagRequired("zone")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newVaultDeleteAccountCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-account <id>",
		Short: "Delete a grid account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if err := client.AccountDelete(id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted grid account #%d\n", id)
				return nil
			})
		},
	}
}

func newVaultResetCommand(ctx *commandContext) *cobra.Command {
	var confirmed bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Forget the pass phrase and delete all grid accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmed {
				return fmt.Errorf("vault reset deletes every grid account; re-run with --yes to confirm")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if err := client.VaultReset(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Vault reset")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&confirmed, "yes", false, "Confirm deletion")
	return cmd
}
