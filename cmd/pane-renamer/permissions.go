package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"pane-renamer/internal/config"
	"pane-renamer/internal/permstore"
	"pane-renamer/internal/plugin"
)

func newPermissionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "permissions",
		Short: "Inspect or edit cached plugin permission grants",
	}
	cmd.AddCommand(newPermissionsListCmd(), newPermissionsGrantCmd(), newPermissionsRevokeCmd())
	return cmd
}

func openStoreFor(cmd *cobra.Command) (*permstore.Store, error) {
	path := configPathFlag(cmd)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return permstore.Open(cfg.PermissionCachePath(path))
}

func newPermissionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached grants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStoreFor(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			grants, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PLUGIN\tPERMISSION\tGRANTED")
			for _, g := range grants {
				fmt.Fprintf(w, "%s\t%s\t%s\n", g.Plugin, g.Permission, g.GrantedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
}

func newPermissionsGrantCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "grant PLUGIN PERMISSION...",
		Short: "Grant permissions to a plugin ahead of its request",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			perms := make([]plugin.PermissionType, 0, len(args)-1)
			for _, name := range args[1:] {
				perm, err := plugin.ParsePermissionType(name)
				if err != nil {
					return err
				}
				perms = append(perms, perm)
			}

			store, err := openStoreFor(cmd)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Grant(cmd.Context(), args[0], perms...); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "granted %d permission(s) to %s\n", len(perms), args[0])
			return err
		},
	}
}

func newPermissionsRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke PLUGIN",
		Short: "Forget every cached grant of a plugin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStoreFor(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.Revoke(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "revoked %d grant(s) from %s\n", n, args[0])
			return err
		},
	}
}
