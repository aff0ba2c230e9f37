package main

import (
	"github.com/spf13/cobra"

	"worksite/pkg/domain"
)

// newRootCmd builds the command tree. The caller closes a after Execute,
// since cobra skips post-run hooks when a command fails.
func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "worksite",
		Short: "Track construction, maintenance and modular-house projects",
		Long: `worksite keeps a project ledger in a local cache and, when linked,
mirrors it to db.json in a directory (a local path or an s3://bucket/prefix).

Settings come from WORKSITE_* environment variables and .env files.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringSliceVar(&a.envFiles, "env-file", nil, "env files to load (default .env, .env.local)")
	flags.StringVar(&a.actor, "as", "", "email of the user the changes are attributed to")
	flags.StringVar(&a.role, "role", string(domain.RoleManager), "role used when --as creates a new user")
	flags.BoolVarP(&a.assumeYes, "yes", "y", false, "grant directory access without asking")
	flags.BoolVar(&a.link, "link", true, "re-request access to a remembered directory on start")

	root.AddCommand(
		newImportCmd(a),
		newWatchCmd(a),
		newListCmd(a),
		newStatusCmd(a),
		newConnectCmd(a),
		newSyncCmd(a),
		newDisconnectCmd(a),
		newBackupCmd(a),
		newSettingsCmd(a),
		newLoginCmd(a),
		newAuditCmd(a),
	)
	return root
}
