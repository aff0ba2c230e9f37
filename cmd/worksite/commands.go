package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"worksite/pkg/domain"
)

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import [locator]",
		Short: "Import projects from an xlsx workbook",
		Long: `Import projects from an xlsx workbook at a path, an http(s) URL or an
s3://bucket/key object. Without a locator the saved import URL is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var locator string
			if len(args) == 1 {
				locator = args[0]
			}
			summary, err := a.svc.Import(a.ctx, locator)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Imported %d new, %d updated, %d unchanged (%d photos)\n",
				summary.Added, summary.Updated, summary.Unchanged, summary.Photos)
			if n := summary.SkippedDuplicates + summary.SkippedInvalid; n > 0 {
				fmt.Fprintf(out, "Skipped %d rows (%d duplicate, %d invalid)\n", n, summary.SkippedDuplicates, summary.SkippedInvalid)
			}
			if summary.SkippedImages > 0 {
				fmt.Fprintf(out, "Skipped %d oversized images\n", summary.SkippedImages)
			}
			for i := range summary.Warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", &summary.Warnings[i])
			}
			return nil
		},
	}
}

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <path>",
		Short: "Re-import a workbook each time it changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(a.ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()
			if _, err := a.svc.Import(ctx, args[0]); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "initial import failed: %v\n", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Watching %s (Ctrl-C to stop)\n", args[0])
			err := a.svc.WatchImport(ctx, args[0])
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	var class string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := domain.Classification(class)
			if c != "" && !c.Valid() {
				return fmt.Errorf("unknown project type %q", class)
			}
			writeProjects(cmd.OutOrStdout(), a.svc.Projects(c))
			return nil
		},
	}
	cmd.Flags().StringVarP(&class, "type", "t", "", "construction, maintenance or modular_house")
	return cmd
}

func writeProjects(out io.Writer, projects []domain.Project) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tCLIENT\tSTATUS\tPROGRESS\tAPPOINTMENT")
	for _, p := range projects {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d%%\t%s\n",
			p.ID, p.Name, p.Type, p.ClientName, p.Status, p.Progress, p.AppointmentDate)
	}
	_ = tw.Flush()
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show directory, cache and import status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			state := a.svc.SyncState()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			handle := "-"
			if h, ok := a.svc.Handle(); ok {
				handle = h.String()
			}
			saved := "never"
			if !state.LastSaved.IsZero() {
				saved = state.LastSaved.Local().Format(time.DateTime)
			}
			fmt.Fprintf(tw, "Directory:\t%s\n", handle)
			fmt.Fprintf(tw, "Permission:\t%s\n", state.Permission)
			fmt.Fprintf(tw, "Connected:\t%t\n", state.Connected)
			fmt.Fprintf(tw, "Last saved:\t%s\n", saved)
			fmt.Fprintf(tw, "Import URL:\t%s\n", orDash(a.svc.ImportURL()))
			fmt.Fprintf(tw, "Last import:\t%s\n", orDash(a.svc.LastImportDate()))
			fmt.Fprintf(tw, "Projects:\t%d\n", len(a.svc.Projects("")))
			fmt.Fprintf(tw, "Users:\t%d\n", len(a.svc.Users()))
			return tw.Flush()
		},
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func newConnectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "connect [locator]",
		Short: "Link a directory and mirror the ledger into it",
		Long: `Link a directory (a path, s3://bucket/prefix or memory:name) and ask for
read-write access. Without a locator WORKSITE_DIRECTORY is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if len(args) == 1 {
				err = a.svc.ConnectTo(a.ctx, args[0])
			} else {
				err = a.svc.Connect(a.ctx)
			}
			if err != nil {
				return err
			}
			a.svc.Flush()
			state := a.svc.SyncState()
			fmt.Fprintf(cmd.OutOrStdout(), "Directory linked (%s)\n", state.Permission)
			return nil
		},
	}
}

func newSyncCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Merge the linked directory with the local ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := a.svc.Sync(a.ctx)
			if err != nil {
				return err
			}
			if report.Initial {
				fmt.Fprintln(cmd.OutOrStdout(), "Directory was empty; wrote the local ledger")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Synced: %d added, %d kept, %d overwritten, %d skipped\n",
				report.Added, report.Kept, report.Overwritten, report.Skipped)
			return nil
		},
	}
}

func newDisconnectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Unlink the directory and forget it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.svc.Disconnect(a.ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Directory unlinked")
			return nil
		},
	}
}

func newBackupCmd(a *app) *cobra.Command {
	backup := &cobra.Command{
		Use:   "backup",
		Short: "Export or restore a JSON backup",
	}
	backup.AddCommand(&cobra.Command{
		Use:   "export <file|->",
		Short: "Write a backup of projects, users and audit log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[0] == "-" {
				return a.svc.ExportBackup(a.ctx, cmd.OutOrStdout())
			}
			f, err := os.Create(args[0])
			if err != nil {
				return err
			}
			if err := a.svc.ExportBackup(a.ctx, f); err != nil {
				_ = f.Close()
				return err
			}
			return f.Close()
		},
	})
	backup.AddCommand(&cobra.Command{
		Use:   "restore <file|->",
		Short: "Replace the ledger with a backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			if err := a.svc.RestoreBackup(a.ctx, r); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %d projects\n", len(a.svc.Projects("")))
			return nil
		},
	})
	return backup
}

func newSettingsCmd(a *app) *cobra.Command {
	settings := &cobra.Command{
		Use:   "settings",
		Short: "Change stored settings",
	}
	settings.AddCommand(&cobra.Command{
		Use:   "import-url <url>",
		Short: "Set the default import source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.svc.SetImportURL(a.ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Import URL set to %s\n", args[0])
			return nil
		},
	})
	return settings
}

func newLoginCmd(a *app) *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "login <email>",
		Short: "Register a user or show an existing one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := a.svc.Login(a.ctx, args[0], domain.UserRole(role))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s <%s> %s (%s)\n", u.Name, u.Email, u.Role, u.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "user-role", string(domain.RoleManager), "admin, manager or worker")
	return cmd
}

func newAuditCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the audit log, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			entries := a.svc.AuditLog()
			if limit > 0 && len(entries) > limit {
				entries = entries[:limit]
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tUSER\tACTION\tDETAILS")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", time.UnixMilli(e.Timestamp).Local().Format(time.DateTime), e.ActorName, e.Action, e.Details)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "entries to show; 0 shows all")
	return cmd
}
