package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/iudanet/draftkeeper/internal/client/draft"
	"github.com/iudanet/draftkeeper/internal/models"
	"github.com/iudanet/draftkeeper/pkg/api"
)

func (c *Cli) newSaveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "save <type> <id> <json|@file|->",
		Short: "Queue a local edit: merge fields into the draft and mark it dirty",
		Example: `  draftkeeper save activity ca-1 '{"owner":"sam"}'
  draftkeeper save activity ca-1 @patch.json`,
		Args: cobra.ExactArgs(3),
	}

	cmd.RunE = c.withSession(func(ctx context.Context, args []string) error {
		var patch map[string]any
		if err := readJSON(cmd, args[2], &patch); err != nil {
			return err
		}

		snapshot, err := c.service.QueueDraftUpdate(ctx, args[0], args[1], patch)
		if err != nil {
			return err
		}
		return c.printJSON(snapshot)
	})

	return cmd
}

func (c *Cli) newGetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <type> <id>",
		Short: "Show the stored snapshot of an entity",
		Args:  cobra.ExactArgs(2),
	}

	cmd.RunE = c.withSession(func(ctx context.Context, args []string) error {
		snapshot, err := c.service.GetDraft(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		if snapshot == nil {
			return fmt.Errorf("%w: %s", draft.ErrSnapshotNotFound, models.EntityKey(args[0], args[1]))
		}
		return c.printJSON(snapshot)
	})

	return cmd
}

func (c *Cli) newListCommand() *cobra.Command {
	var (
		entityType string
		dirtyOnly  bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored snapshots",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().StringVar(&entityType, "type", "", "Only snapshots of this entity type")
	cmd.Flags().BoolVar(&dirtyOnly, "dirty", false, "Only snapshots pending sync")

	cmd.RunE = c.withSession(func(ctx context.Context, args []string) error {
		snapshots, err := c.store.ListSnapshots(ctx, draft.ListOptions{EntityType: entityType, DirtyOnly: dirtyOnly})
		if err != nil {
			return err
		}

		if len(snapshots) == 0 {
			c.io.Println("No snapshots found.")
			return nil
		}

		w := tabwriter.NewWriter(c.io, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "KEY\tDIRTY\tVERSION\tUPDATED\tCLIENT")
		for _, s := range snapshots {
			_, _ = fmt.Fprintf(w, "%s\t%t\t%d\t%s\t%s\n",
				s.Key(), s.Dirty, s.Metadata.Version, formatMillis(s.Metadata.UpdatedAt), s.Metadata.ClientID)
		}
		return w.Flush()
	})

	return cmd
}

// metadataFlags регистрирует флаги явных метаданных
func metadataFlags(cmd *cobra.Command, patch *draft.MetadataPatch) {
	cmd.Flags().StringVar(&patch.ClientID, "author", "", "Client id recorded as the author (default: this client)")
	cmd.Flags().Int64Var(&patch.UpdatedAt, "updated-at", 0, "Write time in epoch milliseconds (default: now)")
	cmd.Flags().Int64Var(&patch.Version, "version", 0, "Entity version (default: previous + 1)")
}

func (c *Cli) newWriteCommand() *cobra.Command {
	var (
		patch draft.MetadataPatch
		dirty bool
	)

	cmd := &cobra.Command{
		Use:   "write <type> <id> <json|@file|->",
		Short: "Store authoritative data, replacing the snapshot",
		Args:  cobra.ExactArgs(3),
	}
	metadataFlags(cmd, &patch)
	cmd.Flags().BoolVar(&dirty, "dirty", false, "Keep the snapshot pending sync")

	cmd.RunE = c.withSession(func(ctx context.Context, args []string) error {
		var data models.Record
		if err := readJSON(cmd, args[2], &data); err != nil {
			return err
		}

		snapshot, err := c.store.WriteSnapshot(ctx, draft.WriteInput[models.Record]{
			Data:       data,
			EntityType: args[0],
			EntityID:   args[1],
			Metadata:   patch,
			Dirty:      dirty,
		})
		if err != nil {
			return err
		}
		return c.printJSON(snapshot)
	})

	return cmd
}

func (c *Cli) newMarkCommand(name string, dirty bool) *cobra.Command {
	var patch draft.MetadataPatch

	short := "Mark a snapshot as confirmed by the server"
	if dirty {
		short = "Mark a snapshot as pending sync"
	}

	cmd := &cobra.Command{
		Use:   name + " <type> <id>",
		Short: short,
		Args:  cobra.ExactArgs(2),
	}
	metadataFlags(cmd, &patch)

	cmd.RunE = c.withSession(func(ctx context.Context, args []string) error {
		mark := c.store.MarkClean
		if dirty {
			mark = c.store.MarkDirty
		}

		snapshot, err := mark(ctx, args[0], args[1], patch)
		if err != nil {
			return err
		}
		return c.printJSON(snapshot)
	})

	return cmd
}

func (c *Cli) newRemoveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <type> <id>",
		Short: "Delete the snapshot of an entity",
		Args:  cobra.ExactArgs(2),
	}

	cmd.RunE = c.withSession(func(ctx context.Context, args []string) error {
		if err := c.store.RemoveSnapshot(ctx, args[0], args[1]); err != nil {
			return err
		}
		c.io.Printf("Removed %s\n", models.EntityKey(args[0], args[1]))
		return nil
	})

	return cmd
}

func (c *Cli) newClearCommand() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every snapshot of the store, including unsynced drafts",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")

	cmd.RunE = c.withSession(func(ctx context.Context, args []string) error {
		if !yes {
			answer, err := c.io.ReadInput(fmt.Sprintf("Delete all snapshots in %s? Type 'yes' to confirm: ", c.cfg.StorageConfig().Namespace()))
			if err != nil {
				return fmt.Errorf("failed to read confirmation: %w", err)
			}
			if !strings.EqualFold(answer, "yes") {
				c.io.Println("Aborted.")
				return nil
			}
		}

		if err := c.store.Clear(ctx); err != nil {
			return err
		}
		c.io.Println("Store cleared.")
		return nil
	})

	return cmd
}

func (c *Cli) newPurgeCommand() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete clean snapshots not written for a while",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Staleness cutoff")

	cmd.RunE = c.withSession(func(ctx context.Context, args []string) error {
		removed, err := c.service.PurgeStaleDrafts(ctx, c.now().Add(-olderThan))
		if err != nil {
			return err
		}
		c.io.Printf("Purged %d snapshot(s).\n", removed)
		return nil
	})

	return cmd
}

func (c *Cli) newReconcileCommand() *cobra.Command {
	var remotePath, basePath string

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Merge a server snapshot into the local draft",
		Long: `Merge a server snapshot into the local draft of the same entity.

The base is the last version both sides agreed on. Without it the server
copy wins and local differences are only reported.`,
		Example: `  draftkeeper reconcile --remote @remote.json --base @base.json`,
		Args:    cobra.NoArgs,
	}
	cmd.Flags().StringVar(&remotePath, "remote", "", "Server snapshot (json, @file or -)")
	cmd.Flags().StringVar(&basePath, "base", "", "Common ancestor snapshot (json, @file or -)")
	_ = cmd.MarkFlagRequired("remote")

	cmd.RunE = c.withSession(func(ctx context.Context, args []string) error {
		var remote api.SyncSnapshot[models.Record]
		if err := readJSON(cmd, remotePath, &remote); err != nil {
			return fmt.Errorf("remote: %w", err)
		}

		var base *api.SyncSnapshot[models.Record]
		if basePath != "" {
			base = &api.SyncSnapshot[models.Record]{}
			if err := readJSON(cmd, basePath, base); err != nil {
				return fmt.Errorf("base: %w", err)
			}
		}

		outcome, err := c.service.ReconcileDraft(ctx, remote, base)
		if err != nil {
			return err
		}
		return c.printJSON(outcome)
	})

	return cmd
}

func (c *Cli) newPushCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Send every dirty snapshot to the server",
		Args:  cobra.NoArgs,
	}

	cmd.RunE = c.withSession(func(ctx context.Context, args []string) error {
		result, err := c.service.Flush(ctx)
		if err != nil {
			return err
		}

		c.io.Printf("Pushed: %d, conflicts: %d, failed: %d\n", result.Pushed, len(result.Conflicts), result.Failed)
		for _, remote := range result.Conflicts {
			c.io.Printf("  %s: server has version %d by %s, run 'draftkeeper reconcile'\n",
				models.EntityKey(remote.EntityType, remote.EntityID), remote.Metadata.Version, remote.Metadata.ClientID)
		}
		if result.Failed > 0 {
			return fmt.Errorf("%d snapshot(s) could not be pushed", result.Failed)
		}
		return nil
	})

	return cmd
}

func (c *Cli) newPullCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pull <type> <id>",
		Short: "Fetch the server copy of an entity",
		Args:  cobra.ExactArgs(2),
	}

	cmd.RunE = c.withSession(func(ctx context.Context, args []string) error {
		result, err := c.service.Pull(ctx, args[0], args[1])
		if errors.Is(err, api.ErrSnapshotNotFound) {
			c.io.Printf("Server has no %s.\n", models.EntityKey(args[0], args[1]))
			return nil
		}
		if err != nil {
			return err
		}

		if !result.Installed {
			c.io.Println("Local draft has unsynced changes, server copy not applied. Run 'draftkeeper reconcile'.")
			return c.printJSON(result.Remote)
		}
		return c.printJSON(result.Local)
	})

	return cmd
}

func (c *Cli) newStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show store identity and pending work",
		Args:  cobra.NoArgs,
	}

	cmd.RunE = c.withSession(func(ctx context.Context, args []string) error {
		all, err := c.store.ListSnapshots(ctx, draft.ListOptions{})
		if err != nil {
			return err
		}
		pending := 0
		for _, s := range all {
			if s.Dirty {
				pending++
			}
		}

		c.io.Println("=== Draft Store ===")
		c.io.Printf("Namespace:  %s\n", c.cfg.StorageConfig().Namespace())
		c.io.Printf("Backend:    %s\n", c.cfg.Backend)
		c.io.Printf("Client ID:  %s\n", c.store.ClientID())
		c.io.Printf("Encrypted:  %t\n", c.cfg.PassphraseFile != "")
		c.io.Printf("Server:     %s\n", c.cfg.ServerURL)
		c.io.Printf("Snapshots:  %d (%d pending sync)\n", len(all), pending)
		return nil
	})

	return cmd
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}
