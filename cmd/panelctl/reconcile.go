package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/valtp/saas-platform/panel-service/internal/client"
	"github.com/valtp/saas-platform/panel-service/internal/logging"
	"github.com/valtp/saas-platform/panel-service/internal/models"
	"github.com/valtp/saas-platform/panel-service/internal/service"
)

var (
	reconcileInstanceID string
	reconcileRetries    int
	reconcileWorkers    int
)

// reconcileCmd represents the reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "List remote users that no panel references",
	Long: `Page through the users of every active Pterodactyl instance (or only
--instance) and print those that no local panel references. These are left
behind when provisioning fails after the remote user was created. Nothing is
deleted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, stores, err := openStores(ctx)
		if err != nil {
			return err
		}
		defer stores.Close()

		logger := logging.Logger()
		remotes := client.NewFactory(client.Options{
			Timeout:     cfg.Pterodactyl.Timeout,
			ReadRetries: reconcileRetries,
			Logger:      logger.Named("pterodactyl"),
		})
		reconciler := service.NewReconciler(stores.Instances, stores.Panels, remotes, reconcileWorkers, logger.Named("reconcile"))

		var reports []models.OrphanReport
		if reconcileInstanceID != "" {
			report, err := reconciler.OrphanedUsers(ctx, reconcileInstanceID)
			if err != nil {
				return err
			}
			reports = append(reports, *report)
		} else {
			reports, err = reconciler.OrphanedUsersAll(ctx)
			if err != nil {
				return err
			}
		}

		printReports(cmd.OutOrStdout(), reports)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	reconcileCmd.Flags().StringVar(&reconcileInstanceID, "instance", "", "Only scan this instance id")
	reconcileCmd.Flags().IntVar(&reconcileRetries, "retries", 2, "Retries per remote read")
	reconcileCmd.Flags().IntVarP(&reconcileWorkers, "workers", "w", 4, "Instances scanned in parallel")
}

func printReports(out io.Writer, reports []models.OrphanReport) {
	for _, r := range reports {
		fmt.Fprintf(out, "%s (%s): %d remote users, %d orphaned\n", r.InstanceName, r.InstanceID, r.RemoteUsers, len(r.Orphans))
		if r.Error != "" {
			fmt.Fprintf(out, "  error: %s\n\n", r.Error)
			continue
		}
		if len(r.Orphans) == 0 {
			fmt.Fprintln(out)
			continue
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  ID\tUSERNAME\tEMAIL\tCREATED")
		for _, o := range r.Orphans {
			fmt.Fprintf(w, "  %d\t%s\t%s\t%s\n", o.ID, o.Username, o.Email, o.CreatedAt)
		}
		w.Flush()
		fmt.Fprintln(out)
	}
}
