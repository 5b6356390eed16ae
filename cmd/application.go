package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"school-device-issuance/internal/registry"
	"school-device-issuance/internal/storage"
)

var applicationCmd = &cobra.Command{
	Use:   "application",
	Short: "Inspect device applications",
}

var applicationListCmd = &cobra.Command{
	Use:   "list [status]",
	Short: "List applications",
	Long:  `List applications by status. Valid statuses: Pending, UnderReview, Approved, Rejected, Assigned, Received, Cancelled. Defaults to all.`,
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		var filter storage.ApplicationFilter
		if len(args) > 0 {
			status := storage.ApplicationStatus(args[0])
			if !storage.ValidApplicationStatus(status) {
				slog.Error("Invalid status", "status", args[0])
				fmt.Println("Valid statuses: Pending, UnderReview, Approved, Rejected, Assigned, Received, Cancelled")
				os.Exit(1)
			}
			filter.Status = status
		}

		apps, err := provider.ListApplications(ctx, filter)
		if err != nil {
			slog.Error("Failed to list applications", "error", err)
			os.Exit(1)
		}

		if len(apps) == 0 {
			fmt.Println("No applications found")
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSCHOOL\tSTATUS\tELIGIBLE\tCREATED AT")
		for _, app := range apps {
			fmt.Fprintf(w, "%d\t%s\t%s\t%t\t%s\n",
				app.ID,
				app.SchoolCode,
				app.Status,
				app.IsEligible,
				app.CreatedAt.Format("2006-01-02 15:04:05"),
			)
		}
		w.Flush()
	},
}

var applicationShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one application in full",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		var id int64
		if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
			slog.Error("Invalid application id", "id", args[0])
			os.Exit(1)
		}

		detail, err := registry.NewApplications(provider).Detail(ctx, id)
		if err != nil {
			slog.Error("Failed to load application", "id", id, "error", err)
			os.Exit(1)
		}

		app := detail.Application
		fmt.Printf("Application %d\n", app.ID)
		fmt.Printf("  School:    %s (%s)\n", detail.School.Name, detail.School.Code)
		fmt.Printf("  Applicant: %s\n", detail.Applicant.Email)
		fmt.Printf("  Status:    %s\n", app.Status)
		fmt.Printf("  Eligible:  %t\n", app.IsEligible)
		if detail.Reviewer != nil {
			fmt.Printf("  Reviewer:  %s\n", detail.Reviewer.Email)
		}

		if len(detail.Items) > 0 {
			fmt.Println("  Requested:")
			for _, item := range detail.Items {
				fmt.Printf("    %s x%d\n", item.Category, item.Quantity)
			}
		}
		if len(detail.Devices) > 0 {
			fmt.Println("  Assigned devices:")
			for _, snapshot := range detail.Devices {
				fmt.Printf("    %s (%s)\n", snapshot.SerialNumber, snapshot.Category)
			}
		}
	},
}

func init() {
	applicationCmd.AddCommand(applicationListCmd)
	applicationCmd.AddCommand(applicationShowCmd)
	rootCmd.AddCommand(applicationCmd)
}
