package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"school-device-issuance/internal/registry"
)

var schoolCmd = &cobra.Command{
	Use:   "school",
	Short: "Manage the school directory",
}

var schoolListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered schools",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		schools, err := provider.ListSchools(ctx)
		if err != nil {
			slog.Error("Failed to list schools", "error", err)
			os.Exit(1)
		}

		if len(schools) == 0 {
			fmt.Println("No schools found")
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CODE\tNAME\tDISTRICT\tSECTOR\tREPRESENTATIVE")
		for _, school := range schools {
			rep := ""
			if school.RepresentativeID != nil {
				if user, err := provider.GetUser(ctx, *school.RepresentativeID); err == nil {
					rep = user.Email
				}
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				school.Code,
				school.Name,
				school.District,
				school.Sector,
				rep,
			)
		}
		w.Flush()
	},
}

var schoolAddCmd = &cobra.Command{
	Use:   "add <code> <name>",
	Short: "Register a new school",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		in := registry.NewSchoolInput{
			Code: args[0],
			Name: args[1],
		}
		in.Province, _ = cmd.Flags().GetString("province")
		in.District, _ = cmd.Flags().GetString("district")
		in.Sector, _ = cmd.Flags().GetString("sector")
		in.Cell, _ = cmd.Flags().GetString("cell")
		in.Village, _ = cmd.Flags().GetString("village")

		schools := registry.NewSchools(provider)
		school, err := schools.Create(ctx, in)
		if err != nil {
			slog.Error("Failed to register school", "code", args[0], "error", err)
			os.Exit(1)
		}

		fmt.Printf("School %s (%s) registered\n", school.Code, school.Name)
	},
}

var schoolRepCmd = &cobra.Command{
	Use:   "representative <code> <email>",
	Short: "Link a user as the school's representative",
	Long:  `Link an existing user as the school's representative. A user can represent at most one school.`,
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		user, err := provider.GetUserByEmail(ctx, args[1])
		if err != nil {
			slog.Error("User not found", "email", args[1], "error", err)
			os.Exit(1)
		}

		schools := registry.NewSchools(provider)
		school, err := schools.SetRepresentative(ctx, args[0], user.ID)
		if err != nil {
			slog.Error("Failed to link representative", "school", args[0], "email", args[1], "error", err)
			os.Exit(1)
		}

		fmt.Printf("User %s now represents school %s\n", user.Email, school.Code)
	},
}

func init() {
	schoolAddCmd.Flags().String("province", "", "Province")
	schoolAddCmd.Flags().String("district", "", "District")
	schoolAddCmd.Flags().String("sector", "", "Sector")
	schoolAddCmd.Flags().String("cell", "", "Cell")
	schoolAddCmd.Flags().String("village", "", "Village")

	schoolCmd.AddCommand(schoolListCmd)
	schoolCmd.AddCommand(schoolAddCmd)
	schoolCmd.AddCommand(schoolRepCmd)
	rootCmd.AddCommand(schoolCmd)
}
