package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"

	"github.com/spf13/cobra"

	"school-device-issuance/internal/jwt"
	"school-device-issuance/internal/session"
	"school-device-issuance/internal/storage"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var userAddCmd = &cobra.Command{
	Use:   "add <email> <name>",
	Short: "Create a user",
	Long:  `Create a user account. The role is informational; effective permissions come from the role policy file.`,
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		role, _ := cmd.Flags().GetString("role")
		user := &storage.User{
			Email: args[0],
			Name:  args[1],
			Role:  role,
		}
		if err := provider.CreateUser(ctx, user); err != nil {
			slog.Error("Failed to create user", "email", args[0], "error", err)
			os.Exit(1)
		}

		fmt.Printf("User %s created (id %d)\n", user.Email, user.ID)
	},
}

// user token mints an actor token for API access. Identity is asserted by
// whoever holds shell access to this host; there is no interactive login.
var userTokenCmd = &cobra.Command{
	Use:   "token <email>",
	Short: "Issue an actor token for a user",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		user, err := provider.GetUserByEmail(ctx, args[0])
		if err != nil {
			slog.Error("User not found", "email", args[0], "error", err)
			os.Exit(1)
		}

		clientIP := "127.0.0.1"
		if host, err := os.Hostname(); err == nil {
			if addrs, err := net.LookupHost(host); err == nil && len(addrs) > 0 {
				clientIP = addrs[0]
			}
		}

		sessions := session.NewStore(provider, cfg.SessionTTLDuration())
		defer sessions.Close()

		sessionID, err := sessions.Begin(ctx, user.ID, clientIP)
		if err != nil {
			slog.Error("Failed to start session", "email", user.Email, "error", err)
			os.Exit(1)
		}

		claim := jwt.NewActorClaim(user.ID, user.Email, user.Role, sessionID)
		token, err := jwt.GenerateJWT(claim)
		if err != nil {
			slog.Error("Failed to sign token", "email", user.Email, "error", err)
			os.Exit(1)
		}

		fmt.Println(token)
	},
}

func init() {
	userAddCmd.Flags().String("role", "representative", "User role (representative, reviewer, assigner, admin)")

	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userTokenCmd)
	rootCmd.AddCommand(userCmd)
}
