package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	app "school-device-issuance/internal"
	"school-device-issuance/internal/access"
	"school-device-issuance/internal/assettag"
	"school-device-issuance/internal/assignment"
	"school-device-issuance/internal/audit"
	"school-device-issuance/internal/config"
	"school-device-issuance/internal/files"
	"school-device-issuance/internal/lifecycle"
	"school-device-issuance/internal/notify"
	"school-device-issuance/internal/registry"
	"school-device-issuance/internal/routes"
	"school-device-issuance/internal/session"
	"school-device-issuance/internal/storage"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the device issuance API server",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		fmt.Println("Starting device issuance server...")
		ServerMain(ctx, provider)
	},
}

func LoadAccessRBAC(cfg *config.Config) *access.RBAC {
	rbac := access.GetRBAC()
	if cfg.RBAC.PolicyFile != "" {
		if err := rbac.LoadPolicy(cfg.RBAC.PolicyFile); err != nil {
			slog.Error("Failed to load RBAC policy", "error", err, "file", cfg.RBAC.PolicyFile)
			os.Exit(1)
		}
	}
	for _, admin := range cfg.RBAC.Admins {
		rbac.AssignRole(admin, "admin")
	}
	return rbac
}

// newNotifier returns the email notifier when SMTP is configured, otherwise
// a no-op so the lifecycle engine never has a nil collaborator.
func newNotifier(cfg *config.Config) lifecycle.Notifier {
	if cfg.SMTP.Host == "" {
		slog.Info("SMTP not configured, notifications disabled")
		return lifecycle.NopNotifier{}
	}
	notifier, err := notify.NewEmailNotifier(cfg.SMTP)
	if err != nil {
		slog.Error("Failed to initialize email notifier", "error", err)
		os.Exit(1)
	}
	return notifier
}

func ServerMain(ctx context.Context, storageProvider storage.Provider) {

	if config.Cfg == nil {
		panic("Config not initialized.")
	}

	// Use the provider passed from cobra command (already initialized)
	if storageProvider == nil {
		slog.Error("Storage provider is nil")
		os.Exit(1)
	}

	letters, err := files.NewLetters(config.Cfg.Letters.Folder, config.Cfg.Letters.MaxSize)
	if err != nil {
		slog.Error("Failed to initialize letter store", "error", err, "folder", config.Cfg.Letters.Folder)
		os.Exit(1)
	}

	notifier := newNotifier(config.Cfg)
	auditor := audit.NewSink(storageProvider)
	sessions := session.NewStore(storageProvider, config.Cfg.SessionTTLDuration())
	defer sessions.Close()

	deps := &routes.Deps{
		Store:        storageProvider,
		Devices:      registry.NewDevices(storageProvider),
		Schools:      registry.NewSchools(storageProvider),
		Applications: registry.NewApplications(storageProvider),
		Engine:       lifecycle.NewEngine(storageProvider, letters, notifier, auditor),
		Coordinator:  assignment.NewCoordinator(storageProvider, assettag.New(), notifier, auditor),
		Letters:      letters,
		Audit:        auditor,
		Sessions:     sessions,
	}

	// Initialize HTTP server
	server := app.HTTPServer()

	// Initialize RBAC
	rbac := LoadAccessRBAC(config.Cfg)

	// Middleware to inject storage provider into context
	server.Use(func(c *gin.Context) {
		c.Set("Storage", storageProvider)
		c.Next()
	}, func(c *gin.Context) {
		c.Set("RBAC", rbac)
		c.Next()
	})

	routes.RegisterRoutes(server, deps)

	server.Run(config.Cfg.ListenAddr)
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
