package storage

import (
	"context"
	"log/slog"
	"time"

	"school-device-issuance/internal/config"
)

// Store is the set of reads and writes available both on a Provider directly
// and inside a transaction started with InTx.
type Store interface {
	// School directory
	CreateSchool(ctx context.Context, school *School) error
	GetSchoolByCode(ctx context.Context, code string) (*School, error)
	GetSchoolByRepresentative(ctx context.Context, userID int64) (*School, error)
	ListSchools(ctx context.Context) ([]School, error)
	UpdateSchool(ctx context.Context, school *School) error

	// Users
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id int64) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// Device registry
	CreateDevice(ctx context.Context, device *Device) error
	GetDevice(ctx context.Context, id int64) (*Device, error)
	GetDeviceBySerial(ctx context.Context, serial string) (*Device, error)
	ListDevices(ctx context.Context, filter DeviceFilter) ([]Device, error)
	UpdateDevice(ctx context.Context, device *Device) error
	CountDevicesByStatus(ctx context.Context) (map[DeviceStatus]int, error)

	// Applications
	CreateApplication(ctx context.Context, app *Application, items []ApplicationItem) error
	GetApplication(ctx context.Context, id int64) (*Application, error)
	GetLiveApplicationBySchool(ctx context.Context, schoolCode string) (*Application, error)
	ListApplications(ctx context.Context, filter ApplicationFilter) ([]Application, error)
	ListApplicationItems(ctx context.Context, applicationID int64) ([]ApplicationItem, error)
	UpdateApplication(ctx context.Context, app *Application) error
	CountApplicationsByStatus(ctx context.Context) (map[ApplicationStatus]int, error)

	// Assignment snapshots
	InsertAssignedDevice(ctx context.Context, snapshot AssignedDevice) error
	ListAssignedDevices(ctx context.Context, applicationID int64) ([]AssignedDevice, error)

	// Audit events
	InsertAuditEvent(ctx context.Context, event *AuditEvent) error
	ListAuditEvents(ctx context.Context, limit int) ([]AuditEvent, error)

	// Sessions
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	ExpireSessions(ctx context.Context, now time.Time) (int64, error)
}

type Provider interface {
	Store
	Close() error
	GetSchemaVersion(ctx context.Context) (int, error)

	// InTx runs fn inside one transaction. Every read and write fn performs
	// through the passed Store commits or rolls back as a unit. The SQLite
	// backend opens the transaction as an immediate writer, so two InTx
	// bodies touching the same school's devices never interleave.
	InTx(ctx context.Context, fn func(Store) error) error
}

func NewProvider(config *config.Storage) Provider {
	switch {
	case config.SQLite != nil:
		provider, err := NewSQLiteProvider(config)
		if err != nil {
			slog.Error("Failed to open SQLite storage", "error", err)
			return nil
		}
		if err := provider.runMigrations("sqlite3"); err != nil {
			slog.Error("Failed to run migrations", "error", err)
			return nil
		}
		return provider

	case config.Memory:
		return NewMemoryProvider()

	default:
		slog.Error("Unsupported storage configuration", "config", config)
	}

	return nil
}
