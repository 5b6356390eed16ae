package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	sqlite3 "github.com/mattn/go-sqlite3"

	"school-device-issuance/internal/config"
	"school-device-issuance/internal/fault"
)

// sqlStore carries the query methods and is bound either to the database
// itself or to an open transaction.
type sqlStore struct {
	ext    sqlx.ExtContext
	logger *slog.Logger
}

type SQLProvider struct {
	sqlStore
	db *sqlx.DB

	config *config.Storage
}

func NewSQLProvider(config *config.Storage, driverName string, dataSource string) (*SQLProvider, error) {
	db, err := sqlx.Open(driverName, dataSource)
	if err != nil {
		return nil, err
	}

	logger := slog.With("component", "storage")

	return &SQLProvider{
		sqlStore: sqlStore{ext: db, logger: logger},
		db:       db,
		config:   config,
	}, nil
}

func (p *SQLProvider) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

func (p *SQLProvider) GetSchemaVersion(ctx context.Context) (int, error) {
	var version int
	err := sqlx.GetContext(ctx, p.ext, &version, "SELECT version FROM schema_version LIMIT 1")
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return version, err
}

func (p *SQLProvider) InTx(ctx context.Context, fn func(Store) error) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	store := &sqlStore{ext: tx, logger: p.logger}
	if err := fn(store); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			p.logger.Error("Rollback failed", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// translateErr converts driver errors into the shared taxonomy so domain code
// never inspects driver types.
func translateErr(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fault.NotFoundf("%s", what)
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return fmt.Errorf("%w: %s", fault.ErrConflict, what)
		}
	}
	return err
}

// ---------------------------------------------------------------------------
// School directory
// ---------------------------------------------------------------------------

func (s *sqlStore) CreateSchool(ctx context.Context, school *School) error {
	now := time.Now().UTC()
	school.CreatedAt = now
	school.UpdatedAt = now
	res, err := s.ext.ExecContext(ctx, `
		INSERT INTO schools (code, name, province, district, sector, cell, village, representative_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		school.Code, school.Name, school.Province, school.District, school.Sector,
		school.Cell, school.Village, school.RepresentativeID, school.CreatedAt, school.UpdatedAt)
	if err != nil {
		return translateErr(err, "school code "+school.Code)
	}
	school.ID, _ = res.LastInsertId()
	return nil
}

func (s *sqlStore) GetSchoolByCode(ctx context.Context, code string) (*School, error) {
	var school School
	err := sqlx.GetContext(ctx, s.ext, &school, "SELECT * FROM schools WHERE code = ?", code)
	if err != nil {
		return nil, translateErr(err, "school "+code)
	}
	return &school, nil
}

func (s *sqlStore) GetSchoolByRepresentative(ctx context.Context, userID int64) (*School, error) {
	var school School
	err := sqlx.GetContext(ctx, s.ext, &school, "SELECT * FROM schools WHERE representative_id = ?", userID)
	if err != nil {
		return nil, translateErr(err, fmt.Sprintf("school for representative %d", userID))
	}
	return &school, nil
}

func (s *sqlStore) ListSchools(ctx context.Context) ([]School, error) {
	var schools []School
	err := sqlx.SelectContext(ctx, s.ext, &schools, "SELECT * FROM schools ORDER BY code")
	return schools, err
}

func (s *sqlStore) UpdateSchool(ctx context.Context, school *School) error {
	school.UpdatedAt = time.Now().UTC()
	_, err := s.ext.ExecContext(ctx, `
		UPDATE schools SET name = ?, province = ?, district = ?, sector = ?, cell = ?,
			village = ?, representative_id = ?, updated_at = ?
		WHERE code = ?`,
		school.Name, school.Province, school.District, school.Sector, school.Cell,
		school.Village, school.RepresentativeID, school.UpdatedAt, school.Code)
	return translateErr(err, "school "+school.Code)
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

func (s *sqlStore) CreateUser(ctx context.Context, user *User) error {
	user.CreatedAt = time.Now().UTC()
	res, err := s.ext.ExecContext(ctx,
		"INSERT INTO users (email, name, role, created_at) VALUES (?, ?, ?, ?)",
		user.Email, user.Name, user.Role, user.CreatedAt)
	if err != nil {
		return translateErr(err, "user "+user.Email)
	}
	user.ID, _ = res.LastInsertId()
	return nil
}

func (s *sqlStore) GetUser(ctx context.Context, id int64) (*User, error) {
	var user User
	err := sqlx.GetContext(ctx, s.ext, &user, "SELECT * FROM users WHERE id = ?", id)
	if err != nil {
		return nil, translateErr(err, fmt.Sprintf("user %d", id))
	}
	return &user, nil
}

func (s *sqlStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := sqlx.GetContext(ctx, s.ext, &user, "SELECT * FROM users WHERE email = ?", email)
	if err != nil {
		return nil, translateErr(err, "user "+email)
	}
	return &user, nil
}

// ---------------------------------------------------------------------------
// Device registry
// ---------------------------------------------------------------------------

func (s *sqlStore) CreateDevice(ctx context.Context, device *Device) error {
	now := time.Now().UTC()
	device.CreatedAt = now
	device.UpdatedAt = now
	res, err := s.ext.ExecContext(ctx, `
		INSERT INTO devices (serial_number, category, brand, model, condition, status, school_code, asset_tag, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		device.SerialNumber, device.Category, device.Brand, device.Model, device.Condition,
		device.Status, device.SchoolCode, device.AssetTag, device.CreatedAt, device.UpdatedAt)
	if err != nil {
		return translateErr(err, "device serial "+device.SerialNumber)
	}
	device.ID, _ = res.LastInsertId()
	return nil
}

func (s *sqlStore) GetDevice(ctx context.Context, id int64) (*Device, error) {
	var device Device
	err := sqlx.GetContext(ctx, s.ext, &device, "SELECT * FROM devices WHERE id = ?", id)
	if err != nil {
		return nil, translateErr(err, fmt.Sprintf("device %d", id))
	}
	return &device, nil
}

func (s *sqlStore) GetDeviceBySerial(ctx context.Context, serial string) (*Device, error) {
	var device Device
	err := sqlx.GetContext(ctx, s.ext, &device, "SELECT * FROM devices WHERE serial_number = ?", serial)
	if err != nil {
		return nil, translateErr(err, "device serial "+serial)
	}
	return &device, nil
}

func (s *sqlStore) ListDevices(ctx context.Context, filter DeviceFilter) ([]Device, error) {
	query := "SELECT * FROM devices"
	var conds []string
	var args []any
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.SchoolCode != "" {
		conds = append(conds, "school_code = ?")
		args = append(args, filter.SchoolCode)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY serial_number"

	var devices []Device
	err := sqlx.SelectContext(ctx, s.ext, &devices, query, args...)
	return devices, err
}

func (s *sqlStore) UpdateDevice(ctx context.Context, device *Device) error {
	device.UpdatedAt = time.Now().UTC()
	_, err := s.ext.ExecContext(ctx, `
		UPDATE devices SET category = ?, brand = ?, model = ?, condition = ?, status = ?,
			school_code = ?, asset_tag = ?, updated_at = ?
		WHERE id = ?`,
		device.Category, device.Brand, device.Model, device.Condition, device.Status,
		device.SchoolCode, device.AssetTag, device.UpdatedAt, device.ID)
	return translateErr(err, fmt.Sprintf("device %d", device.ID))
}

func (s *sqlStore) CountDevicesByStatus(ctx context.Context) (map[DeviceStatus]int, error) {
	rows, err := s.ext.QueryxContext(ctx, "SELECT status, COUNT(*) AS n FROM devices GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[DeviceStatus]int)
	for rows.Next() {
		var status DeviceStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// ---------------------------------------------------------------------------
// Applications
// ---------------------------------------------------------------------------

func (s *sqlStore) CreateApplication(ctx context.Context, app *Application, items []ApplicationItem) error {
	now := time.Now().UTC()
	app.CreatedAt = now
	app.UpdatedAt = now
	res, err := s.ext.ExecContext(ctx, `
		INSERT INTO applications (school_code, applicant_id, status, letter_ref, is_eligible, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		app.SchoolCode, app.ApplicantID, app.Status, app.LetterRef, app.IsEligible, app.CreatedAt, app.UpdatedAt)
	if err != nil {
		return translateErr(err, "application for school "+app.SchoolCode)
	}
	app.ID, _ = res.LastInsertId()

	for _, item := range items {
		_, err := s.ext.ExecContext(ctx,
			"INSERT INTO application_items (application_id, category, quantity) VALUES (?, ?, ?)",
			app.ID, item.Category, item.Quantity)
		if err != nil {
			return translateErr(err, fmt.Sprintf("application %d item %s", app.ID, item.Category))
		}
	}
	return nil
}

func (s *sqlStore) GetApplication(ctx context.Context, id int64) (*Application, error) {
	var app Application
	err := sqlx.GetContext(ctx, s.ext, &app, "SELECT * FROM applications WHERE id = ?", id)
	if err != nil {
		return nil, translateErr(err, fmt.Sprintf("application %d", id))
	}
	return &app, nil
}

// GetLiveApplicationBySchool returns the school's application in a non-terminal
// state, or a not-found error when every application is terminal.
func (s *sqlStore) GetLiveApplicationBySchool(ctx context.Context, schoolCode string) (*Application, error) {
	var app Application
	err := sqlx.GetContext(ctx, s.ext, &app, `
		SELECT * FROM applications
		WHERE school_code = ? AND status NOT IN (?, ?, ?)
		ORDER BY created_at DESC LIMIT 1`,
		schoolCode, ApplicationRejected, ApplicationReceived, ApplicationCancelled)
	if err != nil {
		return nil, translateErr(err, "live application for school "+schoolCode)
	}
	return &app, nil
}

func (s *sqlStore) ListApplications(ctx context.Context, filter ApplicationFilter) ([]Application, error) {
	query := "SELECT * FROM applications"
	var conds []string
	var args []any
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.SchoolCode != "" {
		conds = append(conds, "school_code = ?")
		args = append(args, filter.SchoolCode)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"

	var apps []Application
	err := sqlx.SelectContext(ctx, s.ext, &apps, query, args...)
	return apps, err
}

func (s *sqlStore) ListApplicationItems(ctx context.Context, applicationID int64) ([]ApplicationItem, error) {
	var items []ApplicationItem
	err := sqlx.SelectContext(ctx, s.ext, &items,
		"SELECT * FROM application_items WHERE application_id = ? ORDER BY category", applicationID)
	return items, err
}

func (s *sqlStore) UpdateApplication(ctx context.Context, app *Application) error {
	app.UpdatedAt = time.Now().UTC()
	_, err := s.ext.ExecContext(ctx, `
		UPDATE applications SET status = ?, reviewed_by = ?, review_notes = ?, reviewed_at = ?,
			is_eligible = ?, eligibility_notes = ?, assigned_by = ?, assigned_at = ?,
			confirm_notes = ?, confirmed_at = ?, updated_at = ?
		WHERE id = ?`,
		app.Status, app.ReviewedBy, app.ReviewNotes, app.ReviewedAt,
		app.IsEligible, app.EligibilityNotes, app.AssignedBy, app.AssignedAt,
		app.ConfirmNotes, app.ConfirmedAt, app.UpdatedAt, app.ID)
	return translateErr(err, fmt.Sprintf("application %d", app.ID))
}

func (s *sqlStore) CountApplicationsByStatus(ctx context.Context) (map[ApplicationStatus]int, error) {
	rows, err := s.ext.QueryxContext(ctx, "SELECT status, COUNT(*) AS n FROM applications GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[ApplicationStatus]int)
	for rows.Next() {
		var status ApplicationStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// ---------------------------------------------------------------------------
// Assignment snapshots
// ---------------------------------------------------------------------------

func (s *sqlStore) InsertAssignedDevice(ctx context.Context, snapshot AssignedDevice) error {
	_, err := s.ext.ExecContext(ctx, `
		INSERT INTO application_devices (application_id, device_id, serial_number, category)
		VALUES (?, ?, ?, ?)`,
		snapshot.ApplicationID, snapshot.DeviceID, snapshot.SerialNumber, snapshot.Category)
	return translateErr(err, fmt.Sprintf("snapshot for application %d device %d", snapshot.ApplicationID, snapshot.DeviceID))
}

func (s *sqlStore) ListAssignedDevices(ctx context.Context, applicationID int64) ([]AssignedDevice, error) {
	var snapshots []AssignedDevice
	err := sqlx.SelectContext(ctx, s.ext, &snapshots,
		"SELECT * FROM application_devices WHERE application_id = ? ORDER BY serial_number", applicationID)
	return snapshots, err
}

// ---------------------------------------------------------------------------
// Audit events
// ---------------------------------------------------------------------------

func (s *sqlStore) InsertAuditEvent(ctx context.Context, event *AuditEvent) error {
	event.CreatedAt = time.Now().UTC()
	res, err := s.ext.ExecContext(ctx, `
		INSERT INTO audit_events (actor, action, entity, entity_id, outcome, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.Actor, event.Action, event.Entity, event.EntityID, event.Outcome, event.DurationMS, event.CreatedAt)
	if err != nil {
		return err
	}
	event.ID, _ = res.LastInsertId()
	return nil
}

func (s *sqlStore) ListAuditEvents(ctx context.Context, limit int) ([]AuditEvent, error) {
	var events []AuditEvent
	err := sqlx.SelectContext(ctx, s.ext, &events,
		"SELECT * FROM audit_events ORDER BY created_at DESC, id DESC LIMIT ?", limit)
	return events, err
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

func (s *sqlStore) CreateSession(ctx context.Context, session *Session) error {
	_, err := s.ext.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, client_ip, started_at, expires_at)
		VALUES (?, ?, ?, ?, ?)`,
		session.ID, session.UserID, session.ClientIP, session.StartedAt, session.ExpiresAt)
	return translateErr(err, "session "+session.ID)
}

func (s *sqlStore) GetSession(ctx context.Context, id string) (*Session, error) {
	var session Session
	err := sqlx.GetContext(ctx, s.ext, &session, "SELECT * FROM sessions WHERE id = ?", id)
	if err != nil {
		return nil, translateErr(err, "session "+id)
	}
	return &session, nil
}

func (s *sqlStore) ExpireSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.ext.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at <= ?", now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
