package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"school-device-issuance/internal/fault"
)

// MemoryProvider is an in-memory Provider for tests and ephemeral runs. A
// single mutex spans every operation and the whole of InTx, so transactions
// are serializable; a copy of the state taken before the transaction body
// restores everything on error.
type MemoryProvider struct {
	mu sync.Mutex
	st memState
}

type memState struct {
	schools      map[string]School
	users        map[int64]User
	devices      map[int64]Device
	applications map[int64]Application
	items        map[int64][]ApplicationItem
	snapshots    map[int64][]AssignedDevice
	audit        []AuditEvent
	sessions     map[string]Session

	nextUser   int64
	nextDevice int64
	nextApp    int64
	nextSchool int64
	nextAudit  int64
}

func newMemState() memState {
	return memState{
		schools:      make(map[string]School),
		users:        make(map[int64]User),
		devices:      make(map[int64]Device),
		applications: make(map[int64]Application),
		items:        make(map[int64][]ApplicationItem),
		snapshots:    make(map[int64][]AssignedDevice),
		sessions:     make(map[string]Session),
	}
}

func (s memState) clone() memState {
	out := s
	out.schools = make(map[string]School, len(s.schools))
	for k, v := range s.schools {
		out.schools[k] = v
	}
	out.users = make(map[int64]User, len(s.users))
	for k, v := range s.users {
		out.users[k] = v
	}
	out.devices = make(map[int64]Device, len(s.devices))
	for k, v := range s.devices {
		out.devices[k] = v
	}
	out.applications = make(map[int64]Application, len(s.applications))
	for k, v := range s.applications {
		out.applications[k] = v
	}
	out.items = make(map[int64][]ApplicationItem, len(s.items))
	for k, v := range s.items {
		out.items[k] = append([]ApplicationItem(nil), v...)
	}
	out.snapshots = make(map[int64][]AssignedDevice, len(s.snapshots))
	for k, v := range s.snapshots {
		out.snapshots[k] = append([]AssignedDevice(nil), v...)
	}
	out.audit = append([]AuditEvent(nil), s.audit...)
	out.sessions = make(map[string]Session, len(s.sessions))
	for k, v := range s.sessions {
		out.sessions[k] = v
	}
	return out
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{st: newMemState()}
}

func (p *MemoryProvider) Close() error { return nil }

func (p *MemoryProvider) GetSchemaVersion(ctx context.Context) (int, error) { return 1, nil }

func (p *MemoryProvider) InTx(ctx context.Context, fn func(Store) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	backup := p.st.clone()
	if err := fn((*memStore)(p)); err != nil {
		p.st = backup
		return err
	}
	return nil
}

// memStore is the unlocked view used inside InTx. The provider's own Store
// methods take the mutex and delegate here.
type memStore MemoryProvider

func (p *MemoryProvider) locked(fn func(*memStore) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fn((*memStore)(p))
}

// ---------------------------------------------------------------------------
// School directory
// ---------------------------------------------------------------------------

func (m *memStore) CreateSchool(ctx context.Context, school *School) error {
	if _, exists := m.st.schools[school.Code]; exists {
		return fault.Conflictf("school code %s", school.Code)
	}
	if school.RepresentativeID != nil {
		for _, other := range m.st.schools {
			if other.RepresentativeID != nil && *other.RepresentativeID == *school.RepresentativeID {
				return fault.Conflictf("representative %d already linked to school %s", *school.RepresentativeID, other.Code)
			}
		}
	}
	m.st.nextSchool++
	school.ID = m.st.nextSchool
	now := time.Now().UTC()
	school.CreatedAt = now
	school.UpdatedAt = now
	m.st.schools[school.Code] = *school
	return nil
}

func (m *memStore) GetSchoolByCode(ctx context.Context, code string) (*School, error) {
	school, exists := m.st.schools[code]
	if !exists {
		return nil, fault.NotFoundf("school %s", code)
	}
	return &school, nil
}

func (m *memStore) GetSchoolByRepresentative(ctx context.Context, userID int64) (*School, error) {
	for _, school := range m.st.schools {
		if school.RepresentativeID != nil && *school.RepresentativeID == userID {
			s := school
			return &s, nil
		}
	}
	return nil, fault.NotFoundf("school for representative %d", userID)
}

func (m *memStore) ListSchools(ctx context.Context) ([]School, error) {
	out := make([]School, 0, len(m.st.schools))
	for _, school := range m.st.schools {
		out = append(out, school)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *memStore) UpdateSchool(ctx context.Context, school *School) error {
	if _, exists := m.st.schools[school.Code]; !exists {
		return fault.NotFoundf("school %s", school.Code)
	}
	school.UpdatedAt = time.Now().UTC()
	m.st.schools[school.Code] = *school
	return nil
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

func (m *memStore) CreateUser(ctx context.Context, user *User) error {
	for _, other := range m.st.users {
		if other.Email == user.Email {
			return fault.Conflictf("user %s", user.Email)
		}
	}
	m.st.nextUser++
	user.ID = m.st.nextUser
	user.CreatedAt = time.Now().UTC()
	m.st.users[user.ID] = *user
	return nil
}

func (m *memStore) GetUser(ctx context.Context, id int64) (*User, error) {
	user, exists := m.st.users[id]
	if !exists {
		return nil, fault.NotFoundf("user %d", id)
	}
	return &user, nil
}

func (m *memStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	for _, user := range m.st.users {
		if user.Email == email {
			u := user
			return &u, nil
		}
	}
	return nil, fault.NotFoundf("user %s", email)
}

// ---------------------------------------------------------------------------
// Device registry
// ---------------------------------------------------------------------------

func (m *memStore) CreateDevice(ctx context.Context, device *Device) error {
	for _, other := range m.st.devices {
		if other.SerialNumber == device.SerialNumber {
			return fault.Conflictf("device serial %s", device.SerialNumber)
		}
	}
	if err := m.checkTagUnique(device, 0); err != nil {
		return err
	}
	m.st.nextDevice++
	device.ID = m.st.nextDevice
	now := time.Now().UTC()
	device.CreatedAt = now
	device.UpdatedAt = now
	m.st.devices[device.ID] = *device
	return nil
}

// checkTagUnique enforces the (school_code, asset_tag) uniqueness the SQLite
// backend gets from its partial index.
func (m *memStore) checkTagUnique(device *Device, skipID int64) error {
	if device.AssetTag == nil || device.SchoolCode == nil {
		return nil
	}
	for id, other := range m.st.devices {
		if id == skipID || id == device.ID {
			continue
		}
		if other.AssetTag != nil && other.SchoolCode != nil &&
			*other.SchoolCode == *device.SchoolCode && *other.AssetTag == *device.AssetTag {
			return fault.Conflictf("asset tag %s already in use at school %s", *device.AssetTag, *device.SchoolCode)
		}
	}
	return nil
}

func (m *memStore) GetDevice(ctx context.Context, id int64) (*Device, error) {
	device, exists := m.st.devices[id]
	if !exists {
		return nil, fault.NotFoundf("device %d", id)
	}
	return &device, nil
}

func (m *memStore) GetDeviceBySerial(ctx context.Context, serial string) (*Device, error) {
	for _, device := range m.st.devices {
		if device.SerialNumber == serial {
			d := device
			return &d, nil
		}
	}
	return nil, fault.NotFoundf("device serial %s", serial)
}

func (m *memStore) ListDevices(ctx context.Context, filter DeviceFilter) ([]Device, error) {
	var out []Device
	for _, device := range m.st.devices {
		if filter.Status != "" && device.Status != filter.Status {
			continue
		}
		if filter.Category != "" && device.Category != filter.Category {
			continue
		}
		if filter.SchoolCode != "" && (device.SchoolCode == nil || *device.SchoolCode != filter.SchoolCode) {
			continue
		}
		out = append(out, device)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SerialNumber < out[j].SerialNumber })
	return out, nil
}

func (m *memStore) UpdateDevice(ctx context.Context, device *Device) error {
	if _, exists := m.st.devices[device.ID]; !exists {
		return fault.NotFoundf("device %d", device.ID)
	}
	if err := m.checkTagUnique(device, device.ID); err != nil {
		return err
	}
	device.UpdatedAt = time.Now().UTC()
	m.st.devices[device.ID] = *device
	return nil
}

func (m *memStore) CountDevicesByStatus(ctx context.Context) (map[DeviceStatus]int, error) {
	counts := make(map[DeviceStatus]int)
	for _, device := range m.st.devices {
		counts[device.Status]++
	}
	return counts, nil
}

// ---------------------------------------------------------------------------
// Applications
// ---------------------------------------------------------------------------

func (m *memStore) CreateApplication(ctx context.Context, app *Application, items []ApplicationItem) error {
	m.st.nextApp++
	app.ID = m.st.nextApp
	now := time.Now().UTC()
	app.CreatedAt = now
	app.UpdatedAt = now
	m.st.applications[app.ID] = *app
	for i := range items {
		items[i].ApplicationID = app.ID
	}
	m.st.items[app.ID] = append([]ApplicationItem(nil), items...)
	return nil
}

func (m *memStore) GetApplication(ctx context.Context, id int64) (*Application, error) {
	app, exists := m.st.applications[id]
	if !exists {
		return nil, fault.NotFoundf("application %d", id)
	}
	return &app, nil
}

func (m *memStore) GetLiveApplicationBySchool(ctx context.Context, schoolCode string) (*Application, error) {
	var latest *Application
	for _, app := range m.st.applications {
		if app.SchoolCode != schoolCode || app.Terminal() {
			continue
		}
		a := app
		if latest == nil || a.CreatedAt.After(latest.CreatedAt) {
			latest = &a
		}
	}
	if latest == nil {
		return nil, fault.NotFoundf("live application for school %s", schoolCode)
	}
	return latest, nil
}

func (m *memStore) ListApplications(ctx context.Context, filter ApplicationFilter) ([]Application, error) {
	var out []Application
	for _, app := range m.st.applications {
		if filter.Status != "" && app.Status != filter.Status {
			continue
		}
		if filter.SchoolCode != "" && app.SchoolCode != filter.SchoolCode {
			continue
		}
		out = append(out, app)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) ListApplicationItems(ctx context.Context, applicationID int64) ([]ApplicationItem, error) {
	items := append([]ApplicationItem(nil), m.st.items[applicationID]...)
	sort.Slice(items, func(i, j int) bool { return items[i].Category < items[j].Category })
	return items, nil
}

func (m *memStore) UpdateApplication(ctx context.Context, app *Application) error {
	if _, exists := m.st.applications[app.ID]; !exists {
		return fault.NotFoundf("application %d", app.ID)
	}
	app.UpdatedAt = time.Now().UTC()
	m.st.applications[app.ID] = *app
	return nil
}

func (m *memStore) CountApplicationsByStatus(ctx context.Context) (map[ApplicationStatus]int, error) {
	counts := make(map[ApplicationStatus]int)
	for _, app := range m.st.applications {
		counts[app.Status]++
	}
	return counts, nil
}

// ---------------------------------------------------------------------------
// Assignment snapshots
// ---------------------------------------------------------------------------

func (m *memStore) InsertAssignedDevice(ctx context.Context, snapshot AssignedDevice) error {
	for _, other := range m.st.snapshots[snapshot.ApplicationID] {
		if other.DeviceID == snapshot.DeviceID {
			return fault.Conflictf("snapshot for application %d device %d", snapshot.ApplicationID, snapshot.DeviceID)
		}
	}
	m.st.snapshots[snapshot.ApplicationID] = append(m.st.snapshots[snapshot.ApplicationID], snapshot)
	return nil
}

func (m *memStore) ListAssignedDevices(ctx context.Context, applicationID int64) ([]AssignedDevice, error) {
	out := append([]AssignedDevice(nil), m.st.snapshots[applicationID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].SerialNumber < out[j].SerialNumber })
	return out, nil
}

// ---------------------------------------------------------------------------
// Audit events
// ---------------------------------------------------------------------------

func (m *memStore) InsertAuditEvent(ctx context.Context, event *AuditEvent) error {
	m.st.nextAudit++
	event.ID = m.st.nextAudit
	event.CreatedAt = time.Now().UTC()
	m.st.audit = append(m.st.audit, *event)
	return nil
}

func (m *memStore) ListAuditEvents(ctx context.Context, limit int) ([]AuditEvent, error) {
	n := len(m.st.audit)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]AuditEvent, 0, n)
	for i := len(m.st.audit) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.st.audit[i])
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

func (m *memStore) CreateSession(ctx context.Context, session *Session) error {
	if _, exists := m.st.sessions[session.ID]; exists {
		return fault.Conflictf("session %s", session.ID)
	}
	m.st.sessions[session.ID] = *session
	return nil
}

func (m *memStore) GetSession(ctx context.Context, id string) (*Session, error) {
	session, exists := m.st.sessions[id]
	if !exists {
		return nil, fault.NotFoundf("session %s", id)
	}
	return &session, nil
}

func (m *memStore) ExpireSessions(ctx context.Context, now time.Time) (int64, error) {
	var removed int64
	for id, session := range m.st.sessions {
		if !session.ExpiresAt.After(now) {
			delete(m.st.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// Lock-taking wrappers so MemoryProvider satisfies Store outside transactions.

func (p *MemoryProvider) CreateSchool(ctx context.Context, school *School) error {
	return p.locked(func(m *memStore) error { return m.CreateSchool(ctx, school) })
}

func (p *MemoryProvider) GetSchoolByCode(ctx context.Context, code string) (school *School, err error) {
	err = p.locked(func(m *memStore) error { school, err = m.GetSchoolByCode(ctx, code); return err })
	return
}

func (p *MemoryProvider) GetSchoolByRepresentative(ctx context.Context, userID int64) (school *School, err error) {
	err = p.locked(func(m *memStore) error { school, err = m.GetSchoolByRepresentative(ctx, userID); return err })
	return
}

func (p *MemoryProvider) ListSchools(ctx context.Context) (schools []School, err error) {
	err = p.locked(func(m *memStore) error { schools, err = m.ListSchools(ctx); return err })
	return
}

func (p *MemoryProvider) UpdateSchool(ctx context.Context, school *School) error {
	return p.locked(func(m *memStore) error { return m.UpdateSchool(ctx, school) })
}

func (p *MemoryProvider) CreateUser(ctx context.Context, user *User) error {
	return p.locked(func(m *memStore) error { return m.CreateUser(ctx, user) })
}

func (p *MemoryProvider) GetUser(ctx context.Context, id int64) (user *User, err error) {
	err = p.locked(func(m *memStore) error { user, err = m.GetUser(ctx, id); return err })
	return
}

func (p *MemoryProvider) GetUserByEmail(ctx context.Context, email string) (user *User, err error) {
	err = p.locked(func(m *memStore) error { user, err = m.GetUserByEmail(ctx, email); return err })
	return
}

func (p *MemoryProvider) CreateDevice(ctx context.Context, device *Device) error {
	return p.locked(func(m *memStore) error { return m.CreateDevice(ctx, device) })
}

func (p *MemoryProvider) GetDevice(ctx context.Context, id int64) (device *Device, err error) {
	err = p.locked(func(m *memStore) error { device, err = m.GetDevice(ctx, id); return err })
	return
}

func (p *MemoryProvider) GetDeviceBySerial(ctx context.Context, serial string) (device *Device, err error) {
	err = p.locked(func(m *memStore) error { device, err = m.GetDeviceBySerial(ctx, serial); return err })
	return
}

func (p *MemoryProvider) ListDevices(ctx context.Context, filter DeviceFilter) (devices []Device, err error) {
	err = p.locked(func(m *memStore) error { devices, err = m.ListDevices(ctx, filter); return err })
	return
}

func (p *MemoryProvider) UpdateDevice(ctx context.Context, device *Device) error {
	return p.locked(func(m *memStore) error { return m.UpdateDevice(ctx, device) })
}

func (p *MemoryProvider) CountDevicesByStatus(ctx context.Context) (counts map[DeviceStatus]int, err error) {
	err = p.locked(func(m *memStore) error { counts, err = m.CountDevicesByStatus(ctx); return err })
	return
}

func (p *MemoryProvider) CreateApplication(ctx context.Context, app *Application, items []ApplicationItem) error {
	return p.locked(func(m *memStore) error { return m.CreateApplication(ctx, app, items) })
}

func (p *MemoryProvider) GetApplication(ctx context.Context, id int64) (app *Application, err error) {
	err = p.locked(func(m *memStore) error { app, err = m.GetApplication(ctx, id); return err })
	return
}

func (p *MemoryProvider) GetLiveApplicationBySchool(ctx context.Context, schoolCode string) (app *Application, err error) {
	err = p.locked(func(m *memStore) error { app, err = m.GetLiveApplicationBySchool(ctx, schoolCode); return err })
	return
}

func (p *MemoryProvider) ListApplications(ctx context.Context, filter ApplicationFilter) (apps []Application, err error) {
	err = p.locked(func(m *memStore) error { apps, err = m.ListApplications(ctx, filter); return err })
	return
}

func (p *MemoryProvider) ListApplicationItems(ctx context.Context, applicationID int64) (items []ApplicationItem, err error) {
	err = p.locked(func(m *memStore) error { items, err = m.ListApplicationItems(ctx, applicationID); return err })
	return
}

func (p *MemoryProvider) UpdateApplication(ctx context.Context, app *Application) error {
	return p.locked(func(m *memStore) error { return m.UpdateApplication(ctx, app) })
}

func (p *MemoryProvider) CountApplicationsByStatus(ctx context.Context) (counts map[ApplicationStatus]int, err error) {
	err = p.locked(func(m *memStore) error { counts, err = m.CountApplicationsByStatus(ctx); return err })
	return
}

func (p *MemoryProvider) InsertAssignedDevice(ctx context.Context, snapshot AssignedDevice) error {
	return p.locked(func(m *memStore) error { return m.InsertAssignedDevice(ctx, snapshot) })
}

func (p *MemoryProvider) ListAssignedDevices(ctx context.Context, applicationID int64) (snapshots []AssignedDevice, err error) {
	err = p.locked(func(m *memStore) error { snapshots, err = m.ListAssignedDevices(ctx, applicationID); return err })
	return
}

func (p *MemoryProvider) InsertAuditEvent(ctx context.Context, event *AuditEvent) error {
	return p.locked(func(m *memStore) error { return m.InsertAuditEvent(ctx, event) })
}

func (p *MemoryProvider) ListAuditEvents(ctx context.Context, limit int) (events []AuditEvent, err error) {
	err = p.locked(func(m *memStore) error { events, err = m.ListAuditEvents(ctx, limit); return err })
	return
}

func (p *MemoryProvider) CreateSession(ctx context.Context, session *Session) error {
	return p.locked(func(m *memStore) error { return m.CreateSession(ctx, session) })
}

func (p *MemoryProvider) GetSession(ctx context.Context, id string) (session *Session, err error) {
	err = p.locked(func(m *memStore) error { session, err = m.GetSession(ctx, id); return err })
	return
}

func (p *MemoryProvider) ExpireSessions(ctx context.Context, now time.Time) (removed int64, err error) {
	err = p.locked(func(m *memStore) error { removed, err = m.ExpireSessions(ctx, now); return err })
	return
}

var _ Provider = (*MemoryProvider)(nil)
var _ Store = (*memStore)(nil)
