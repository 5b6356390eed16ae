package assignment

import (
	"context"
	"errors"
	"sync"
	"testing"

	"school-device-issuance/internal/assettag"
	"school-device-issuance/internal/fault"
	"school-device-issuance/internal/lifecycle"
	"school-device-issuance/internal/storage"
)

type fixture struct {
	coord    *Coordinator
	provider *storage.MemoryProvider
	assigner *storage.User
	school   *storage.School
	app      *storage.Application
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	provider := storage.NewMemoryProvider()

	rep := &storage.User{Email: "rep@school.test", Name: "Rep", Role: "representative"}
	assigner := &storage.User{Email: "warehouse@gov.test", Name: "Assigner", Role: "assigner"}
	for _, u := range []*storage.User{rep, assigner} {
		if err := provider.CreateUser(ctx, u); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}

	school := &storage.School{Code: "GRE", Name: "Green Hills", District: "Gasabo", RepresentativeID: &rep.ID}
	if err := provider.CreateSchool(ctx, school); err != nil {
		t.Fatalf("create school: %v", err)
	}

	app := &storage.Application{
		SchoolCode:  school.Code,
		ApplicantID: rep.ID,
		Status:      storage.ApplicationApproved,
		LetterRef:   "letter.pdf",
		IsEligible:  true,
	}
	if err := provider.CreateApplication(ctx, app, []storage.ApplicationItem{
		{Category: storage.CategoryLaptop, Quantity: 2},
	}); err != nil {
		t.Fatalf("create application: %v", err)
	}

	coord := NewCoordinator(provider, assettag.New(), lifecycle.NopNotifier{}, lifecycle.NopAuditor{})
	return &fixture{coord: coord, provider: provider, assigner: assigner, school: school, app: app}
}

func (f *fixture) addDevice(t *testing.T, serial string, category storage.DeviceCategory) *storage.Device {
	t.Helper()
	device := &storage.Device{
		SerialNumber: serial,
		Category:     category,
		Condition:    storage.ConditionNew,
		Status:       storage.DeviceStatusAvailable,
	}
	if err := f.provider.CreateDevice(context.Background(), device); err != nil {
		t.Fatalf("create device %s: %v", serial, err)
	}
	return device
}

func TestAssign(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d1 := f.addDevice(t, "SN-001", storage.CategoryLaptop)
	d2 := f.addDevice(t, "SN-002", storage.CategoryLaptop)

	app, err := f.coord.Assign(ctx, f.app.ID, f.assigner.ID, []int64{d1.ID, d2.ID})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if app.Status != storage.ApplicationAssigned {
		t.Errorf("status = %s, want Assigned", app.Status)
	}
	if app.AssignedBy == nil || *app.AssignedBy != f.assigner.ID {
		t.Errorf("assigned_by = %v, want %d", app.AssignedBy, f.assigner.ID)
	}

	// Sequence numbers are consecutive from 1 for a fresh school.
	got1, _ := f.provider.GetDevice(ctx, d1.ID)
	got2, _ := f.provider.GetDevice(ctx, d2.ID)
	if got1.AssetTag == nil || *got1.AssetTag != "LAP/GAS/GRE/0001" {
		t.Errorf("first tag = %v, want LAP/GAS/GRE/0001", got1.AssetTag)
	}
	if got2.AssetTag == nil || *got2.AssetTag != "LAP/GAS/GRE/0002" {
		t.Errorf("second tag = %v, want LAP/GAS/GRE/0002", got2.AssetTag)
	}
	if got1.Status != storage.DeviceStatusAssigned || got1.SchoolCode == nil || *got1.SchoolCode != "GRE" {
		t.Errorf("device not bound: %+v", got1)
	}

	snapshots, err := f.coord.Snapshots(ctx, f.app.ID)
	if err != nil {
		t.Fatalf("snapshots: %v", err)
	}
	if len(snapshots) != 2 {
		t.Fatalf("snapshots = %d, want 2", len(snapshots))
	}
}

func TestAssignUnknownDeviceFailsAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d1 := f.addDevice(t, "SN-001", storage.CategoryLaptop)

	_, err := f.coord.Assign(ctx, f.app.ID, f.assigner.ID, []int64{d1.ID, 9999})
	if !errors.Is(err, fault.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}

	// The known device must be untouched.
	got, _ := f.provider.GetDevice(ctx, d1.ID)
	if got.Status != storage.DeviceStatusAvailable || got.AssetTag != nil {
		t.Errorf("device modified despite failed assignment: %+v", got)
	}
	app, _ := f.provider.GetApplication(ctx, f.app.ID)
	if app.Status != storage.ApplicationApproved {
		t.Errorf("application moved to %s despite failed assignment", app.Status)
	}
}

func TestAssignUnavailableDeviceConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d1 := f.addDevice(t, "SN-001", storage.CategoryLaptop)
	d2 := f.addDevice(t, "SN-002", storage.CategoryLaptop)

	d2.Status = storage.DeviceStatusMaintenance
	if err := f.provider.UpdateDevice(ctx, d2); err != nil {
		t.Fatalf("update: %v", err)
	}

	_, err := f.coord.Assign(ctx, f.app.ID, f.assigner.ID, []int64{d1.ID, d2.ID})
	if !errors.Is(err, fault.ErrConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}

	got, _ := f.provider.GetDevice(ctx, d1.ID)
	if got.Status != storage.DeviceStatusAvailable {
		t.Errorf("available device modified despite conflict: %+v", got)
	}
}

func TestAssignDuplicateDeviceID(t *testing.T) {
	f := newFixture(t)
	d1 := f.addDevice(t, "SN-001", storage.CategoryLaptop)

	_, err := f.coord.Assign(context.Background(), f.app.ID, f.assigner.ID, []int64{d1.ID, d1.ID})
	if !errors.Is(err, fault.ErrValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestAssignRequiresApprovedEligible(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d1 := f.addDevice(t, "SN-001", storage.CategoryLaptop)

	app, _ := f.provider.GetApplication(ctx, f.app.ID)
	app.IsEligible = false
	if err := f.provider.UpdateApplication(ctx, app); err != nil {
		t.Fatalf("update: %v", err)
	}

	_, err := f.coord.Assign(ctx, f.app.ID, f.assigner.ID, []int64{d1.ID})
	if !errors.Is(err, fault.ErrInvalidState) {
		t.Fatalf("ineligible err = %v, want invalid state", err)
	}

	app.IsEligible = true
	app.Status = storage.ApplicationPending
	if err := f.provider.UpdateApplication(ctx, app); err != nil {
		t.Fatalf("update: %v", err)
	}

	_, err = f.coord.Assign(ctx, f.app.ID, f.assigner.ID, []int64{d1.ID})
	if !errors.Is(err, fault.ErrInvalidState) {
		t.Fatalf("pending err = %v, want invalid state", err)
	}
}

func TestSnapshotsFrozenAfterDeviceEdit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d1 := f.addDevice(t, "SN-001", storage.CategoryLaptop)

	if _, err := f.coord.Assign(ctx, f.app.ID, f.assigner.ID, []int64{d1.ID}); err != nil {
		t.Fatalf("assign: %v", err)
	}

	// Edit the device after assignment; the snapshot must not follow.
	device, _ := f.provider.GetDevice(ctx, d1.ID)
	device.SerialNumber = "SN-REPAIRED"
	if err := f.provider.UpdateDevice(ctx, device); err != nil {
		t.Fatalf("update: %v", err)
	}

	snapshots, err := f.coord.Snapshots(ctx, f.app.ID)
	if err != nil {
		t.Fatalf("snapshots: %v", err)
	}
	if len(snapshots) != 1 || snapshots[0].SerialNumber != "SN-001" {
		t.Errorf("snapshot changed with device edit: %+v", snapshots)
	}
}

func TestConcurrentAssignsGetDistinctTags(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d1 := f.addDevice(t, "SN-001", storage.CategoryLaptop)
	d2 := f.addDevice(t, "SN-002", storage.CategoryLaptop)

	// A second approved application for the same school, assigned
	// concurrently with the first. The shared transactional scope must
	// serialize the scan-then-write so the tags never collide.
	second := &storage.Application{
		SchoolCode:  f.school.Code,
		ApplicantID: f.app.ApplicantID,
		Status:      storage.ApplicationApproved,
		LetterRef:   "letter2.pdf",
		IsEligible:  true,
	}
	if err := f.provider.CreateApplication(ctx, second, nil); err != nil {
		t.Fatalf("create application: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, job := range []struct {
		appID    int64
		deviceID int64
	}{
		{f.app.ID, d1.ID},
		{second.ID, d2.ID},
	} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.coord.Assign(ctx, job.appID, f.assigner.ID, []int64{job.deviceID})
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("assign %d: %v", i, err)
		}
	}

	got1, _ := f.provider.GetDevice(ctx, d1.ID)
	got2, _ := f.provider.GetDevice(ctx, d2.ID)
	if got1.AssetTag == nil || got2.AssetTag == nil {
		t.Fatal("missing tags after concurrent assignment")
	}
	if *got1.AssetTag == *got2.AssetTag {
		t.Fatalf("tag collision: both devices got %s", *got1.AssetTag)
	}
	tags := map[string]bool{*got1.AssetTag: true, *got2.AssetTag: true}
	if !tags["LAP/GAS/GRE/0001"] || !tags["LAP/GAS/GRE/0002"] {
		t.Errorf("tags = %v, want 0001 and 0002", tags)
	}
}

func TestAssignContinuesSchoolSequence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A device already tagged for the school advances the sequence start.
	pre := f.addDevice(t, "SN-OLD", storage.CategoryProjector)
	pre.Status = storage.DeviceStatusAssigned
	pre.SchoolCode = &f.school.Code
	tag := "PRO/GAS/GRE/0005"
	pre.AssetTag = &tag
	if err := f.provider.UpdateDevice(ctx, pre); err != nil {
		t.Fatalf("update: %v", err)
	}

	d1 := f.addDevice(t, "SN-001", storage.CategoryLaptop)
	if _, err := f.coord.Assign(ctx, f.app.ID, f.assigner.ID, []int64{d1.ID}); err != nil {
		t.Fatalf("assign: %v", err)
	}

	got, _ := f.provider.GetDevice(ctx, d1.ID)
	if got.AssetTag == nil || *got.AssetTag != "LAP/GAS/GRE/0006" {
		t.Errorf("tag = %v, want LAP/GAS/GRE/0006", got.AssetTag)
	}
}
