package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"school-device-issuance/internal/fault"
)

func TestInTxRollsBackOnError(t *testing.T) {
	provider := NewMemoryProvider()
	ctx := context.Background()

	boom := errors.New("boom")
	err := provider.InTx(ctx, func(tx Store) error {
		if err := tx.CreateDevice(ctx, &Device{
			SerialNumber: "SN-001",
			Category:     CategoryLaptop,
			Condition:    ConditionNew,
			Status:       DeviceStatusAvailable,
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	if _, err := provider.GetDeviceBySerial(ctx, "SN-001"); !errors.Is(err, fault.ErrNotFound) {
		t.Fatalf("device survived rollback: err = %v", err)
	}
}

func TestTagUniquePerSchool(t *testing.T) {
	provider := NewMemoryProvider()
	ctx := context.Background()

	code := "GRE"
	tag := "LAP/GAS/GRE/0001"
	first := &Device{SerialNumber: "SN-001", Category: CategoryLaptop, Condition: ConditionNew,
		Status: DeviceStatusAssigned, SchoolCode: &code, AssetTag: &tag}
	if err := provider.CreateDevice(ctx, first); err != nil {
		t.Fatalf("create: %v", err)
	}

	dup := &Device{SerialNumber: "SN-002", Category: CategoryLaptop, Condition: ConditionNew,
		Status: DeviceStatusAssigned, SchoolCode: &code, AssetTag: &tag}
	if err := provider.CreateDevice(ctx, dup); !errors.Is(err, fault.ErrConflict) {
		t.Fatalf("duplicate tag err = %v, want conflict", err)
	}

	// The same tag under another school is fine.
	other := "BLU"
	elsewhere := &Device{SerialNumber: "SN-003", Category: CategoryLaptop, Condition: ConditionNew,
		Status: DeviceStatusAssigned, SchoolCode: &other, AssetTag: &tag}
	if err := provider.CreateDevice(ctx, elsewhere); err != nil {
		t.Fatalf("cross-school tag: %v", err)
	}
}

func TestExpireSessions(t *testing.T) {
	provider := NewMemoryProvider()
	ctx := context.Background()

	now := time.Now().UTC()
	for _, s := range []*Session{
		{ID: "live", UserID: 1, StartedAt: now, ExpiresAt: now.Add(time.Hour)},
		{ID: "dead", UserID: 1, StartedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)},
	} {
		if err := provider.CreateSession(ctx, s); err != nil {
			t.Fatalf("create session %s: %v", s.ID, err)
		}
	}

	removed, err := provider.ExpireSessions(ctx, now)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, err := provider.GetSession(ctx, "live"); err != nil {
		t.Errorf("live session gone: %v", err)
	}
	if _, err := provider.GetSession(ctx, "dead"); !errors.Is(err, fault.ErrNotFound) {
		t.Errorf("dead session err = %v, want not found", err)
	}
}

func TestGetLiveApplicationSkipsTerminal(t *testing.T) {
	provider := NewMemoryProvider()
	ctx := context.Background()

	user := &User{Email: "rep@school.test", Name: "Rep", Role: "representative"}
	if err := provider.CreateUser(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	school := &School{Code: "GRE", Name: "Green Hills", District: "Gasabo"}
	if err := provider.CreateSchool(ctx, school); err != nil {
		t.Fatalf("create school: %v", err)
	}

	closed := &Application{SchoolCode: "GRE", ApplicantID: user.ID, Status: ApplicationCancelled, LetterRef: "a.pdf"}
	if err := provider.CreateApplication(ctx, closed, nil); err != nil {
		t.Fatalf("create application: %v", err)
	}

	if _, err := provider.GetLiveApplicationBySchool(ctx, "GRE"); !errors.Is(err, fault.ErrNotFound) {
		t.Fatalf("cancelled application counted as live: err = %v", err)
	}

	open := &Application{SchoolCode: "GRE", ApplicantID: user.ID, Status: ApplicationPending, LetterRef: "b.pdf"}
	if err := provider.CreateApplication(ctx, open, nil); err != nil {
		t.Fatalf("create application: %v", err)
	}

	live, err := provider.GetLiveApplicationBySchool(ctx, "GRE")
	if err != nil {
		t.Fatalf("get live: %v", err)
	}
	if live.ID != open.ID {
		t.Errorf("live = %d, want %d", live.ID, open.ID)
	}
}
