package assignment

import (
	"context"
	"errors"
	"testing"

	"school-device-issuance/internal/fault"
	"school-device-issuance/internal/storage"
)

func TestBulkAssign(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addDevice(t, "SN-001", storage.CategoryLaptop)
	f.addDevice(t, "SN-002", storage.CategoryTablet)
	f.addDevice(t, "SN-003", storage.CategoryLaptop)

	result, err := f.coord.BulkAssign(ctx, "GRE", f.assigner.ID, []string{"SN-001", "SN-002", "SN-003"})
	if err != nil {
		t.Fatalf("bulk assign: %v", err)
	}
	if len(result.Successful) != 3 || len(result.Failed) != 0 {
		t.Fatalf("result = %d ok / %d failed, want 3/0", len(result.Successful), len(result.Failed))
	}

	// Tags are monotone across the batch regardless of category.
	want := []string{"LAP/GAS/GRE/0001", "TAB/GAS/GRE/0002", "LAP/GAS/GRE/0003"}
	for i, item := range result.Successful {
		if item.AssetTag != want[i] {
			t.Errorf("tag[%d] = %s, want %s", i, item.AssetTag, want[i])
		}
	}
}

func TestBulkAssignPartialFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addDevice(t, "SN-001", storage.CategoryLaptop)
	busy := f.addDevice(t, "SN-002", storage.CategoryLaptop)
	busy.Status = storage.DeviceStatusMaintenance
	if err := f.provider.UpdateDevice(ctx, busy); err != nil {
		t.Fatalf("update: %v", err)
	}

	result, err := f.coord.BulkAssign(ctx, "GRE", f.assigner.ID, []string{"SN-001", "SN-002", "SN-MISSING"})
	if err != nil {
		t.Fatalf("bulk assign: %v", err)
	}
	if len(result.Successful) != 1 {
		t.Errorf("successful = %d, want 1", len(result.Successful))
	}
	if len(result.Failed) != 2 {
		t.Fatalf("failed = %d, want 2", len(result.Failed))
	}
	if result.Failed[0].SerialNumber != "SN-002" || result.Failed[1].SerialNumber != "SN-MISSING" {
		t.Errorf("failed items = %+v", result.Failed)
	}

	// The failed device keeps its state.
	got, _ := f.provider.GetDeviceBySerial(ctx, "SN-002")
	if got.Status != storage.DeviceStatusMaintenance || got.AssetTag != nil {
		t.Errorf("failed device modified: %+v", got)
	}
}

func TestBulkAssignUnknownSchool(t *testing.T) {
	f := newFixture(t)
	f.addDevice(t, "SN-001", storage.CategoryLaptop)

	_, err := f.coord.BulkAssign(context.Background(), "NOPE", f.assigner.ID, []string{"SN-001"})
	if !errors.Is(err, fault.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestBulkAssignEmpty(t *testing.T) {
	f := newFixture(t)
	_, err := f.coord.BulkAssign(context.Background(), "GRE", f.assigner.ID, nil)
	if !errors.Is(err, fault.ErrValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}
