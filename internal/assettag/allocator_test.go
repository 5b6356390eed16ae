package assettag

import (
	"context"
	"testing"

	"school-device-issuance/internal/storage"
)

func TestPrefix(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Laptop", "LAP"},
		{"Kigali", "KIG"},
		{"kicukiro", "KIC"},
		{"GS Saint-Émile", "GSS"},
		{"Région", "REG"},
		{"Ab", "AB"},
		{"", ""},
		{"  12 Apostles  ", "APO"},
	}
	for _, tc := range cases {
		if got := Prefix(tc.in); got != tc.want {
			t.Errorf("Prefix(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseSequence(t *testing.T) {
	cases := []struct {
		tag string
		seq int
		ok  bool
	}{
		{"LAP/KIG/SCH/0001", 1, true},
		{"LAP/KIG/SCH/0103", 103, true},
		{"LAP/KIG/SCH/bad", 0, false},
		{"LAP/KIG/0001", 0, false},
		{"LAP/KIG/SCH/EX/0001", 0, false},
		{"", 0, false},
		{"LAP/KIG/SCH/-2", 0, false},
	}
	for _, tc := range cases {
		seq, ok := ParseSequence(tc.tag)
		if ok != tc.ok || seq != tc.seq {
			t.Errorf("ParseSequence(%q) = (%d, %v), want (%d, %v)", tc.tag, seq, ok, tc.seq, tc.ok)
		}
	}
}

// A school with one valid tag with a gap and one malformed tag must allocate
// after the highest valid sequence, ignoring the malformed entry.
func TestNextSequence_GapsAndMalformed(t *testing.T) {
	tags := []string{"LAP/KIG/SCH/0001", "LAP/KIG/SCH/0003", "LAP/KIG/SCH/bad"}
	if got := NextSequence(tags); got != 4 {
		t.Fatalf("NextSequence = %d, want 4", got)
	}
}

func TestNextSequence_Empty(t *testing.T) {
	if got := NextSequence(nil); got != 1 {
		t.Fatalf("NextSequence(nil) = %d, want 1", got)
	}
}

func TestFormat(t *testing.T) {
	school := &storage.School{Code: "S1", Name: "Green Hills", District: "Kicukiro"}
	got := Format(storage.CategoryLaptop, school, 7)
	if got != "LAP/KIC/GRE/0007" {
		t.Fatalf("Format = %q, want LAP/KIC/GRE/0007", got)
	}
}

func TestNextSequenceForSchool(t *testing.T) {
	ctx := context.Background()
	provider := storage.NewMemoryProvider()

	school := &storage.School{Code: "S1", Name: "Green Hills", District: "Kicukiro"}
	if err := provider.CreateSchool(ctx, school); err != nil {
		t.Fatalf("CreateSchool: %v", err)
	}

	code := school.Code
	tag1 := "LAP/KIC/GRE/0002"
	bad := "not-a-tag"
	devices := []storage.Device{
		{SerialNumber: "SN-1", Category: storage.CategoryLaptop, Condition: storage.ConditionNew, Status: storage.DeviceStatusAssigned, SchoolCode: &code, AssetTag: &tag1},
		{SerialNumber: "SN-2", Category: storage.CategoryLaptop, Condition: storage.ConditionNew, Status: storage.DeviceStatusAssigned, SchoolCode: &code, AssetTag: &bad},
		{SerialNumber: "SN-3", Category: storage.CategoryLaptop, Condition: storage.ConditionNew, Status: storage.DeviceStatusAssigned, SchoolCode: &code},
	}
	for i := range devices {
		if err := provider.CreateDevice(ctx, &devices[i]); err != nil {
			t.Fatalf("CreateDevice %d: %v", i, err)
		}
	}

	next, err := New().NextSequenceForSchool(ctx, provider, code)
	if err != nil {
		t.Fatalf("NextSequenceForSchool: %v", err)
	}
	if next != 3 {
		t.Fatalf("next sequence = %d, want 3", next)
	}
}

// Demonstrates the hazard of scanning outside a transaction: two allocations
// over the same snapshot observe the same maximum and produce colliding tags.
// The assignment coordinator avoids this by scanning inside the writing
// transaction; the unique (school_code, asset_tag) index rejects the loser.
func TestNextSequenceForSchool_UnguardedScanCollides(t *testing.T) {
	ctx := context.Background()
	provider := storage.NewMemoryProvider()

	school := &storage.School{Code: "S1", Name: "Green Hills", District: "Kicukiro"}
	if err := provider.CreateSchool(ctx, school); err != nil {
		t.Fatalf("CreateSchool: %v", err)
	}

	alloc := New()
	first, err := alloc.NextSequenceForSchool(ctx, provider, school.Code)
	if err != nil {
		t.Fatalf("first scan: %v", err)
	}
	second, err := alloc.NextSequenceForSchool(ctx, provider, school.Code)
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}

	if first != second {
		t.Fatalf("expected both unguarded scans to collide, got %d and %d", first, second)
	}
	if Format(storage.CategoryLaptop, school, first) != Format(storage.CategoryLaptop, school, second) {
		t.Fatal("expected identical tags from identical sequences")
	}

	// The storage layer is the backstop: persisting the second identical tag
	// must fail with a conflict.
	code := school.Code
	tag := Format(storage.CategoryLaptop, school, first)
	d1 := storage.Device{SerialNumber: "SN-A", Category: storage.CategoryLaptop, Condition: storage.ConditionNew, Status: storage.DeviceStatusAssigned, SchoolCode: &code, AssetTag: &tag}
	d2 := storage.Device{SerialNumber: "SN-B", Category: storage.CategoryLaptop, Condition: storage.ConditionNew, Status: storage.DeviceStatusAssigned, SchoolCode: &code, AssetTag: &tag}
	if err := provider.CreateDevice(ctx, &d1); err != nil {
		t.Fatalf("first device: %v", err)
	}
	if err := provider.CreateDevice(ctx, &d2); err == nil {
		t.Fatal("expected tag conflict for second device, got nil")
	}
}
