// Package assettag derives the human-readable asset tags devices carry once
// they are bound to a school.
//
// A tag has the form CAT/DIS/SCH/NNNN: the first three letters of the device
// category, the school's district and the school's name, followed by a
// four-digit sequence number scoped to the school. Sequence numbers are
// derived by scanning the school's existing tags; the derivation itself is
// not concurrency-safe, so callers must run it inside the same transaction
// that writes the device (see assignment.Coordinator) with the unique
// (school_code, asset_tag) index as backstop.
package assettag

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"school-device-issuance/internal/storage"
)

const (
	segments  = 4
	seqDigits = 4
	prefixLen = 3
)

// foldTransformer strips diacritics so "Región" and "Région" prefix the same
// as their ASCII forms.
var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Prefix returns the tag segment for a name: diacritics folded, letters only,
// upper-cased, at most three runes. Short names yield short prefixes.
func Prefix(name string) string {
	folded, _, err := transform.String(foldTransformer, name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	for _, r := range folded {
		if !unicode.IsLetter(r) {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
		if b.Len() >= prefixLen {
			break
		}
	}
	return b.String()
}

// Format renders a full tag for the given school and category.
func Format(category storage.DeviceCategory, school *storage.School, seq int) string {
	return fmt.Sprintf("%s/%s/%s/%0*d", Prefix(string(category)), Prefix(school.District), Prefix(school.Name), seqDigits, seq)
}

// ParseSequence extracts the sequence number from a tag. A well-formed tag
// has exactly four /-separated segments with an integer last segment; for
// anything else ok is false.
func ParseSequence(tag string) (seq int, ok bool) {
	parts := strings.Split(tag, "/")
	if len(parts) != segments {
		return 0, false
	}
	seq, err := strconv.Atoi(parts[segments-1])
	if err != nil || seq < 0 {
		return 0, false
	}
	return seq, true
}

// NextSequence returns max(parsed sequences)+1 over the given tags. Malformed
// or missing tags contribute nothing; historical records with inconsistent
// formatting never block allocation.
func NextSequence(tags []string) int {
	max := 0
	for _, tag := range tags {
		if seq, ok := ParseSequence(tag); ok && seq > max {
			max = seq
		}
	}
	return max + 1
}

// Allocator computes the next free tag for a school by scanning the devices
// currently bound to it.
type Allocator struct{}

func New() *Allocator {
	return &Allocator{}
}

// NextSequenceForSchool scans the school's devices through the given store.
// Run it on a transaction-scoped store when the result feeds a write.
func (a *Allocator) NextSequenceForSchool(ctx context.Context, store storage.Store, schoolCode string) (int, error) {
	devices, err := store.ListDevices(ctx, storage.DeviceFilter{SchoolCode: schoolCode})
	if err != nil {
		return 0, fmt.Errorf("scan devices for school %s: %w", schoolCode, err)
	}

	tags := make([]string, 0, len(devices))
	for _, device := range devices {
		if device.AssetTag != nil {
			tags = append(tags, *device.AssetTag)
		}
	}
	return NextSequence(tags), nil
}
