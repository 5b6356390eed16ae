package lifecycle

import (
	"context"
	"errors"
	"testing"

	"school-device-issuance/internal/fault"
	"school-device-issuance/internal/storage"
)

type fakeLetters map[string]bool

func (f fakeLetters) Exists(ref string) bool { return f[ref] }

type fixture struct {
	engine   *Engine
	provider *storage.MemoryProvider
	rep      *storage.User
	reviewer *storage.User
	outsider *storage.User
	school   *storage.School
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	provider := storage.NewMemoryProvider()

	rep := &storage.User{Email: "rep@school.test", Name: "Rep", Role: "representative"}
	reviewer := &storage.User{Email: "reviewer@gov.test", Name: "Reviewer", Role: "reviewer"}
	outsider := &storage.User{Email: "other@school.test", Name: "Other", Role: "representative"}
	for _, u := range []*storage.User{rep, reviewer, outsider} {
		if err := provider.CreateUser(ctx, u); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}

	school := &storage.School{Code: "GRE", Name: "Green Hills", District: "Gasabo", RepresentativeID: &rep.ID}
	if err := provider.CreateSchool(ctx, school); err != nil {
		t.Fatalf("create school: %v", err)
	}

	letters := fakeLetters{"letter.pdf": true}
	engine := NewEngine(provider, letters, NopNotifier{}, NopAuditor{})
	return &fixture{engine: engine, provider: provider, rep: rep, reviewer: reviewer, outsider: outsider, school: school}
}

func (f *fixture) submit(t *testing.T) *storage.Application {
	t.Helper()
	app, err := f.engine.Submit(context.Background(), f.rep.ID, SubmitInput{
		Quantities: map[storage.DeviceCategory]int{storage.CategoryLaptop: 3},
		LetterRef:  "letter.pdf",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return app
}

func TestSubmit(t *testing.T) {
	f := newFixture(t)
	app := f.submit(t)

	if app.Status != storage.ApplicationPending {
		t.Errorf("status = %s, want Pending", app.Status)
	}
	if app.SchoolCode != "GRE" {
		t.Errorf("school = %s, want GRE", app.SchoolCode)
	}

	items, err := f.provider.ListApplicationItems(context.Background(), app.ID)
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	if len(items) != 1 || items[0].Category != storage.CategoryLaptop || items[0].Quantity != 3 {
		t.Errorf("items = %+v", items)
	}
}

func TestSubmitRequiresLetter(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Submit(context.Background(), f.rep.ID, SubmitInput{
		Quantities: map[storage.DeviceCategory]int{storage.CategoryLaptop: 1},
	})
	if !errors.Is(err, fault.ErrValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestSubmitUnknownCategory(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Submit(context.Background(), f.rep.ID, SubmitInput{
		Quantities: map[storage.DeviceCategory]int{"Smartboard": 1},
		LetterRef:  "letter.pdf",
	})
	if !errors.Is(err, fault.ErrValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestSubmitByNonRepresentative(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Submit(context.Background(), f.outsider.ID, SubmitInput{
		Quantities: map[storage.DeviceCategory]int{storage.CategoryLaptop: 1},
		LetterRef:  "letter.pdf",
	})
	if !errors.Is(err, fault.ErrForbidden) {
		t.Fatalf("err = %v, want forbidden", err)
	}
}

func TestSubmitConflictsWithLiveApplication(t *testing.T) {
	f := newFixture(t)
	f.submit(t)

	_, err := f.engine.Submit(context.Background(), f.rep.ID, SubmitInput{
		Quantities: map[storage.DeviceCategory]int{storage.CategoryTablet: 2},
		LetterRef:  "letter.pdf",
	})
	if !errors.Is(err, fault.ErrConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
}

func TestSubmitAllowedAfterTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.submit(t)

	if _, err := f.engine.Cancel(ctx, app.ID, f.rep.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	// A cancelled application no longer blocks the school.
	f.submit(t)
}

func TestReviewApprove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.submit(t)

	app, err := f.engine.Review(ctx, app.ID, f.reviewer.ID, DecisionApproved, "looks good")
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if app.Status != storage.ApplicationApproved {
		t.Errorf("status = %s, want Approved", app.Status)
	}
	if !app.IsEligible {
		t.Error("approval should set eligibility")
	}
	if app.ReviewedBy == nil || *app.ReviewedBy != f.reviewer.ID {
		t.Errorf("reviewed_by = %v, want %d", app.ReviewedBy, f.reviewer.ID)
	}
}

func TestReviewViaUnderReview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.submit(t)

	app, err := f.engine.Review(ctx, app.ID, f.reviewer.ID, DecisionUnderReview, "")
	if err != nil {
		t.Fatalf("mark under review: %v", err)
	}
	if app.Status != storage.ApplicationUnderReview {
		t.Fatalf("status = %s, want UnderReview", app.Status)
	}

	if _, err := f.engine.Review(ctx, app.ID, f.reviewer.ID, DecisionRejected, "no stock"); err != nil {
		t.Fatalf("reject: %v", err)
	}
}

func TestReviewTwiceIsInvalid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.submit(t)

	if _, err := f.engine.Review(ctx, app.ID, f.reviewer.ID, DecisionApproved, ""); err != nil {
		t.Fatalf("review: %v", err)
	}
	_, err := f.engine.Review(ctx, app.ID, f.reviewer.ID, DecisionRejected, "")
	if !errors.Is(err, fault.ErrInvalidState) {
		t.Fatalf("err = %v, want invalid state", err)
	}
}

func TestReviewUnknownDecision(t *testing.T) {
	f := newFixture(t)
	app := f.submit(t)

	_, err := f.engine.Review(context.Background(), app.ID, f.reviewer.ID, ReviewDecision("Maybe"), "")
	if !errors.Is(err, fault.ErrValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestSetEligibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.submit(t)

	// Pending applications have not been reviewed yet.
	_, err := f.engine.SetEligibility(ctx, app.ID, f.reviewer.ID, false, "")
	if !errors.Is(err, fault.ErrInvalidState) {
		t.Fatalf("err = %v, want invalid state", err)
	}

	if _, err := f.engine.Review(ctx, app.ID, f.reviewer.ID, DecisionApproved, ""); err != nil {
		t.Fatalf("review: %v", err)
	}

	app, err = f.engine.SetEligibility(ctx, app.ID, f.reviewer.ID, false, "budget hold")
	if err != nil {
		t.Fatalf("set eligibility: %v", err)
	}
	if app.IsEligible {
		t.Error("eligibility override not applied")
	}
}

func TestConfirmReceipt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.submit(t)

	if _, err := f.engine.Review(ctx, app.ID, f.reviewer.ID, DecisionApproved, ""); err != nil {
		t.Fatalf("review: %v", err)
	}

	// Force the assignment step; the coordinator has its own tests.
	stored, err := f.provider.GetApplication(ctx, app.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	stored.Status = storage.ApplicationAssigned
	if err := f.provider.UpdateApplication(ctx, stored); err != nil {
		t.Fatalf("update: %v", err)
	}

	// Only the applicant may confirm.
	_, err = f.engine.ConfirmReceipt(ctx, app.ID, f.reviewer.ID, "")
	if !errors.Is(err, fault.ErrForbidden) {
		t.Fatalf("err = %v, want forbidden", err)
	}

	confirmed, err := f.engine.ConfirmReceipt(ctx, app.ID, f.rep.ID, "all arrived")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.Status != storage.ApplicationReceived {
		t.Errorf("status = %s, want Received", confirmed.Status)
	}
	if confirmed.ConfirmedAt == nil {
		t.Error("confirmed_at not set")
	}

	// Received is terminal.
	_, err = f.engine.ConfirmReceipt(ctx, app.ID, f.rep.ID, "again")
	if !errors.Is(err, fault.ErrInvalidState) {
		t.Fatalf("second confirm err = %v, want invalid state", err)
	}
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.submit(t)

	// Only the applicant may cancel.
	_, err := f.engine.Cancel(ctx, app.ID, f.reviewer.ID)
	if !errors.Is(err, fault.ErrForbidden) {
		t.Fatalf("err = %v, want forbidden", err)
	}

	cancelled, err := f.engine.Cancel(ctx, app.ID, f.rep.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != storage.ApplicationCancelled {
		t.Errorf("status = %s, want Cancelled", cancelled.Status)
	}
}

func TestCancelAfterReviewIsInvalid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.submit(t)

	if _, err := f.engine.Review(ctx, app.ID, f.reviewer.ID, DecisionApproved, ""); err != nil {
		t.Fatalf("review: %v", err)
	}

	_, err := f.engine.Cancel(ctx, app.ID, f.rep.ID)
	if !errors.Is(err, fault.ErrInvalidState) {
		t.Fatalf("err = %v, want invalid state", err)
	}
}

func TestListValidatesStatusFilter(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.List(context.Background(), storage.ApplicationFilter{Status: "Bogus"})
	if !errors.Is(err, fault.ErrValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}
