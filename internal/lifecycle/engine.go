// Package lifecycle owns device applications and enforces their state
// machine:
//
//	Pending → UnderReview → {Approved | Rejected} → Assigned → Received
//
// with Cancelled reachable from Pending only. Rejected, Received and
// Cancelled are terminal. Every operation checks the current status
// explicitly; there is no implicit fallback transition.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"school-device-issuance/internal/fault"
	"school-device-issuance/internal/storage"
)

// ReviewDecision is the closed set of outcomes a reviewer may record.
type ReviewDecision storage.ApplicationStatus

const (
	DecisionUnderReview = ReviewDecision(storage.ApplicationUnderReview)
	DecisionApproved    = ReviewDecision(storage.ApplicationApproved)
	DecisionRejected    = ReviewDecision(storage.ApplicationRejected)
)

func ValidDecision(d ReviewDecision) bool {
	switch d {
	case DecisionUnderReview, DecisionApproved, DecisionRejected:
		return true
	}
	return false
}

// LetterStore is the slice of the file-storage collaborator the engine needs:
// a submitted application must reference a letter that actually exists.
type LetterStore interface {
	Exists(ref string) bool
}

type Engine struct {
	store    storage.Provider
	letters  LetterStore
	notifier Notifier
	auditor  Auditor
	logger   *slog.Logger
}

func NewEngine(store storage.Provider, letters LetterStore, notifier Notifier, auditor Auditor) *Engine {
	return &Engine{
		store:    store,
		letters:  letters,
		notifier: notifier,
		auditor:  auditor,
		logger:   slog.With("component", "lifecycle"),
	}
}

// SubmitInput is a representative's request for devices. Quantities are
// clamped to >= 0; unknown categories are rejected.
type SubmitInput struct {
	Quantities map[storage.DeviceCategory]int `json:"quantities"`
	LetterRef  string                         `json:"letter_ref"`
}

// Submit creates a Pending application for the applicant's school.
//
// The supporting letter must already be stored; if Submit fails after the
// caller stored the letter, deleting the orphaned letter is the caller's
// responsibility.
func (e *Engine) Submit(ctx context.Context, applicantID int64, in SubmitInput) (*storage.Application, error) {
	if in.LetterRef == "" {
		return nil, fault.Validationf("supporting letter is required")
	}
	if e.letters != nil && !e.letters.Exists(in.LetterRef) {
		return nil, fault.Validationf("letter %s does not exist", in.LetterRef)
	}

	var items []storage.ApplicationItem
	for category, qty := range in.Quantities {
		if !storage.ValidCategory(category) {
			return nil, fault.Validationf("unknown category %q", category)
		}
		if qty < 0 {
			qty = 0
		}
		items = append(items, storage.ApplicationItem{Category: category, Quantity: qty})
	}
	if len(items) == 0 {
		return nil, fault.Validationf("at least one requested category is required")
	}

	applicant, err := e.store.GetUser(ctx, applicantID)
	if err != nil {
		return nil, err
	}

	app := &storage.Application{
		ApplicantID: applicant.ID,
		Status:      storage.ApplicationPending,
		LetterRef:   in.LetterRef,
	}

	// The live-application check and the insert share one transaction so two
	// concurrent submissions for the same school cannot both pass the check.
	err = e.store.InTx(ctx, func(tx storage.Store) error {
		school, err := tx.GetSchoolByRepresentative(ctx, applicant.ID)
		if err != nil {
			return fault.Forbiddenf("user %s is not a school representative", applicant.Email)
		}
		app.SchoolCode = school.Code

		if live, err := tx.GetLiveApplicationBySchool(ctx, school.Code); err == nil {
			return fault.Conflictf("school %s already has application %d in state %s", school.Code, live.ID, live.Status)
		}

		return tx.CreateApplication(ctx, app, items)
	})
	if err != nil {
		return nil, err
	}

	e.emit(ctx, applicant.Email, "application.submitted", Event{
		ApplicationID: app.ID,
		SchoolCode:    app.SchoolCode,
		From:          "",
		To:            storage.ApplicationPending,
		Actor:         applicant.Email,
		At:            app.CreatedAt,
	})
	return app, nil
}

// Review moves a Pending or UnderReview application according to the
// reviewer's decision. Approving sets eligibility by default; reviewers can
// override it later with SetEligibility.
func (e *Engine) Review(ctx context.Context, applicationID int64, actorID int64, decision ReviewDecision, notes string) (*storage.Application, error) {
	if !ValidDecision(decision) {
		return nil, fault.Validationf("unknown review decision %q", decision)
	}

	actor, err := e.store.GetUser(ctx, actorID)
	if err != nil {
		return nil, err
	}

	var app *storage.Application
	var from storage.ApplicationStatus
	err = e.store.InTx(ctx, func(tx storage.Store) error {
		app, err = tx.GetApplication(ctx, applicationID)
		if err != nil {
			return err
		}

		switch app.Status {
		case storage.ApplicationPending, storage.ApplicationUnderReview:
		default:
			return fault.InvalidStatef("application %d cannot be reviewed in state %s", app.ID, app.Status)
		}

		from = app.Status
		now := time.Now().UTC()
		app.Status = storage.ApplicationStatus(decision)
		app.ReviewedBy = &actor.ID
		app.ReviewNotes = &notes
		app.ReviewedAt = &now
		if decision == DecisionApproved {
			app.IsEligible = true
		}

		return tx.UpdateApplication(ctx, app)
	})
	if err != nil {
		return nil, err
	}

	e.emit(ctx, actor.Email, "application.reviewed", Event{
		ApplicationID: app.ID,
		SchoolCode:    app.SchoolCode,
		From:          from,
		To:            app.Status,
		Actor:         actor.Email,
		At:            *app.ReviewedAt,
	})
	return app, nil
}

// SetEligibility overrides the eligibility gate. Legal only once the
// application has been reviewed, and never on a terminal application.
func (e *Engine) SetEligibility(ctx context.Context, applicationID int64, actorID int64, eligible bool, notes string) (*storage.Application, error) {
	actor, err := e.store.GetUser(ctx, actorID)
	if err != nil {
		return nil, err
	}

	var app *storage.Application
	err = e.store.InTx(ctx, func(tx storage.Store) error {
		app, err = tx.GetApplication(ctx, applicationID)
		if err != nil {
			return err
		}

		if app.Status == storage.ApplicationPending {
			return fault.InvalidStatef("application %d must be reviewed before eligibility is set", app.ID)
		}
		if app.Terminal() {
			return fault.InvalidStatef("application %d is closed in state %s", app.ID, app.Status)
		}

		app.IsEligible = eligible
		app.EligibilityNotes = &notes
		return tx.UpdateApplication(ctx, app)
	})
	if err != nil {
		return nil, err
	}

	if err := e.auditor.Record(ctx, actor.Email, "application.eligibility", "application", fmt.Sprint(app.ID), fmt.Sprintf("eligible=%t", eligible), 0); err != nil {
		e.logger.Warn("Audit record failed", "error", err)
	}
	return app, nil
}

// ConfirmReceipt is the applicant's acknowledgment that the assigned devices
// arrived. Only the original applicant may confirm, and only from Assigned.
func (e *Engine) ConfirmReceipt(ctx context.Context, applicationID int64, applicantID int64, notes string) (*storage.Application, error) {
	applicant, err := e.store.GetUser(ctx, applicantID)
	if err != nil {
		return nil, err
	}

	var app *storage.Application
	err = e.store.InTx(ctx, func(tx storage.Store) error {
		app, err = tx.GetApplication(ctx, applicationID)
		if err != nil {
			return err
		}

		if app.ApplicantID != applicant.ID {
			return fault.Forbiddenf("only the original applicant can confirm receipt of application %d", app.ID)
		}
		if app.Status != storage.ApplicationAssigned {
			return fault.InvalidStatef("application %d cannot be confirmed in state %s", app.ID, app.Status)
		}

		now := time.Now().UTC()
		app.Status = storage.ApplicationReceived
		app.ConfirmNotes = &notes
		app.ConfirmedAt = &now
		return tx.UpdateApplication(ctx, app)
	})
	if err != nil {
		return nil, err
	}

	e.emit(ctx, applicant.Email, "application.received", Event{
		ApplicationID: app.ID,
		SchoolCode:    app.SchoolCode,
		From:          storage.ApplicationAssigned,
		To:            storage.ApplicationReceived,
		Actor:         applicant.Email,
		At:            *app.ConfirmedAt,
	})
	return app, nil
}

// Cancel withdraws a Pending application. Only the original applicant may
// cancel, and only before review starts.
func (e *Engine) Cancel(ctx context.Context, applicationID int64, applicantID int64) (*storage.Application, error) {
	applicant, err := e.store.GetUser(ctx, applicantID)
	if err != nil {
		return nil, err
	}

	var app *storage.Application
	err = e.store.InTx(ctx, func(tx storage.Store) error {
		app, err = tx.GetApplication(ctx, applicationID)
		if err != nil {
			return err
		}

		if app.ApplicantID != applicant.ID {
			return fault.Forbiddenf("only the original applicant can cancel application %d", app.ID)
		}
		if app.Status != storage.ApplicationPending {
			return fault.InvalidStatef("application %d cannot be cancelled in state %s", app.ID, app.Status)
		}

		app.Status = storage.ApplicationCancelled
		return tx.UpdateApplication(ctx, app)
	})
	if err != nil {
		return nil, err
	}

	e.emit(ctx, applicant.Email, "application.cancelled", Event{
		ApplicationID: app.ID,
		SchoolCode:    app.SchoolCode,
		From:          storage.ApplicationPending,
		To:            storage.ApplicationCancelled,
		Actor:         applicant.Email,
		At:            time.Now().UTC(),
	})
	return app, nil
}

func (e *Engine) Get(ctx context.Context, applicationID int64) (*storage.Application, error) {
	return e.store.GetApplication(ctx, applicationID)
}

// List applies a validated status filter.
func (e *Engine) List(ctx context.Context, filter storage.ApplicationFilter) ([]storage.Application, error) {
	if filter.Status != "" && !storage.ValidApplicationStatus(filter.Status) {
		return nil, fault.Validationf("unknown status filter %q", filter.Status)
	}
	return e.store.ListApplications(ctx, filter)
}

// emit delivers the lifecycle event to the notification and audit
// collaborators. Their failures are logged, never returned: an application's
// integrity must not depend on notification delivery.
func (e *Engine) emit(ctx context.Context, target string, kind string, event Event) {
	if err := e.notifier.Notify(ctx, target, kind, event); err != nil {
		e.logger.Warn("Notification failed", "kind", kind, "application", event.ApplicationID, "error", err)
	}
	if err := e.auditor.Record(ctx, event.Actor, kind, "application", fmt.Sprint(event.ApplicationID), string(event.To), 0); err != nil {
		e.logger.Warn("Audit record failed", "kind", kind, "application", event.ApplicationID, "error", err)
	}
}
