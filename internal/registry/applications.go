package registry

import (
	"context"
	"log/slog"

	"school-device-issuance/internal/storage"
)

// ApplicationDetail is the full read model for one application: the record
// itself plus the related rows a caller usually wants in the same response.
type ApplicationDetail struct {
	Application storage.Application       `json:"application"`
	Items       []storage.ApplicationItem `json:"items"`
	Devices     []storage.AssignedDevice  `json:"devices"`
	School      *storage.School           `json:"school"`
	Applicant   *storage.User             `json:"applicant"`
	Reviewer    *storage.User             `json:"reviewer,omitempty"`
}

// Applications is a read-only view over applications. Writes go through the
// lifecycle engine; this only fans out the related fetches.
type Applications struct {
	store  storage.Provider
	logger *slog.Logger
}

func NewApplications(store storage.Provider) *Applications {
	return &Applications{
		store:  store,
		logger: slog.With("component", "registry.applications"),
	}
}

func (r *Applications) Detail(ctx context.Context, id int64) (*ApplicationDetail, error) {
	app, err := r.store.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &ApplicationDetail{Application: *app}

	detail.Items, err = r.store.ListApplicationItems(ctx, app.ID)
	if err != nil {
		return nil, err
	}
	detail.Devices, err = r.store.ListAssignedDevices(ctx, app.ID)
	if err != nil {
		return nil, err
	}
	detail.School, err = r.store.GetSchoolByCode(ctx, app.SchoolCode)
	if err != nil {
		return nil, err
	}
	detail.Applicant, err = r.store.GetUser(ctx, app.ApplicantID)
	if err != nil {
		return nil, err
	}

	if app.ReviewedBy != nil {
		reviewer, err := r.store.GetUser(ctx, *app.ReviewedBy)
		if err != nil {
			// The application is still useful without the reviewer row.
			r.logger.Warn("Reviewer lookup failed", "application_id", app.ID, "reviewer_id", *app.ReviewedBy, "error", err)
		} else {
			detail.Reviewer = reviewer
		}
	}

	return detail, nil
}
