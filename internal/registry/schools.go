package registry

import (
	"context"
	"log/slog"
	"strings"

	"school-device-issuance/internal/fault"
	"school-device-issuance/internal/storage"
)

type Schools struct {
	store  storage.Provider
	logger *slog.Logger
}

func NewSchools(store storage.Provider) *Schools {
	return &Schools{
		store:  store,
		logger: slog.With("component", "school-directory"),
	}
}

type NewSchoolInput struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Province string `json:"province"`
	District string `json:"district"`
	Sector   string `json:"sector"`
	Cell     string `json:"cell"`
	Village  string `json:"village"`
}

func (in *NewSchoolInput) validate() error {
	in.Code = strings.TrimSpace(in.Code)
	in.Name = strings.TrimSpace(in.Name)
	if in.Code == "" {
		return fault.Validationf("school code is required")
	}
	if in.Name == "" {
		return fault.Validationf("school name is required")
	}
	if strings.TrimSpace(in.District) == "" {
		return fault.Validationf("district is required")
	}
	return nil
}

func (s *Schools) Create(ctx context.Context, in NewSchoolInput) (*storage.School, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	school := &storage.School{
		Code:     in.Code,
		Name:     in.Name,
		Province: in.Province,
		District: in.District,
		Sector:   in.Sector,
		Cell:     in.Cell,
		Village:  in.Village,
	}
	if err := s.store.CreateSchool(ctx, school); err != nil {
		return nil, err
	}

	s.logger.Info("School registered", "code", school.Code, "name", school.Name)
	return school, nil
}

func (s *Schools) Get(ctx context.Context, code string) (*storage.School, error) {
	return s.store.GetSchoolByCode(ctx, code)
}

func (s *Schools) List(ctx context.Context) ([]storage.School, error) {
	return s.store.ListSchools(ctx)
}

// SetRepresentative designates a user as the school's sole authorized
// applicant. A user can represent at most one school.
func (s *Schools) SetRepresentative(ctx context.Context, code string, userID int64) (*storage.School, error) {
	school, err := s.store.GetSchoolByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if other, err := s.store.GetSchoolByRepresentative(ctx, userID); err == nil && other.Code != code {
		return nil, fault.Conflictf("user %s already represents school %s", user.Email, other.Code)
	}

	school.RepresentativeID = &user.ID
	if err := s.store.UpdateSchool(ctx, school); err != nil {
		return nil, err
	}

	s.logger.Info("Representative linked", "school", school.Code, "user", user.Email)
	return school, nil
}

type UpdateSchoolInput struct {
	Name     *string `json:"name"`
	Province *string `json:"province"`
	District *string `json:"district"`
	Sector   *string `json:"sector"`
	Cell     *string `json:"cell"`
	Village  *string `json:"village"`
}

func (s *Schools) Update(ctx context.Context, code string, in UpdateSchoolInput) (*storage.School, error) {
	school, err := s.store.GetSchoolByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		if strings.TrimSpace(*in.Name) == "" {
			return nil, fault.Validationf("school name cannot be empty")
		}
		school.Name = *in.Name
	}
	if in.Province != nil {
		school.Province = *in.Province
	}
	if in.District != nil {
		if strings.TrimSpace(*in.District) == "" {
			return nil, fault.Validationf("district cannot be empty")
		}
		school.District = *in.District
	}
	if in.Sector != nil {
		school.Sector = *in.Sector
	}
	if in.Cell != nil {
		school.Cell = *in.Cell
	}
	if in.Village != nil {
		school.Village = *in.Village
	}

	if err := s.store.UpdateSchool(ctx, school); err != nil {
		return nil, err
	}
	return school, nil
}
