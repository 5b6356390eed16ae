package storage

import "time"

type DeviceCategory string

const (
	CategoryLaptop    DeviceCategory = "Laptop"
	CategoryDesktop   DeviceCategory = "Desktop"
	CategoryTablet    DeviceCategory = "Tablet"
	CategoryProjector DeviceCategory = "Projector"
	CategoryPrinter   DeviceCategory = "Printer"
)

// DeviceCategories is the closed set of categories accepted at the boundary.
var DeviceCategories = []DeviceCategory{
	CategoryLaptop,
	CategoryDesktop,
	CategoryTablet,
	CategoryProjector,
	CategoryPrinter,
}

func ValidCategory(c DeviceCategory) bool {
	for _, known := range DeviceCategories {
		if c == known {
			return true
		}
	}
	return false
}

type DeviceCondition string

const (
	ConditionNew  DeviceCondition = "New"
	ConditionGood DeviceCondition = "Good"
	ConditionFair DeviceCondition = "Fair"
	ConditionPoor DeviceCondition = "Poor"
)

func ValidCondition(c DeviceCondition) bool {
	switch c {
	case ConditionNew, ConditionGood, ConditionFair, ConditionPoor:
		return true
	}
	return false
}

type DeviceStatus string

const (
	DeviceStatusAvailable   DeviceStatus = "Available"
	DeviceStatusAssigned    DeviceStatus = "Assigned"
	DeviceStatusMaintenance DeviceStatus = "Maintenance"
	DeviceStatusWrittenOff  DeviceStatus = "WrittenOff"
)

func ValidDeviceStatus(s DeviceStatus) bool {
	switch s {
	case DeviceStatusAvailable, DeviceStatusAssigned, DeviceStatusMaintenance, DeviceStatusWrittenOff:
		return true
	}
	return false
}

type ApplicationStatus string

const (
	ApplicationPending     ApplicationStatus = "Pending"
	ApplicationUnderReview ApplicationStatus = "UnderReview"
	ApplicationApproved    ApplicationStatus = "Approved"
	ApplicationRejected    ApplicationStatus = "Rejected"
	ApplicationAssigned    ApplicationStatus = "Assigned"
	ApplicationReceived    ApplicationStatus = "Received"
	ApplicationCancelled   ApplicationStatus = "Cancelled"
)

func ValidApplicationStatus(s ApplicationStatus) bool {
	switch s {
	case ApplicationPending, ApplicationUnderReview, ApplicationApproved,
		ApplicationRejected, ApplicationAssigned, ApplicationReceived, ApplicationCancelled:
		return true
	}
	return false
}

// Device is one physical asset. AssetTag and SchoolCode are set together when
// a device is bound to a school; an Available device has neither.
type Device struct {
	ID           int64           `db:"id" json:"id"`
	SerialNumber string          `db:"serial_number" json:"serial_number"`
	Category     DeviceCategory  `db:"category" json:"category"`
	Brand        string          `db:"brand" json:"brand"`
	Model        string          `db:"model" json:"model"`
	Condition    DeviceCondition `db:"condition" json:"condition"`
	Status       DeviceStatus    `db:"status" json:"status"`
	SchoolCode   *string         `db:"school_code" json:"school_code"`
	AssetTag     *string         `db:"asset_tag" json:"asset_tag"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

type School struct {
	ID               int64     `db:"id" json:"id"`
	Code             string    `db:"code" json:"code"`
	Name             string    `db:"name" json:"name"`
	Province         string    `db:"province" json:"province"`
	District         string    `db:"district" json:"district"`
	Sector           string    `db:"sector" json:"sector"`
	Cell             string    `db:"cell" json:"cell"`
	Village          string    `db:"village" json:"village"`
	RepresentativeID *int64    `db:"representative_id" json:"representative_id"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

type User struct {
	ID        int64     `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	Name      string    `db:"name" json:"name"`
	Role      string    `db:"role" json:"role"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type Application struct {
	ID          int64             `db:"id" json:"id"`
	SchoolCode  string            `db:"school_code" json:"school_code"`
	ApplicantID int64             `db:"applicant_id" json:"applicant_id"`
	Status      ApplicationStatus `db:"status" json:"status"`
	LetterRef   string            `db:"letter_ref" json:"letter_ref"`

	ReviewedBy  *int64     `db:"reviewed_by" json:"reviewed_by"`
	ReviewNotes *string    `db:"review_notes" json:"review_notes"`
	ReviewedAt  *time.Time `db:"reviewed_at" json:"reviewed_at"`

	IsEligible       bool    `db:"is_eligible" json:"is_eligible"`
	EligibilityNotes *string `db:"eligibility_notes" json:"eligibility_notes"`

	AssignedBy *int64     `db:"assigned_by" json:"assigned_by"`
	AssignedAt *time.Time `db:"assigned_at" json:"assigned_at"`

	ConfirmNotes *string    `db:"confirm_notes" json:"confirm_notes"`
	ConfirmedAt  *time.Time `db:"confirmed_at" json:"confirmed_at"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Terminal reports whether the application can never change state again.
func (a *Application) Terminal() bool {
	switch a.Status {
	case ApplicationRejected, ApplicationReceived, ApplicationCancelled:
		return true
	}
	return false
}

// ApplicationItem is one requested quantity line on an application.
type ApplicationItem struct {
	ApplicationID int64          `db:"application_id" json:"application_id"`
	Category      DeviceCategory `db:"category" json:"category"`
	Quantity      int            `db:"quantity" json:"quantity"`
}

// AssignedDevice is the frozen per-device snapshot taken at assignment time.
// It never changes, even if the device record is later edited.
type AssignedDevice struct {
	ApplicationID int64          `db:"application_id" json:"application_id"`
	DeviceID      int64          `db:"device_id" json:"device_id"`
	SerialNumber  string         `db:"serial_number" json:"serial_number"`
	Category      DeviceCategory `db:"category" json:"category"`
}

type AuditEvent struct {
	ID         int64     `db:"id" json:"id"`
	Actor      string    `db:"actor" json:"actor"`
	Action     string    `db:"action" json:"action"`
	Entity     string    `db:"entity" json:"entity"`
	EntityID   string    `db:"entity_id" json:"entity_id"`
	Outcome    string    `db:"outcome" json:"outcome"`
	DurationMS int64     `db:"duration_ms" json:"duration_ms"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

type Session struct {
	ID        string    `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	ClientIP  string    `db:"client_ip" json:"client_ip"`
	StartedAt time.Time `db:"started_at" json:"started_at"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
}

// DeviceFilter narrows ListDevices. Zero fields match everything. Values are
// validated at the boundary so arbitrary field names never reach the store.
type DeviceFilter struct {
	Status     DeviceStatus
	Category   DeviceCategory
	SchoolCode string
}

// ApplicationFilter narrows ListApplications.
type ApplicationFilter struct {
	Status     ApplicationStatus
	SchoolCode string
}
