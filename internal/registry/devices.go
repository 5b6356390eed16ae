// Package registry owns device and school records. It validates the closed
// enumerations at the boundary and translates store conflicts; binding a
// device to a school is the assignment coordinator's job, not the registry's.
package registry

import (
	"context"
	"log/slog"
	"strings"

	"school-device-issuance/internal/fault"
	"school-device-issuance/internal/storage"
)

type Devices struct {
	store  storage.Provider
	logger *slog.Logger
}

func NewDevices(store storage.Provider) *Devices {
	return &Devices{
		store:  store,
		logger: slog.With("component", "device-registry"),
	}
}

// NewDeviceInput is one device to register. Serial numbers are trimmed and
// must be globally unique.
type NewDeviceInput struct {
	SerialNumber string                  `json:"serial_number"`
	Category     storage.DeviceCategory  `json:"category"`
	Brand        string                  `json:"brand"`
	Model        string                  `json:"model"`
	Condition    storage.DeviceCondition `json:"condition"`
}

func (in *NewDeviceInput) validate() error {
	in.SerialNumber = strings.TrimSpace(in.SerialNumber)
	if in.SerialNumber == "" {
		return fault.Validationf("serial number is required")
	}
	if !storage.ValidCategory(in.Category) {
		return fault.Validationf("unknown category %q", in.Category)
	}
	if in.Condition == "" {
		in.Condition = storage.ConditionNew
	}
	if !storage.ValidCondition(in.Condition) {
		return fault.Validationf("unknown condition %q", in.Condition)
	}
	return nil
}

// Create registers one device. New devices start Available and unbound.
func (r *Devices) Create(ctx context.Context, in NewDeviceInput) (*storage.Device, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	device := &storage.Device{
		SerialNumber: in.SerialNumber,
		Category:     in.Category,
		Brand:        in.Brand,
		Model:        in.Model,
		Condition:    in.Condition,
		Status:       storage.DeviceStatusAvailable,
	}
	if err := r.store.CreateDevice(ctx, device); err != nil {
		return nil, err
	}

	r.logger.Info("Device registered", "serial", device.SerialNumber, "category", device.Category)
	return device, nil
}

// BulkItemFailure records one rejected item of a bulk operation.
type BulkItemFailure struct {
	SerialNumber string `json:"serial_number"`
	Reason       string `json:"reason"`
}

// BulkCreateResult reports per-item outcomes. One item failing never aborts
// the batch.
type BulkCreateResult struct {
	Successful []storage.Device  `json:"successful"`
	Failed     []BulkItemFailure `json:"failed"`
}

// BulkCreate registers a list of independent devices, collecting per-item
// failures instead of raising.
func (r *Devices) BulkCreate(ctx context.Context, items []NewDeviceInput) BulkCreateResult {
	var result BulkCreateResult
	for _, item := range items {
		device, err := r.Create(ctx, item)
		if err != nil {
			result.Failed = append(result.Failed, BulkItemFailure{
				SerialNumber: item.SerialNumber,
				Reason:       err.Error(),
			})
			continue
		}
		result.Successful = append(result.Successful, *device)
	}
	r.logger.Info("Bulk device create finished", "ok", len(result.Successful), "failed", len(result.Failed))
	return result
}

func (r *Devices) Get(ctx context.Context, id int64) (*storage.Device, error) {
	return r.store.GetDevice(ctx, id)
}

func (r *Devices) GetBySerial(ctx context.Context, serial string) (*storage.Device, error) {
	return r.store.GetDeviceBySerial(ctx, serial)
}

// List applies a validated filter. Unknown filter values are rejected here so
// caller-supplied strings never reach the store unchecked.
func (r *Devices) List(ctx context.Context, filter storage.DeviceFilter) ([]storage.Device, error) {
	if filter.Status != "" && !storage.ValidDeviceStatus(filter.Status) {
		return nil, fault.Validationf("unknown status filter %q", filter.Status)
	}
	if filter.Category != "" && !storage.ValidCategory(filter.Category) {
		return nil, fault.Validationf("unknown category filter %q", filter.Category)
	}
	return r.store.ListDevices(ctx, filter)
}

// UpdateDeviceInput is an administrative edit. Unbinding a device from its
// school restores Available status and clears the tag.
type UpdateDeviceInput struct {
	Brand     *string                  `json:"brand"`
	Model     *string                  `json:"model"`
	Condition *storage.DeviceCondition `json:"condition"`
	Status    *storage.DeviceStatus    `json:"status"`
	Unbind    bool                     `json:"unbind"`
}

// Update edits a device administratively. Assignment status cannot be set by
// hand; it only changes through the coordinator or an explicit unbind.
func (r *Devices) Update(ctx context.Context, serial string, in UpdateDeviceInput) (*storage.Device, error) {
	device, err := r.store.GetDeviceBySerial(ctx, serial)
	if err != nil {
		return nil, err
	}

	if in.Brand != nil {
		device.Brand = *in.Brand
	}
	if in.Model != nil {
		device.Model = *in.Model
	}
	if in.Condition != nil {
		if !storage.ValidCondition(*in.Condition) {
			return nil, fault.Validationf("unknown condition %q", *in.Condition)
		}
		device.Condition = *in.Condition
	}
	if in.Status != nil {
		if !storage.ValidDeviceStatus(*in.Status) {
			return nil, fault.Validationf("unknown status %q", *in.Status)
		}
		if *in.Status == storage.DeviceStatusAssigned {
			return nil, fault.Validationf("assigned status is set by device assignment only")
		}
		device.Status = *in.Status
	}
	if in.Unbind {
		device.SchoolCode = nil
		device.AssetTag = nil
		if device.Status == storage.DeviceStatusAssigned {
			device.Status = storage.DeviceStatusAvailable
		}
	}

	if device.Status == storage.DeviceStatusAvailable && !in.Unbind && device.SchoolCode != nil {
		// Available implies unbound; an edit that frees a device clears its binding.
		device.SchoolCode = nil
		device.AssetTag = nil
	}

	if err := r.store.UpdateDevice(ctx, device); err != nil {
		return nil, err
	}
	return device, nil
}

func (r *Devices) CountByStatus(ctx context.Context) (map[storage.DeviceStatus]int, error) {
	return r.store.CountDevicesByStatus(ctx)
}
