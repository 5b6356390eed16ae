// Package assignment orchestrates binding devices to schools: the
// all-or-nothing assignment of devices to an approved application, and the
// bulk operations that seed a school's inventory directly.
//
// Everything that reads a school's tag sequence and then writes new tags runs
// inside one storage transaction. The SQLite backend serializes writers and
// carries a unique (school_code, asset_tag) index, so a concurrent assignment
// that would reuse a sequence number fails with a conflict and is retried
// with a fresh scan.
package assignment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"school-device-issuance/internal/assettag"
	"school-device-issuance/internal/fault"
	"school-device-issuance/internal/lifecycle"
	"school-device-issuance/internal/storage"
)

// maxTagRetries bounds how often an assignment is retried after losing a tag
// race to a concurrent transaction.
const maxTagRetries = 3

// errTagCollision marks a conflict raised while persisting freshly allocated
// tags, as opposed to a device-availability conflict which is never retried.
var errTagCollision = errors.New("asset tag collision")

type Coordinator struct {
	store    storage.Provider
	alloc    *assettag.Allocator
	notifier lifecycle.Notifier
	auditor  lifecycle.Auditor
	logger   *slog.Logger
}

func NewCoordinator(store storage.Provider, alloc *assettag.Allocator, notifier lifecycle.Notifier, auditor lifecycle.Auditor) *Coordinator {
	return &Coordinator{
		store:    store,
		alloc:    alloc,
		notifier: notifier,
		auditor:  auditor,
		logger:   slog.With("component", "assignment"),
	}
}

// Assign binds the candidate devices to the application's school and moves
// the application to Assigned, as one atomic unit. Any unknown device fails
// the whole operation with a not-found error; any unavailable device fails it
// with a conflict naming the offending serials. On failure nothing changes
// and the caller may retry with the same device list.
func (c *Coordinator) Assign(ctx context.Context, applicationID int64, actorID int64, deviceIDs []int64) (*storage.Application, error) {
	if len(deviceIDs) == 0 {
		return nil, fault.Validationf("at least one device is required")
	}

	actor, err := c.store.GetUser(ctx, actorID)
	if err != nil {
		return nil, err
	}

	var app *storage.Application
	for attempt := 0; ; attempt++ {
		app, err = c.assignOnce(ctx, applicationID, actor, deviceIDs)
		if err == nil {
			break
		}
		if errors.Is(err, errTagCollision) && attempt < maxTagRetries {
			c.logger.Warn("Tag collision during assignment, retrying", "application", applicationID, "attempt", attempt+1)
			continue
		}
		return nil, err
	}

	event := lifecycle.Event{
		ApplicationID: app.ID,
		SchoolCode:    app.SchoolCode,
		From:          storage.ApplicationApproved,
		To:            storage.ApplicationAssigned,
		Actor:         actor.Email,
		At:            *app.AssignedAt,
		Extra:         map[string]any{"device_count": len(deviceIDs)},
	}
	if err := c.notifier.Notify(ctx, actor.Email, "devices.assigned", event); err != nil {
		c.logger.Warn("Notification failed", "application", app.ID, "error", err)
	}
	if err := c.auditor.Record(ctx, actor.Email, "devices.assigned", "application", fmt.Sprint(app.ID), fmt.Sprintf("devices=%d", len(deviceIDs)), 0); err != nil {
		c.logger.Warn("Audit record failed", "application", app.ID, "error", err)
	}
	return app, nil
}

func (c *Coordinator) assignOnce(ctx context.Context, applicationID int64, actor *storage.User, deviceIDs []int64) (*storage.Application, error) {
	var app *storage.Application

	err := c.store.InTx(ctx, func(tx storage.Store) error {
		var err error
		app, err = tx.GetApplication(ctx, applicationID)
		if err != nil {
			return err
		}
		if app.Status != storage.ApplicationApproved {
			return fault.InvalidStatef("application %d cannot be assigned in state %s", app.ID, app.Status)
		}
		if !app.IsEligible {
			return fault.InvalidStatef("application %d is not eligible for assignment", app.ID)
		}

		school, err := tx.GetSchoolByCode(ctx, app.SchoolCode)
		if err != nil {
			return err
		}

		// Resolve every candidate first; one unknown id fails the whole call.
		devices := make([]*storage.Device, 0, len(deviceIDs))
		seen := make(map[int64]bool, len(deviceIDs))
		for _, id := range deviceIDs {
			if seen[id] {
				return fault.Validationf("device %d listed twice", id)
			}
			seen[id] = true
			device, err := tx.GetDevice(ctx, id)
			if err != nil {
				return err
			}
			devices = append(devices, device)
		}

		// All devices must be Available; report every offender at once.
		var unavailable []string
		for _, device := range devices {
			if device.Status != storage.DeviceStatusAvailable {
				unavailable = append(unavailable, device.SerialNumber)
			}
		}
		if len(unavailable) > 0 {
			return fault.Conflictf("devices not available: %s", strings.Join(unavailable, ", "))
		}

		seq, err := c.alloc.NextSequenceForSchool(ctx, tx, school.Code)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		for _, device := range devices {
			tag := assettag.Format(device.Category, school, seq)
			seq++

			device.SchoolCode = &school.Code
			device.Status = storage.DeviceStatusAssigned
			device.AssetTag = &tag
			if err := tx.UpdateDevice(ctx, device); err != nil {
				if errors.Is(err, fault.ErrConflict) {
					return fmt.Errorf("%w: %w", errTagCollision, err)
				}
				return err
			}

			if err := tx.InsertAssignedDevice(ctx, storage.AssignedDevice{
				ApplicationID: app.ID,
				DeviceID:      device.ID,
				SerialNumber:  device.SerialNumber,
				Category:      device.Category,
			}); err != nil {
				return err
			}
		}

		app.Status = storage.ApplicationAssigned
		app.AssignedBy = &actor.ID
		app.AssignedAt = &now
		return tx.UpdateApplication(ctx, app)
	})
	if err != nil {
		return nil, err
	}
	return app, nil
}

// Snapshots returns the frozen device facts recorded when the application was
// assigned. They do not change when devices are edited later.
func (c *Coordinator) Snapshots(ctx context.Context, applicationID int64) ([]storage.AssignedDevice, error) {
	if _, err := c.store.GetApplication(ctx, applicationID); err != nil {
		return nil, err
	}
	return c.store.ListAssignedDevices(ctx, applicationID)
}
