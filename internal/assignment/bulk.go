package assignment

import (
	"context"
	"fmt"

	"school-device-issuance/internal/assettag"
	"school-device-issuance/internal/fault"
	"school-device-issuance/internal/storage"
)

// BulkAssignedItem is one device successfully bound by a bulk assignment.
type BulkAssignedItem struct {
	SerialNumber string `json:"serial_number"`
	AssetTag     string `json:"asset_tag"`
}

// BulkAssignFailure records one skipped item. Skipping never aborts the batch.
type BulkAssignFailure struct {
	SerialNumber string `json:"serial_number"`
	Reason       string `json:"reason"`
}

type BulkAssignResult struct {
	Successful []BulkAssignedItem  `json:"successful"`
	Failed     []BulkAssignFailure `json:"failed"`
}

// BulkAssign binds a list of independent devices, identified by serial
// number, directly to a school outside any application. Each item succeeds or
// fails on its own; the tag sequence is scanned once before the loop and
// incremented in memory per item, inside the same transaction that writes the
// devices, so one batch always produces monotonically increasing tags.
func (c *Coordinator) BulkAssign(ctx context.Context, schoolCode string, actorID int64, serials []string) (BulkAssignResult, error) {
	var result BulkAssignResult
	if len(serials) == 0 {
		return result, fault.Validationf("at least one serial number is required")
	}

	actor, err := c.store.GetUser(ctx, actorID)
	if err != nil {
		return result, err
	}

	err = c.store.InTx(ctx, func(tx storage.Store) error {
		school, err := tx.GetSchoolByCode(ctx, schoolCode)
		if err != nil {
			return err
		}

		seq, err := c.alloc.NextSequenceForSchool(ctx, tx, school.Code)
		if err != nil {
			return err
		}

		for _, serial := range serials {
			device, err := tx.GetDeviceBySerial(ctx, serial)
			if err != nil {
				result.Failed = append(result.Failed, BulkAssignFailure{SerialNumber: serial, Reason: err.Error()})
				continue
			}
			if device.Status != storage.DeviceStatusAvailable {
				result.Failed = append(result.Failed, BulkAssignFailure{
					SerialNumber: serial,
					Reason:       fmt.Sprintf("device is %s, not Available", device.Status),
				})
				continue
			}

			tag := assettag.Format(device.Category, school, seq)
			seq++

			device.SchoolCode = &school.Code
			device.Status = storage.DeviceStatusAssigned
			device.AssetTag = &tag
			if err := tx.UpdateDevice(ctx, device); err != nil {
				result.Failed = append(result.Failed, BulkAssignFailure{SerialNumber: serial, Reason: err.Error()})
				continue
			}

			result.Successful = append(result.Successful, BulkAssignedItem{SerialNumber: serial, AssetTag: tag})
		}
		return nil
	})
	if err != nil {
		return BulkAssignResult{}, err
	}

	c.logger.Info("Bulk assignment finished", "school", schoolCode, "ok", len(result.Successful), "failed", len(result.Failed))
	if auditErr := c.auditor.Record(ctx, actor.Email, "devices.bulk_assigned", "school", schoolCode,
		fmt.Sprintf("ok=%d failed=%d", len(result.Successful), len(result.Failed)), 0); auditErr != nil {
		c.logger.Warn("Audit record failed", "school", schoolCode, "error", auditErr)
	}
	return result, nil
}
