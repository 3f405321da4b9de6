package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sitegrade/sitegrade/internal/constants"
	"github.com/sitegrade/sitegrade/internal/logger"
	"github.com/sitegrade/sitegrade/internal/provider"
	"github.com/sitegrade/sitegrade/internal/queue"

	"github.com/hibiken/asynq"
)

// Consumer handles async tasks.
type Consumer struct {
	*provider.Container
}

// NewConsumer creates the consumer.
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register registers the task handlers.
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskReservationExpire, c.handleReservationExpire)
}

// handleReservationExpire marks one aged reservation EXPIRED. The task fires
// at the reservation's TTL; a reservation consumed or re-quoted in the
// meantime is left alone.
func (c *Consumer) handleReservationExpire(_ context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_reservation_expire_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.ReservationExpirePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_reservation_expire_unmarshal_failed", "error", err)
		return err
	}
	if payload.ReservationID == 0 {
		logger.Debugw("worker_reservation_expire_skip_invalid_payload", "reservation_id", payload.ReservationID)
		return nil
	}
	reservation, err := c.ReservationRepo.GetByID(payload.ReservationID)
	if err != nil {
		logger.Warnw("worker_reservation_expire_fetch_failed", "reservation_id", payload.ReservationID, "error", err)
		return err
	}
	if reservation == nil {
		logger.Debugw("worker_reservation_expire_skip_not_found", "reservation_id", payload.ReservationID)
		return nil
	}
	if reservation.Status != constants.ReservationStatusReserved {
		logger.Debugw("worker_reservation_expire_skip_not_reserved",
			"reservation_id", reservation.ID,
			"status", reservation.Status,
		)
		return nil
	}
	if time.Now().Before(reservation.ExpiresAt) {
		logger.Debugw("worker_reservation_expire_skip_still_live", "reservation_id", reservation.ID)
		return nil
	}
	ok, err := c.ReservationRepo.MarkExpired(reservation.ID)
	if err != nil {
		logger.Warnw("worker_reservation_expire_failed", "reservation_id", reservation.ID, "error", err)
		return err
	}
	if ok {
		logger.Infow("worker_reservation_expired",
			"reservation_id", reservation.ID,
			"audit_id", reservation.AuditID,
			"coupon_id", reservation.CouponID,
		)
	}
	return nil
}
