package queue

import (
	"encoding/json"

	"github.com/sitegrade/sitegrade/internal/constants"

	"github.com/hibiken/asynq"
)

// TaskReservationExpire marks an aged coupon reservation EXPIRED.
const TaskReservationExpire = constants.TaskReservationExpire

// ReservationExpirePayload is the reservation-expiry task payload.
type ReservationExpirePayload struct {
	ReservationID uint `json:"reservation_id"`
}

// NewReservationExpireTask creates a reservation-expiry task.
func NewReservationExpireTask(payload ReservationExpirePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReservationExpire, body), nil
}
