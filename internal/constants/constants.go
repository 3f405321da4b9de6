package constants

// Audit lifecycle states.
const (
	AuditStatusQueued  = "queued"
	AuditStatusRunning = "running"
	AuditStatusDone    = "done"
	AuditStatusFailed  = "failed"
)

// Audit score labels.
const (
	LabelDanger  = "DANGER"
	LabelWarning = "WARNING"
	LabelGood    = "GOOD"
	LabelAmazing = "AMAZING"
)

// Coupon types.
const (
	CouponTypeFreeUnlock  = "free_unlock"
	CouponTypePercentOff  = "percent_off"
	CouponTypeFlatOff     = "flat_off"
	CouponTypeTieredPrice = "tiered_price"
)

// Coupon reservation states.
const (
	ReservationStatusReserved  = "reserved"
	ReservationStatusConsumed  = "consumed"
	ReservationStatusExpired   = "expired"
	ReservationStatusCancelled = "cancelled"
)

// Payment gateway webhook events that trigger the unlock path.
const (
	WebhookEventPaymentCaptured = "payment.captured"
	WebhookEventOrderPaid       = "order.paid"
)

// Queue names.
const (
	QueueDefault = "default"
)

// Async task types.
const (
	TaskReservationExpire = "reservation:expire"
)
