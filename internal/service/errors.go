package service

import "errors"

var (
	ErrAuditNotFound      = errors.New("audit not found")
	ErrCouponInvalid      = errors.New("coupon invalid")
	ErrCouponNotFound     = errors.New("coupon not found")
	ErrCouponInactive     = errors.New("coupon inactive")
	ErrCouponNotStarted   = errors.New("coupon not started")
	ErrCouponExpired      = errors.New("coupon expired")
	ErrCouponUsageLimit   = errors.New("coupon usage limit reached")
	ErrCouponPerUserLimit = errors.New("coupon per-user limit reached")
	ErrQuoteExpired       = errors.New("price quote expired")
	ErrOrderMismatch      = errors.New("order id mismatch")
	ErrOrderNotRequired   = errors.New("order not required for a zero price")
	ErrLeadInvalid        = errors.New("lead invalid")
	ErrConsentRequired    = errors.New("lead consent required")
	ErrAlreadyUnlocked    = errors.New("audit already unlocked")
)
