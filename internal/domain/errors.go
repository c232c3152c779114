package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrBadQuote          = errors.New("bad quote data")
	ErrStaleQuote        = errors.New("stale quote")
	ErrExecutionExists   = errors.New("execution already in flight for fingerprint")
	ErrExecutionDisabled = errors.New("automated execution disabled")
	ErrRouterNotApproved = errors.New("router not approved")
	ErrLegFailed         = errors.New("trade leg failed")
	ErrProfitInvariant   = errors.New("settlement did not increase token balance")
	ErrSubmissionTimeout = errors.New("settlement confirmation timed out")
	ErrRiskRejected      = errors.New("rejected by risk limits")
)
