package types

import "errors"

var (
	ErrOrderNotFound        = errors.New("order not found")
	ErrDriverNotFound       = errors.New("driver not found")
	ErrPassengerNotFound    = errors.New("passenger not found")
	ErrNoActiveOrder        = errors.New("no active order")
	ErrInvalidTransition    = errors.New("order status transition is not allowed")
	ErrInvalidOrderStatus   = errors.New("invalid order status")
	ErrInvalidDriverStatus  = errors.New("invalid driver status: online, offline, busy, break")
	ErrInvalidCoordinates   = errors.New("latitude must be in [-90,90] and longitude in [-180,180]")
	ErrInvalidHeading       = errors.New("heading must be in [0,360)")
	ErrInvalidSpeed         = errors.New("speed must not be negative")
	ErrInvalidActorKind     = errors.New("invalid actor kind: driver, passenger, admin")
	ErrDriverNotAvailable   = errors.New("driver is not available")
	ErrDriverHasActiveOrder = errors.New("driver already has an active order")
	ErrOrderAlreadyTaken    = errors.New("order cannot be accepted")
	ErrStatusChanged        = errors.New("order status changed concurrently")

	ErrSearchExhausted  = errors.New("no driver accepted the order before the search deadline")
	ErrStoreUnavailable = errors.New("order store unavailable")

	ErrInvalidToken = errors.New("invalid token")
	ErrForbidden    = errors.New("forbidden")

	ErrInternal             = errors.New("internal server error")
	ErrDatabaseFailed       = errors.New("database operation failed")
	ErrFailedToPublishEvent = errors.New("failed to publish order event")
)
