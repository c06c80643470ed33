package models

// Reservation statuses.
const (
	ReservationActive    = "active"
	ReservationFulfilled = "fulfilled"
	ReservationCancelled = "cancelled"
	ReservationExpired   = "expired"
)

// Waitlist entry statuses. Waiting and notified entries are the "active"
// ones for queue-position accounting.
const (
	WaitlistWaiting   = "waiting"
	WaitlistNotified  = "notified"
	WaitlistFulfilled = "fulfilled"
	WaitlistCancelled = "cancelled"
	WaitlistExpired   = "expired"
)

// Approval request statuses. Pending is the only non-terminal state.
const (
	ApprovalPending   = "pending"
	ApprovalApproved  = "approved"
	ApprovalRejected  = "rejected"
	ApprovalCancelled = "cancelled"
)

// Approval request types.
const (
	ApprovalTypeLending     = "lending"
	ApprovalTypeExtension   = "extension"
	ApprovalTypeReservation = "reservation"
)

const (
	// DefaultHoldWindowHours grace period for claiming a reservation
	DefaultHoldWindowHours = 24

	// DefaultNotificationWindowHours deadline for a notified waitlist entry
	DefaultNotificationWindowHours = 24

	// DefaultSnapshotTTL time availability snapshots live in the cache
	DefaultSnapshotTTL = 5 // seconds

	// ClaimRateLimit number of claim attempts per user in the window
	ClaimRateLimit = 30

	// ClaimRateWindow window for claim rate limiting
	ClaimRateWindow = 60 // seconds

	// DefaultSweepInterval interval between maintenance sweeps
	DefaultSweepInterval = 60 // seconds

	// NotifyRatePerSecond pacing for outbound notification triggers
	NotifyRatePerSecond = 10
)
