package idempotency

import "time"

// Status values for idempotency entries
const (
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
	StatusFailed     = "FAILED"
)

// IdempotencyRecord is the shape persisted in the idempotency DynamoDB table.
type IdempotencyRecord struct {
	IdempotencyKey string    `dynamodbav:"idempotency_key"` // PK
	Scope          string    `dynamodbav:"scope"`           // confirm | pay
	Status         string    `dynamodbav:"status"`
	BookingID      string    `dynamodbav:"booking_id,omitempty"`
	ResponseBody   string    `dynamodbav:"response_body,omitempty"`
	ResponseStatus int       `dynamodbav:"response_status,omitempty"`
	CreatedAt      time.Time `dynamodbav:"created_at"`
	UpdatedAt      time.Time `dynamodbav:"updated_at"`
	ExpiresAt      int64     `dynamodbav:"expires_at"` // TTL epoch seconds
	Note           string    `dynamodbav:"note,omitempty"`
}

// Scopes keep a key reused across endpoints from colliding.
const (
	ScopeConfirm = "confirm"
	ScopePay     = "pay"
)

// NewRecord builds an IN_PROGRESS record for key. Callers writing the record
// inside their own transaction use this to stay in the table's shape.
func NewRecord(scope, key, bookingID string, now time.Time, ttl time.Duration) IdempotencyRecord {
	return IdempotencyRecord{
		IdempotencyKey: ScopedKey(scope, key),
		Scope:          scope,
		Status:         StatusInProgress,
		BookingID:      bookingID,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(ttl).Unix(),
	}
}

func ScopedKey(scope, key string) string {
	return scope + "#" + key
}
