package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenerateID generates a new unique record ID
func GenerateID() string {
	return uuid.New().String()
}

// GetCurrentTime returns the current time in UTC
func GetCurrentTime() time.Time {
	return time.Now().UTC()
}

// NewOrderNumber builds the customer-facing order number NZO-<year>-<6 digits>.
// The digits are the last six of the millisecond timestamp, so two orders created
// in the same millisecond (or 1000s apart to the ms) collide.
func NewOrderNumber(now time.Time) string {
	return fmt.Sprintf("NZO-%d-%06d", now.Year(), now.UnixMilli()%1_000_000)
}
