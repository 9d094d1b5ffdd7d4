package utils

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"
)

// ParseInt converts string to int with default value
func ParseInt(value string, defaultValue int) int {
	if value == "" {
		return defaultValue
	}

	result, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	if result < 1 {
		return defaultValue
	}

	return result
}

// ParseBool reads a query flag, anything unparsable is false.
func ParseBool(value string) bool {
	b, err := strconv.ParseBool(value)
	return err == nil && b
}

// GenerateBookingRef creates a booking reference used as the idempotency key of direct bookings.
// Format: BOOK-YYYYMMDD-HHMMSS-RANDOM
func GenerateBookingRef(now time.Time) string {
	datePart := now.Format("20060102")
	timePart := now.Format("150405")
	randomPart := fmt.Sprintf("%06d", rand.IntN(1000000))

	return fmt.Sprintf("BOOK-%s-%s-%s", datePart, timePart, randomPart)
}
