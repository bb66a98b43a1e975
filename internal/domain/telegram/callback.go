package telegram

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const paidPrefix = "paid_"

// PaidCallbackData encodes an inline "paid" button for one payment date.
// Telegram limits callback data to 64 bytes; this stays well below.
func PaidCallbackData(id uuid.UUID, paymentDate time.Time) string {
	return fmt.Sprintf("%s%s_%d", paidPrefix, id, paymentDate.Unix())
}

// ParsePaidCallback is the inverse of PaidCallbackData.
func ParsePaidCallback(data string) (uuid.UUID, time.Time, error) {
	rest, ok := strings.CutPrefix(data, paidPrefix)
	if !ok {
		return uuid.Nil, time.Time{}, fmt.Errorf("not a paid callback: %q", data)
	}
	idPart, unixPart, ok := strings.Cut(rest, "_")
	if !ok {
		return uuid.Nil, time.Time{}, fmt.Errorf("invalid paid callback format: %q", data)
	}
	id, err := uuid.Parse(idPart)
	if err != nil {
		return uuid.Nil, time.Time{}, fmt.Errorf("invalid subscription id in callback: %w", err)
	}
	sec, err := strconv.ParseInt(unixPart, 10, 64)
	if err != nil {
		return uuid.Nil, time.Time{}, fmt.Errorf("invalid payment date in callback: %w", err)
	}
	return id, time.Unix(sec, 0).UTC(), nil
}

// IsPaidCallback reports whether data came from a paid button.
func IsPaidCallback(data string) bool {
	return strings.HasPrefix(data, paidPrefix)
}
