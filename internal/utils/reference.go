package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// NewBookingReference returns a human readable booking reference of the form
// BK-XXXXXXXX-NNNNNN: eight upper-case hex characters drawn from crypto/rand
// followed by the last six digits of the millisecond clock.  The database
// enforces uniqueness; the random part keeps collisions negligible.
func NewBookingReference() (string, error) {
	return bookingReferenceAt(time.Now())
}

func bookingReferenceAt(now time.Time) (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return fmt.Sprintf("BK-%s-%06d", strings.ToUpper(hex.EncodeToString(buf)), now.UnixMilli()%1_000_000), nil
}
