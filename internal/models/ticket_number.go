package models

import (
	"math/rand"
	"regexp"
	"time"
)

const (
	ticketNumberPrefix = "INC"
	ticketSuffixChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	ticketSuffixLen    = 3
)

var ticketNumberPattern = regexp.MustCompile(`^INC\d{14}[A-Z0-9]{3}$`)

// NewTicketNumber formats INC + MMDDYYYYHHMMSS + three random [A-Z0-9]
// characters. Two tickets created in the same second can collide; the store
// rejects the duplicate and the caller retries with a fresh number.
func NewTicketNumber(now time.Time) string {
	suffix := make([]byte, ticketSuffixLen)
	for i := range suffix {
		suffix[i] = ticketSuffixChars[rand.Intn(len(ticketSuffixChars))]
	}
	return ticketNumberPrefix + now.Format("01022006150405") + string(suffix)
}

func ValidTicketNumber(s string) bool {
	return ticketNumberPattern.MatchString(s)
}
