package verify

import (
	"fmt"
	"strings"
	"time"
)

// DecodePayload splits a scanned QR/card payload of the form
// "<studentID>|<YYYY-MM-DD>" into its parts. The service date travels
// with the payload so a stale code printed for a different day can be
// rejected before it reaches the ledger.
func DecodePayload(payload string) (token, date string, err error) {
	payload = strings.TrimSpace(payload)
	i := strings.IndexByte(payload, '|')
	if i <= 0 || i == len(payload)-1 {
		return "", "", fmt.Errorf("malformed payload %q", payload)
	}
	token = strings.TrimSpace(payload[:i])
	date = strings.TrimSpace(payload[i+1:])
	if token == "" {
		return "", "", fmt.Errorf("malformed payload %q: empty student id", payload)
	}
	if _, perr := time.Parse(DateLayout, date); perr != nil {
		return "", "", fmt.Errorf("malformed payload %q: bad service date: %v", payload, perr)
	}
	return token, date, nil
}
