package device

import (
	"bytes"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// sigBase is the Bluetooth SIG base UUID 00000000-0000-1000-8000-00805f9b34fb
var sigBase = uuid.MustParse("00000000-0000-1000-8000-00805f9b34fb")

// NormalizeUUID converts a service or attribute identifier to its canonical
// lookup form: lowercase, no dashes, braces or 0x prefix. A 128-bit identifier built
// on the Bluetooth SIG base with a 16-bit alias (0000xxxx-0000-1000-8000-00805f9b34fb)
// is reduced to its four-digit short form.
func NormalizeUUID(id string) string {
	s := strings.ToLower(strings.TrimSpace(id))
	s = strings.TrimPrefix(s, "0x")
	s = strings.Trim(s, "{}")
	s = strings.ReplaceAll(s, "-", "")

	if len(s) != 32 {
		return s
	}

	u, err := uuid.Parse(s)
	if err != nil {
		return s
	}
	if u[0] == 0 && u[1] == 0 && bytes.Equal(u[4:], sigBase[4:]) {
		return hex.EncodeToString(u[2:4])
	}
	return s
}

// EqualUUID reports whether two identifiers name the same service or attribute
func EqualUUID(a, b string) bool {
	return NormalizeUUID(a) == NormalizeUUID(b)
}

// ShortenUUID returns a truncated version of a UUID for display purposes.
// Returns the first eight characters for long UUIDs and short UUIDs by themselves.
func ShortenUUID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
