package fota

import (
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"
)

// reversed returns a reversed copy of b.
func reversed(b []byte) []byte {
	res := make([]byte, len(b))
	for i := range b {
		res[len(b)-1-i] = b[i]
	}
	return res
}

// ParseUUID converts a textual UUID into the 16 byte little-endian
// representation used by the firmware (the integer value of the UUID stored
// least significant byte first).
func ParseUUID(s string) (uuid [16]byte, err error) {
	digits := strings.Replace(s, "-", "", -1)
	if len(digits)%2 != 0 {
		digits = "0" + digits
	}
	raw, err := hex.DecodeString(digits)
	if err != nil {
		return uuid, errors.Wrapf(err, "invalid UUID %q", s)
	}
	if len(raw) > 16 {
		return uuid, errors.Errorf("invalid UUID %q: more than 16 bytes", s)
	}
	// shorter values are zero extended, like an integer conversion
	for i, b := range reversed(raw) {
		uuid[i] = b
	}
	return uuid, nil
}

// FormatUUID is the inverse of ParseUUID.
func FormatUUID(uuid [16]byte) string {
	h := hex.EncodeToString(reversed(uuid[:]))
	return h[0:8] + "-" + h[8:12] + "-" + h[12:16] + "-" + h[16:20] + "-" + h[20:32]
}

// Pad appends 0xFF up to the next multiple of align.
func Pad(img []byte, align int) []byte {
	if rem := len(img) % align; rem != 0 {
		img = append(img, bytesOf(0xFF, align-rem)...)
	}
	return img
}

func bytesOf(b byte, n int) []byte {
	res := make([]byte, n)
	for i := range res {
		res[i] = b
	}
	return res
}
