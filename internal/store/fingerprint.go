package store

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// stintFingerprint derives a short stable digest of the observation
// identity. It rides along on the document for log correlation when two
// agents race on the same stint key.
func stintFingerprint(sessionID, bucket, driver string) string {
	h := blake3.New()
	h.Write([]byte(sessionID))
	h.Write([]byte{0})
	h.Write([]byte(bucket))
	h.Write([]byte{0})
	h.Write([]byte(driver))
	sum := h.Sum(nil)
	return hex.EncodeToString(sum)[:16]
}
