package common

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GeneratePaymentRef creates the internal payment reference assigned to a
// deposit at creation. It must be globally unique: the gateway echoes it
// back in notifications and it anchors the at-most-once credit guard.
func GeneratePaymentRef() string {
	return fmt.Sprintf("DEP-%d-%s", time.Now().Unix(), shortId())
}

// GenerateRequestId creates the per-delivery id returned in webhook
// acknowledgements and used as the dedup key of last resort.
func GenerateRequestId() string {
	return uuid.NewString()
}

func shortId() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}
