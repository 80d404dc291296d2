package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func JobStatusKey(snapshotID uuid.UUID) string {
	return fmt.Sprintf("triad:job:%s", snapshotID)
}

func FinalResultKey(snapshotID uuid.UUID) string {
	return fmt.Sprintf("triad:final:%s", snapshotID)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("triad:ratelimit:%s", keyPrefix)
}
