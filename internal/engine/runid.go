package engine

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewRunID returns a run id of the form batch_YYYYMMDD_HHMMSS_<8 hex>.
func NewRunID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return "batch_" + now.Format("20060102_150405") + "_" + suffix
}
