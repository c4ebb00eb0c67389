package store

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	devicePrefix       = "device_"
	deviceSuffixLength = 9
)

// NewDeviceID returns device_<unix-millis>_<random suffix>.
func NewDeviceID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:deviceSuffixLength]
	return devicePrefix + strconv.FormatInt(now.UnixMilli(), 10) + "_" + suffix
}
