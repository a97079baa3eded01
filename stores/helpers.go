package stores

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/oarkflow/date"
	"github.com/oarkflow/permgate"
)

// parseFlexibleTime accepts the RFC 3339 values written by this package and
// whatever other layout the driver hands back.
func parseFlexibleTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return date.Parse(s)
}

func scanTime(raw any) time.Time {
	switch v := raw.(type) {
	case time.Time:
		return v
	case string:
		if t, err := parseFlexibleTime(v); err == nil {
			return t
		}
	case []byte:
		if t, err := parseFlexibleTime(string(v)); err == nil {
			return t
		}
	}
	return time.Time{}
}

// timeLayout is fixed width so stored values sort and compare as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func encodeUser(u *permgate.User) (string, error) {
	if u == nil {
		return "", nil
	}
	b, err := json.Marshal(u)
	if err != nil {
		return "", fmt.Errorf("encode user: %w", err)
	}
	return string(b), nil
}

// decodeUser tolerates a corrupt cached user: the session keeps its token
// and simply loses the fallback copy.
func decodeUser(raw string) *permgate.User {
	if raw == "" {
		return nil
	}
	u := &permgate.User{}
	if err := json.Unmarshal([]byte(raw), u); err != nil {
		return nil
	}
	return u
}
