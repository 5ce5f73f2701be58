package timeapi

import (
	"encoding/json"
	"time"
)

// Time controls the format of dates in the API: RFC3339 with nanoseconds, always in UTC
type Time time.Time

// New converts t
func New(t time.Time) Time {
	return Time(t)
}

// Ptr converts t, keeping nil as nil
func Ptr(t *time.Time) *Time {
	if t == nil {
		return nil
	}
	v := Time(*t)
	return &v
}

// UnmarshalJSON implements the json.Unmarshalled interface
// This IS a pointer receiver, and it is done on purpose.
func (t *Time) UnmarshalJSON(bytes []byte) error {
	var s string
	if err := json.Unmarshal(bytes, &s); err != nil {
		return err
	}
	got, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return err
	}
	*t = Time(got)
	return nil
}

// MarshalJSON implements the json.Marshaller interface
// This IS NOT a pointer receiver, and it is done on purpose.
func (t Time) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// String returns the date in RFC3339 format, expressed in UTC location
func (t Time) String() string {
	return time.Time(t).UTC().Format(time.RFC3339Nano)
}

// Time returns the underlying time
func (t Time) Time() time.Time {
	return time.Time(t)
}
