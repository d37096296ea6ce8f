package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Clock is a wall-clock time of day in minutes since midnight.
type Clock int

// EndOfDay is the latest value a same-day interval may end at.
const EndOfDay Clock = 24 * 60

// ParseClock accepts "HH:MM" and "HH:MM:SS" (seconds are ignored).
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time %q: expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 24 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	c := Clock(h*60 + m)
	if c > EndOfDay {
		return 0, fmt.Errorf("time %q is past end of day", s)
	}
	return c, nil
}

// MustClock is ParseClock for constants and tests.
func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Add returns the clock shifted by the given number of minutes.
func (c Clock) Add(minutes int) Clock {
	return c + Clock(minutes)
}

func (c Clock) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Clock) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// UnmarshalYAML lets opening hours be written as "09:00" in config files.
func (c *Clock) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Value stores the clock as "HH:MM" text so that lexical order matches time order.
func (c Clock) Value() (driver.Value, error) {
	return c.String(), nil
}

func (c *Clock) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		parsed, err := ParseClock(v)
		if err != nil {
			return err
		}
		*c = parsed
	case []byte:
		parsed, err := ParseClock(string(v))
		if err != nil {
			return err
		}
		*c = parsed
	case int64:
		*c = Clock(v)
	default:
		return fmt.Errorf("cannot scan %T into Clock", src)
	}
	return nil
}

// Slot is a half-open [Start, End) interval on one day.
type Slot struct {
	Start Clock `json:"start_time"`
	End   Clock `json:"end_time"`
}

// Overlaps reports whether two half-open intervals share any minute.
// Back-to-back slots (one ends exactly when the other starts) do not overlap.
func (s Slot) Overlaps(other Slot) bool {
	return s.Start < other.End && other.Start < s.End
}
