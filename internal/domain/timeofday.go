package domain

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// TimeOfDay минуты от полуночи по IST
type TimeOfDay int

// NewTimeOfDay создает время дня
func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

// TimeOfDayOf время дня момента t в IST
func TimeOfDayOf(t time.Time) TimeOfDay {
	ist := t.In(IST)
	return NewTimeOfDay(ist.Hour(), ist.Minute())
}

// ParseTimeOfDay разбирает строку "HH:MM"
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("%w: time of day %q", ErrInvalidInput, s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: time of day %q", ErrInvalidInput, s)
	}
	return NewTimeOfDay(h, m), nil
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// On момент этого времени в дату day (IST)
func (t TimeOfDay) On(day time.Time) time.Time {
	d := day.In(IST)
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour(), t.Minute(), 0, 0, IST)
}

func (t *TimeOfDay) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := ParseTimeOfDay(node.Value)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t TimeOfDay) MarshalYAML() (interface{}, error) {
	return t.String(), nil
}

// SessionDate дата торговой сессии (IST, полночь)
func SessionDate(t time.Time) time.Time {
	d := t.In(IST)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, IST)
}
