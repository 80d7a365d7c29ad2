package regime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kirillm/rijin-bot/internal/config"
	"github.com/kirillm/rijin-bot/internal/domain"
)

func at(hour, minute int) time.Time {
	return time.Date(2025, 1, 6, hour, minute, 0, 0, domain.IST)
}

func TestSchedule_Due(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"before first check", at(9, 40), false},
		{"first check", at(10, 0), true},
		{"inside tolerance", at(10, 34), true},
		{"between checks", at(10, 15), false},
		{"last check", at(14, 30), true},
		{"after last check", at(14, 50), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSchedule(config.DefaultThresholds().Schedule)
			assert.Equal(t, tt.want, s.Due(tt.now))
		})
	}
}

func TestSchedule_MinGap(t *testing.T) {
	s := NewSchedule(config.DefaultThresholds().Schedule)

	s.MarkRun(at(10, 3))
	assert.False(t, s.Due(at(10, 5)), "same slot")
	assert.False(t, s.Due(at(10, 26)), "next slot but less than 25 minutes passed")
	assert.True(t, s.Due(at(10, 30)))

	s.Reset()
	assert.True(t, s.Due(at(10, 5)))
}
