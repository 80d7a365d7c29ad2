package regime

import (
	"time"

	"github.com/kirillm/rijin-bot/internal/config"
	"github.com/kirillm/rijin-bot/internal/domain"
)

// Schedule расписание проверок типа дня
type Schedule struct {
	cfg  config.ScheduleThresholds
	last time.Time
}

// NewSchedule создает расписание проверок
func NewSchedule(cfg config.ScheduleThresholds) *Schedule {
	return &Schedule{cfg: cfg}
}

// Due наступило ли время очередной проверки
func (s *Schedule) Due(now time.Time) bool {
	if !s.last.IsZero() && now.Sub(s.last) < s.cfg.MinGap {
		return false
	}

	step := int(s.cfg.Every / time.Minute)
	if step <= 0 {
		return false
	}
	for check := s.cfg.First; check <= s.cfg.Last; check += domain.TimeOfDay(step) {
		diff := now.Sub(check.On(now))
		if diff < 0 {
			diff = -diff
		}
		if diff <= s.cfg.Tolerance {
			return true
		}
	}
	return false
}

// MarkRun фиксирует выполненную проверку
func (s *Schedule) MarkRun(now time.Time) {
	s.last = now
}

// LastRun время последней проверки
func (s *Schedule) LastRun() time.Time {
	return s.last
}

// Reset сбрасывает расписание на границе сессии
func (s *Schedule) Reset() {
	s.last = time.Time{}
}
