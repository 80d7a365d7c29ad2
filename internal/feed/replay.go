package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/kirillm/rijin-bot/internal/domain"
	"github.com/kirillm/rijin-bot/internal/indicators"
)

// ReplayFile формат файла для rijin replay
type ReplayFile struct {
	Interval    string                  `json:"interval"`
	Instruments map[string][]domain.Bar `json:"instruments"`
}

// Replay источник баров из записанного файла; бар отдается только после своего закрытия
type Replay struct {
	interval string
	step     time.Duration
	bars     map[string][]domain.Bar
}

// LoadReplay читает файл replay
func LoadReplay(path string) (*Replay, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read replay file: %w", err)
	}

	var f ReplayFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse replay file: %w", err)
	}
	return NewReplay(f)
}

// NewReplay проверяет ряды и создает источник
func NewReplay(f ReplayFile) (*Replay, error) {
	if f.Interval == "" {
		f.Interval = domain.Interval5Minute
	}
	step, err := IntervalDuration(f.Interval)
	if err != nil {
		return nil, err
	}
	if len(f.Instruments) == 0 {
		return nil, fmt.Errorf("%w: replay file has no instruments", domain.ErrInvalidInput)
	}

	bars := make(map[string][]domain.Bar, len(f.Instruments))
	for name, series := range f.Instruments {
		sorted := append([]domain.Bar(nil), series...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })
		if err := indicators.ValidateBars(sorted); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		bars[name] = sorted
	}

	return &Replay{interval: f.Interval, step: step, bars: bars}, nil
}

// Interval интервал баров
func (r *Replay) Interval() string {
	return r.interval
}

// Instruments инструменты файла по алфавиту
func (r *Replay) Instruments() []string {
	names := make([]string, 0, len(r.bars))
	for name := range r.bars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Steps моменты закрытия баров всех инструментов по возрастанию
func (r *Replay) Steps() []time.Time {
	seen := make(map[int64]bool)
	var steps []time.Time
	for _, series := range r.bars {
		for _, b := range series {
			t := b.Time.Add(r.step)
			if !seen[t.UnixNano()] {
				seen[t.UnixNano()] = true
				steps = append(steps, t)
			}
		}
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].Before(steps[j]) })
	return steps
}

// FetchBars бары в [from, to], закрытые к моменту to
func (r *Replay) FetchBars(_ context.Context, instrument string, from, to time.Time, _ string) ([]domain.Bar, error) {
	series, ok := r.bars[instrument]
	if !ok {
		return nil, fmt.Errorf("%w: no replay bars for %s", domain.ErrInvalidInput, instrument)
	}

	var out []domain.Bar
	for _, b := range series {
		if b.Time.Before(from) {
			continue
		}
		if b.Time.Add(r.step).After(to) {
			break
		}
		out = append(out, b)
	}
	return out, nil
}
