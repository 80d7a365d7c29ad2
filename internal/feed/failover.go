package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kirillm/rijin-bot/internal/clock"
	"github.com/kirillm/rijin-bot/internal/domain"
	"github.com/kirillm/rijin-bot/pkg/utils"
)

// Failover опрашивает запасные источники и отдает недавний кеш при их отказе
type Failover struct {
	primary   Feed
	fallbacks []Feed
	clk       clock.Clock
	maxAge    time.Duration
	logger    *utils.Logger

	mu    sync.RWMutex
	cache map[string]cachedBars
}

type cachedBars struct {
	bars []domain.Bar
	at   time.Time
}

// NewFailover создает failover над основным источником; кеш валиден maxAge
func NewFailover(primary Feed, clk clock.Clock, maxAge time.Duration, logger *utils.Logger) *Failover {
	if logger == nil {
		logger = utils.Nop()
	}
	return &Failover{
		primary: primary,
		clk:     clk,
		maxAge:  maxAge,
		logger:  logger,
		cache:   make(map[string]cachedBars),
	}
}

// AddFallback добавляет запасной источник
func (f *Failover) AddFallback(source Feed) {
	f.fallbacks = append(f.fallbacks, source)
}

// FetchBars пробует основной источник, затем запасные, затем кеш
func (f *Failover) FetchBars(ctx context.Context, instrument string, from, to time.Time, interval string) ([]domain.Bar, error) {
	key := fmt.Sprintf("%s/%s", instrument, interval)

	bars, err := f.primary.FetchBars(ctx, instrument, from, to, interval)
	if err == nil {
		f.store(key, bars)
		return bars, nil
	}
	primaryErr := err

	for i, source := range f.fallbacks {
		bars, err := source.FetchBars(ctx, instrument, from, to, interval)
		if err == nil {
			f.logger.Warn("⚠️ Using fallback feed #%d for %s", i+1, instrument)
			f.store(key, bars)
			return bars, nil
		}
	}

	f.mu.RLock()
	cached, ok := f.cache[key]
	f.mu.RUnlock()
	if ok {
		if age := f.clk.Now().Sub(cached.at); age < f.maxAge {
			f.logger.Warn("⚠️ Using cached bars for %s (age: %v)", instrument, age.Round(time.Second))
			return cached.bars, nil
		}
	}

	return nil, primaryErr
}

func (f *Failover) store(key string, bars []domain.Bar) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cache[key] = cachedBars{bars: bars, at: f.clk.Now()}
}
