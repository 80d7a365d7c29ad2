package breakers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kirillm/rijin-bot/internal/config"
	"github.com/kirillm/rijin-bot/internal/domain"
)

// LossRecord стоп-лосс, учитываемый тормозом корреляции
type LossRecord struct {
	At        time.Time          `json:"at"`
	Direction domain.Direction   `json:"direction"`
	Regime    domain.RegimeLabel `json:"regime"`
}

// Store общее между инструментами состояние тормоза корреляции
type Store interface {
	// AppendLoss добавляет стоп и возвращает историю инструмента, от старых к новым
	AppendLoss(ctx context.Context, instrument string, rec LossRecord, keep int) ([]LossRecord, error)
	Block(ctx context.Context, instrument string, until, now time.Time) error
	BlockedUntil(ctx context.Context, instrument string) (time.Time, bool, error)
	ClearBlock(ctx context.Context, instrument string) error
}

// CorrelationBrake блокирует коррелированные инструменты после серии одинаковых стопов
type CorrelationBrake struct {
	cfg    config.CorrelationThresholds
	store  Store
	groups [][]string
}

// NewCorrelationBrake создает тормоз корреляции над хранилищем
func NewCorrelationBrake(cfg config.CorrelationThresholds, store Store, groups [][]string) *CorrelationBrake {
	return &CorrelationBrake{cfg: cfg, store: store, groups: groups}
}

// Peers инструменты, коррелированные с данным
func (c *CorrelationBrake) Peers(instrument string) []string {
	var peers []string
	seen := map[string]bool{instrument: true}
	for _, group := range c.groups {
		member := false
		for _, name := range group {
			if name == instrument {
				member = true
				break
			}
		}
		if !member {
			continue
		}
		for _, name := range group {
			if !seen[name] {
				seen[name] = true
				peers = append(peers, name)
			}
		}
	}
	return peers
}

// RegisterStopLoss записывает стоп и блокирует коррелированные инструменты при совпадении
// направления и типа дня; возвращает список заблокированных и причину
func (c *CorrelationBrake) RegisterStopLoss(ctx context.Context, instrument string, rec LossRecord) ([]string, string, error) {
	history, err := c.store.AppendLoss(ctx, instrument, rec, c.cfg.HistorySize)
	if err != nil {
		return nil, "", fmt.Errorf("append loss for %s: %w", instrument, err)
	}

	var recent []LossRecord
	for _, r := range history {
		if d := rec.At.Sub(r.At); d >= 0 && d <= c.cfg.Window {
			recent = append(recent, r)
		}
	}
	if len(recent) < c.cfg.SLCountTrigger {
		return nil, "", nil
	}

	last := recent[len(recent)-c.cfg.SLCountTrigger:]
	for _, r := range last[1:] {
		if r.Direction != last[0].Direction || r.Regime != last[0].Regime {
			return nil, "", nil
		}
	}

	peers := c.Peers(instrument)
	until := rec.At.Add(c.cfg.BlockDuration)
	for _, peer := range peers {
		if err := c.store.Block(ctx, peer, until, rec.At); err != nil {
			return nil, "", fmt.Errorf("block %s: %w", peer, err)
		}
	}
	if len(peers) == 0 {
		return nil, "", nil
	}

	reason := fmt.Sprintf("%d SLs on %s within %dmin (Same direction & day type)",
		len(last), instrument, int(c.cfg.Window.Minutes()))
	return peers, reason, nil
}

// Check проверяет блокировку инструмента; истекшая блокировка снимается при проверке,
// cleared=true когда снятие удалось
func (c *CorrelationBrake) Check(ctx context.Context, instrument string, now time.Time) (verdict domain.GateVerdict, cleared bool) {
	until, ok, err := c.store.BlockedUntil(ctx, instrument)
	if err != nil {
		return domain.AllowFailOpen(domain.GateCorrelation,
			fmt.Sprintf("Correlation check skipped (store unavailable: %v)", err)), false
	}
	if !ok {
		return domain.Allow(), false
	}

	if now.Before(until) {
		remaining := until.Sub(now).Minutes()
		return domain.Reject(domain.GateCorrelation,
			fmt.Sprintf("Correlation brake active (%.0f min remaining)", remaining)), false
	}

	if err := c.store.ClearBlock(ctx, instrument); err != nil {
		// блокировка истекла, вход разрешен; снятие повторится на следующей проверке
		return domain.AllowFailOpen(domain.GateCorrelation,
			fmt.Sprintf("Correlation block expired but not cleared (store unavailable: %v)", err)), false
	}
	return domain.Allow(), true
}

// MemoryStore хранилище тормоза корреляции в памяти процесса
type MemoryStore struct {
	mu      sync.RWMutex
	history map[string][]LossRecord
	blocked map[string]time.Time
}

// NewMemoryStore создает хранилище в памяти
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		history: make(map[string][]LossRecord),
		blocked: make(map[string]time.Time),
	}
}

func (s *MemoryStore) AppendLoss(_ context.Context, instrument string, rec LossRecord, keep int) ([]LossRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := append(s.history[instrument], rec)
	if keep > 0 && len(h) > keep {
		h = h[len(h)-keep:]
	}
	s.history[instrument] = h

	out := make([]LossRecord, len(h))
	copy(out, h)
	return out, nil
}

func (s *MemoryStore) Block(_ context.Context, instrument string, until, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if until.After(s.blocked[instrument]) {
		s.blocked[instrument] = until
	}
	return nil
}

func (s *MemoryStore) BlockedUntil(_ context.Context, instrument string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	until, ok := s.blocked[instrument]
	return until, ok, nil
}

func (s *MemoryStore) ClearBlock(_ context.Context, instrument string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.blocked, instrument)
	return nil
}
