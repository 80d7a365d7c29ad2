// Package domaintest содержит конструкторы баров для тестов
package domaintest

import (
	"time"

	"github.com/kirillm/rijin-bot/internal/domain"
)

// SessionStart 09:15 IST указанной даты
func SessionStart(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 9, 15, 0, 0, domain.IST)
}

// Builder собирает последовательность 5-минутных баров
type Builder struct {
	next     time.Time
	interval time.Duration
	bars     []domain.Bar
}

// NewBuilder начинает ряд с момента start
func NewBuilder(start time.Time) *Builder {
	return &Builder{next: start, interval: 5 * time.Minute}
}

// OHLC добавляет бар
func (b *Builder) OHLC(open, high, low, close float64) *Builder {
	b.bars = append(b.bars, domain.Bar{
		Time:  b.next,
		Open:  open,
		High:  high,
		Low:   low,
		Close: close,
	})
	b.next = b.next.Add(b.interval)
	return b
}

// Flat добавляет n баров, колеблющихся вокруг price с диапазоном width
func (b *Builder) Flat(n int, price, width float64) *Builder {
	for i := 0; i < n; i++ {
		open, close := price-width/4, price+width/4
		if i%2 == 1 {
			open, close = close, open
		}
		b.OHLC(open, price+width/2, price-width/2, close)
	}
	return b
}

// Trend добавляет n баров с шагом step и диапазоном width
func (b *Builder) Trend(n int, start, step, width float64) *Builder {
	price := start
	for i := 0; i < n; i++ {
		open := price
		close := price + step
		high, low := open, close
		if close > open {
			high, low = close, open
		}
		b.OHLC(open, high+width/4, low-width/4, close)
		price = close
	}
	return b
}

// Last последний добавленный бар
func (b *Builder) Last() domain.Bar {
	return b.bars[len(b.bars)-1]
}

// Next время следующего бара
func (b *Builder) Next() time.Time {
	return b.next
}

// Bars копия собранного ряда
func (b *Builder) Bars() []domain.Bar {
	out := make([]domain.Bar, len(b.bars))
	copy(out, b.bars)
	return out
}
