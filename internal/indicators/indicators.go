package indicators

import (
	"math"

	"github.com/kirillm/rijin-bot/internal/domain"
)

// EMA экспоненциальная средняя, первое значение равно первому элементу ряда
func EMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 || period <= 0 {
		return out
	}

	alpha := 2.0 / float64(period+1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = values[i]*alpha + out[i-1]*(1-alpha)
	}
	return out
}

// RSI индекс относительной силы со сглаживанием Уайлдера.
// Значения до первого полного окна равны стартовому значению; при len <= period ряд нулевой.
func RSI(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	if period <= 0 || len(closes) <= period {
		return out
	}

	var up, down float64
	for i := 1; i <= period; i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			up += d
		} else {
			down -= d
		}
	}
	up /= float64(period)
	down /= float64(period)

	seed := rsiValue(up, down)
	for i := 0; i <= period; i++ {
		out[i] = seed
	}

	for i := period + 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		var gain, loss float64
		if d > 0 {
			gain = d
		} else {
			loss = -d
		}
		up = (up*float64(period-1) + gain) / float64(period)
		down = (down*float64(period-1) + loss) / float64(period)
		out[i] = rsiValue(up, down)
	}
	return out
}

func rsiValue(up, down float64) float64 {
	if down == 0 {
		if up == 0 {
			return 50
		}
		return 100
	}
	rs := up / down
	return 100 - 100/(1+rs)
}

// TrueRange истинный диапазон, для первого бара равен high-low
func TrueRange(bars []domain.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		if i == 0 {
			out[i] = b.Range()
			continue
		}
		pc := bars[i-1].Close
		out[i] = math.Max(b.Range(), math.Max(math.Abs(b.High-pc), math.Abs(b.Low-pc)))
	}
	return out
}

// ATR экспоненциальное среднее истинного диапазона; при len < period ряд нулевой
func ATR(bars []domain.Bar, period int) []float64 {
	if len(bars) < period {
		return make([]float64, len(bars))
	}
	return EMA(TrueRange(bars), period)
}

// Slope изменение последнего значения ряда относительно значения lookback баров назад
func Slope(series []float64, lookback int) float64 {
	if lookback <= 0 || len(series) < lookback+1 {
		return 0
	}
	return series[len(series)-1] - series[len(series)-1-lookback]
}

// VWAP средневзвешенная по объему типичная цена бара.
// Для индексов без объема возвращается close последнего бара.
func VWAP(bars []domain.Bar) float64 {
	if len(bars) == 0 {
		return 0
	}

	var pv, vol float64
	for _, b := range bars {
		typical := (b.High + b.Low + b.Close) / 3
		pv += typical * b.Volume
		vol += b.Volume
	}
	if vol == 0 {
		return bars[len(bars)-1].Close
	}
	return pv / vol
}

// Closes извлекает цены закрытия
func Closes(bars []domain.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}
