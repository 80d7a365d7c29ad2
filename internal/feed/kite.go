package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kirillm/rijin-bot/internal/config"
	"github.com/kirillm/rijin-bot/internal/domain"
)

const (
	kiteTimeLayout   = "2006-01-02 15:04:05"
	kiteCandleLayout = "2006-01-02T15:04:05-0700"
)

// Feed источник закрытых баров
type Feed interface {
	FetchBars(ctx context.Context, instrument string, from, to time.Time, interval string) ([]domain.Bar, error)
}

// KiteClient клиент исторических свечей Kite Connect
type KiteClient struct {
	apiKey      string
	accessToken string
	baseURL     string
	tokens      map[string]string
	client      *http.Client
}

type historicalResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	ErrorType string `json:"error_type"`
	Data      struct {
		Candles [][]json.RawMessage `json:"candles"`
	} `json:"data"`
}

// StatusError ответ Kite с кодом отличным от 200
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("kite API error %d: %s", e.Code, e.Message)
}

// NewKiteClient создает клиент Kite
func NewKiteClient(cfg config.KiteConfig) *KiteClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &KiteClient{
		apiKey:      cfg.APIKey,
		accessToken: cfg.AccessToken,
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		tokens:      cfg.InstrumentTokens,
		client:      &http.Client{Timeout: timeout},
	}
}

// FetchBars загружает свечи инструмента за интервал [from, to]
func (k *KiteClient) FetchBars(ctx context.Context, instrument string, from, to time.Time, interval string) ([]domain.Bar, error) {
	token, ok := k.tokens[instrument]
	if !ok {
		return nil, fmt.Errorf("%w: no instrument token for %s", domain.ErrInvalidInput, instrument)
	}

	q := url.Values{}
	q.Set("from", from.In(domain.IST).Format(kiteTimeLayout))
	q.Set("to", to.In(domain.IST).Format(kiteTimeLayout))
	endpoint := fmt.Sprintf("%s/instruments/historical/%s/%s?%s", k.baseURL, token, interval, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Kite-Version", "3")
	req.Header.Set("Authorization", fmt.Sprintf("token %s:%s", k.apiKey, k.accessToken))

	resp, err := k.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var hr historicalResponse
	if err := json.Unmarshal(body, &hr); err != nil && resp.StatusCode == http.StatusOK {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if resp.StatusCode != http.StatusOK || hr.Status != "success" {
		msg := hr.Message
		if msg == "" {
			msg = truncate(string(body), 200)
		}
		return nil, &StatusError{Code: resp.StatusCode, Message: msg}
	}

	bars := make([]domain.Bar, 0, len(hr.Data.Candles))
	for i, c := range hr.Data.Candles {
		bar, err := parseCandle(c)
		if err != nil {
			return nil, fmt.Errorf("%w: candle %d: %v", domain.ErrMalformedBars, i, err)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

// parseCandle [timestamp, open, high, low, close, volume]
func parseCandle(c []json.RawMessage) (domain.Bar, error) {
	if len(c) < 5 {
		return domain.Bar{}, fmt.Errorf("expected at least 5 fields, got %d", len(c))
	}

	var ts string
	if err := json.Unmarshal(c[0], &ts); err != nil {
		return domain.Bar{}, fmt.Errorf("timestamp: %w", err)
	}
	t, err := time.Parse(kiteCandleLayout, ts)
	if err != nil {
		return domain.Bar{}, fmt.Errorf("timestamp %q: %w", ts, err)
	}

	var v [5]float64
	for i := 1; i < len(c) && i <= 5; i++ {
		if err := json.Unmarshal(c[i], &v[i-1]); err != nil {
			return domain.Bar{}, fmt.Errorf("field %d: %w", i, err)
		}
	}

	return domain.Bar{
		Time:   t.In(domain.IST),
		Open:   v[0],
		High:   v[1],
		Low:    v[2],
		Close:  v[3],
		Volume: v[4],
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Completed отбрасывает незакрытый последний бар
func Completed(bars []domain.Bar, now time.Time, interval time.Duration) []domain.Bar {
	n := len(bars)
	for n > 0 && bars[n-1].Time.Add(interval).After(now) {
		n--
	}
	return bars[:n]
}

// IntervalDuration длительность бара по имени интервала Kite
func IntervalDuration(interval string) (time.Duration, error) {
	switch interval {
	case "minute":
		return time.Minute, nil
	case "day":
		return 24 * time.Hour, nil
	}
	var n int
	if _, err := fmt.Sscanf(interval, "%dminute", &n); err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: unsupported interval %q", domain.ErrInvalidInput, interval)
	}
	return time.Duration(n) * time.Minute, nil
}
