package feed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillm/rijin-bot/internal/clock"
	"github.com/kirillm/rijin-bot/internal/config"
	"github.com/kirillm/rijin-bot/internal/domain"
	"github.com/kirillm/rijin-bot/internal/domain/domaintest"
)

const candlesJSON = `{
  "status": "success",
  "data": {
    "candles": [
      ["2025-01-08T09:15:00+0530", 22000, 22010, 21990, 22005, 0],
      ["2025-01-08T09:20:00+0530", 22005, 22012, 22001, 22011, 0]
    ]
  }
}`

func newKite(url string) *KiteClient {
	return NewKiteClient(config.KiteConfig{
		APIKey:           "key",
		AccessToken:      "secret",
		BaseURL:          url + "/",
		InstrumentTokens: map[string]string{domain.InstrumentNifty: "256265"},
		Timeout:          time.Second,
	})
}

func TestKiteClient_FetchBars(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/instruments/historical/256265/5minute", r.URL.Path)
		assert.Equal(t, "token key:secret", r.Header.Get("Authorization"))
		assert.Equal(t, "3", r.Header.Get("X-Kite-Version"))
		assert.Equal(t, "2025-01-08 09:15:00", r.URL.Query().Get("from"))
		assert.Equal(t, "2025-01-08 09:25:00", r.URL.Query().Get("to"))
		_, _ = w.Write([]byte(candlesJSON))
	}))
	defer srv.Close()

	from := domaintest.SessionStart(2025, 1, 8)
	bars, err := newKite(srv.URL).FetchBars(context.Background(), domain.InstrumentNifty,
		from, from.Add(10*time.Minute), domain.Interval5Minute)

	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.True(t, bars[0].Time.Equal(from))
	assert.Equal(t, 22010.0, bars[0].High)
	assert.Equal(t, 22011.0, bars[1].Close)
}

func TestKiteClient_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
		code    int
	}{
		{
			name:   "token expired",
			status: http.StatusForbidden,
			body:   `{"status":"error","message":"Incorrect api_key or access_token.","error_type":"TokenException"}`,
			code:   http.StatusForbidden,
		},
		{
			name:   "rate limited",
			status: http.StatusTooManyRequests,
			body:   `Too many requests`,
			code:   http.StatusTooManyRequests,
		},
		{
			name:    "malformed candle",
			status:  http.StatusOK,
			body:    `{"status":"success","data":{"candles":[["yesterday",1,2,3,4,5]]}}`,
			wantErr: domain.ErrMalformedBars,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newKite(srv.URL).FetchBars(context.Background(), domain.InstrumentNifty,
				time.Now(), time.Now(), domain.Interval5Minute)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			var se *StatusError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.code, se.Code)
		})
	}

	_, err := newKite("http://unused").FetchBars(context.Background(), "BANKNIFTY", time.Now(), time.Now(), "5minute")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

type stubFeed struct {
	calls atomic.Int32
	fn    func(call int32) ([]domain.Bar, error)
}

func (s *stubFeed) FetchBars(context.Context, string, time.Time, time.Time, string) ([]domain.Bar, error) {
	return s.fn(s.calls.Add(1))
}

type recordingObserver struct {
	errors  int
	latency int
}

func (o *recordingObserver) FeedError(string)                     { o.errors++ }
func (o *recordingObserver) ObserveLatency(string, time.Duration) { o.latency++ }

func TestResilient_RetriesTransientErrors(t *testing.T) {
	bars := domaintest.NewBuilder(domaintest.SessionStart(2025, 1, 8)).Flat(3, 22000, 10).Bars()
	inner := &stubFeed{fn: func(call int32) ([]domain.Bar, error) {
		if call < 3 {
			return nil, &StatusError{Code: http.StatusBadGateway, Message: "bad gateway"}
		}
		return bars, nil
	}}
	obs := &recordingObserver{}
	r := NewResilient(inner, ResilientOptions{
		RequestsPerSec: 1000,
		Backoff:        clock.Backoff{Attempts: 3},
		Observer:       obs,
	})

	got, err := r.FetchBars(context.Background(), domain.InstrumentNifty, time.Time{}, time.Now(), "5minute")
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, int32(3), inner.calls.Load())
	assert.Equal(t, 3, obs.latency)
	assert.Equal(t, 0, obs.errors)
}

func TestResilient_ExhaustedAndOpen(t *testing.T) {
	inner := &stubFeed{fn: func(int32) ([]domain.Bar, error) {
		return nil, errors.New("connection refused")
	}}
	obs := &recordingObserver{}
	r := NewResilient(inner, ResilientOptions{
		RequestsPerSec: 1000,
		Backoff:        clock.Backoff{Attempts: 3},
		Observer:       obs,
	})

	_, err := r.FetchBars(context.Background(), domain.InstrumentNifty, time.Time{}, time.Now(), "5minute")
	assert.ErrorIs(t, err, domain.ErrFeedUnavailable)
	assert.Equal(t, gobreaker.StateOpen, r.State())

	_, err = r.FetchBars(context.Background(), domain.InstrumentNifty, time.Time{}, time.Now(), "5minute")
	assert.ErrorIs(t, err, domain.ErrFeedUnavailable)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(3), inner.calls.Load())
	assert.Equal(t, 2, obs.errors)
}

func TestResilient_PermanentErrorNotRetried(t *testing.T) {
	inner := &stubFeed{fn: func(int32) ([]domain.Bar, error) {
		return nil, &StatusError{Code: http.StatusForbidden, Message: "TokenException"}
	}}
	r := NewResilient(inner, ResilientOptions{RequestsPerSec: 1000, Backoff: clock.Backoff{Attempts: 3}})

	_, err := r.FetchBars(context.Background(), domain.InstrumentNifty, time.Time{}, time.Now(), "5minute")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrFeedUnavailable)
	assert.Equal(t, int32(1), inner.calls.Load())
	assert.Equal(t, gobreaker.StateClosed, r.State())
}

func TestFailover(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 1, 8, 10, 0, 0, 0, domain.IST))
	bars := domaintest.NewBuilder(domaintest.SessionStart(2025, 1, 8)).Flat(3, 22000, 10).Bars()

	healthy := true
	primary := &stubFeed{fn: func(int32) ([]domain.Bar, error) {
		if healthy {
			return bars, nil
		}
		return nil, domain.ErrFeedUnavailable
	}}
	f := NewFailover(primary, clk, 5*time.Minute, nil)

	got, err := f.FetchBars(context.Background(), domain.InstrumentNifty, time.Time{}, clk.Now(), "5minute")
	require.NoError(t, err)
	assert.Len(t, got, 3)

	healthy = false
	clk.Advance(time.Minute)
	got, err = f.FetchBars(context.Background(), domain.InstrumentNifty, time.Time{}, clk.Now(), "5minute")
	require.NoError(t, err)
	assert.Len(t, got, 3)

	clk.Advance(5 * time.Minute)
	_, err = f.FetchBars(context.Background(), domain.InstrumentNifty, time.Time{}, clk.Now(), "5minute")
	assert.ErrorIs(t, err, domain.ErrFeedUnavailable)

	f.AddFallback(&stubFeed{fn: func(int32) ([]domain.Bar, error) { return bars[:1], nil }})
	got, err = f.FetchBars(context.Background(), domain.InstrumentNifty, time.Time{}, clk.Now(), "5minute")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestReplay(t *testing.T) {
	start := domaintest.SessionStart(2025, 1, 8)
	nifty := domaintest.NewBuilder(start).Flat(3, 22000, 10).Bars()
	sensex := domaintest.NewBuilder(start.Add(5*time.Minute)).Flat(3, 72000, 30).Bars()

	data := `{"interval":"5minute","instruments":{"NIFTY":` + mustJSON(t, nifty) + `,"SENSEX":` + mustJSON(t, sensex) + `}}`
	path := filepath.Join(t.TempDir(), "bars.json")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	r, err := LoadReplay(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"NIFTY", "SENSEX"}, r.Instruments())

	steps := r.Steps()
	require.Len(t, steps, 4)
	assert.True(t, steps[0].Equal(start.Add(5*time.Minute)))
	assert.True(t, steps[3].Equal(start.Add(20*time.Minute)))

	// бар 09:25 еще не закрыт в 09:27
	got, err := r.FetchBars(context.Background(), domain.InstrumentNifty, start, start.Add(12*time.Minute), "5minute")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = r.FetchBars(context.Background(), "BANKNIFTY", start, start, "5minute")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCompletedAndInterval(t *testing.T) {
	start := domaintest.SessionStart(2025, 1, 8)
	bars := domaintest.NewBuilder(start).Flat(3, 22000, 10).Bars()

	assert.Len(t, Completed(bars, start.Add(14*time.Minute), 5*time.Minute), 2)
	assert.Len(t, Completed(bars, start.Add(15*time.Minute), 5*time.Minute), 3)

	d, err := IntervalDuration("15minute")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, d)

	_, err = IntervalDuration("week")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func mustJSON(t *testing.T, v interface{}) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}
