package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	PeriodsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "periods_total", Help: "Closed periods handed to the evaluator, by outcome"},
		[]string{"outcome"},
	)
	EntriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "entries_total", Help: "Bracketed entries attempted, by direction and result"},
		[]string{"direction", "result"},
	)
	BracketsRetired = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "brackets_retired_total", Help: "Bracket pairs retired by a protective fill"},
	)
	DuplicateFills = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "duplicate_fills_total", Help: "Fill notifications for already retired pairs"},
	)
	CancelFailures = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "sibling_cancel_failures_total", Help: "Sibling cancel requests the gateway rejected"},
	)
	OpenBrackets = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "open_brackets", Help: "Bracket pairs with both legs working"},
	)
)

func init() {
	prometheus.MustRegister(PeriodsTotal, EntriesTotal, BracketsRetired, DuplicateFills, CancelFailures, OpenBrackets)
}

// Serve exposes /metrics on addr. Listen failures are logged; the process
// keeps running without metrics.
func Serve(addr string, log zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("metrics server stopped")
		}
	}()
	return srv
}
