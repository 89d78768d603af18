package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

type fakeStats struct{ inFlight, subs, cached int }

func (f fakeStats) TranslationsInFlight() int { return f.inFlight }
func (f fakeStats) SubscriberCount() int      { return f.subs }
func (f fakeStats) CachedTranslations() int   { return f.cached }

func TestCollector(t *testing.T) {
	t.Run("reads_live_stats", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		reg.MustRegister(NewCollector(nil, fakeStats{inFlight: 2, subs: 3, cached: 5}))
		mfs, err := reg.Gather()
		if err != nil {
			t.Fatalf("Gather: %v", err)
		}
		got := map[string]float64{}
		for _, mf := range mfs {
			got[mf.GetName()] = mf.GetMetric()[0].GetGauge().GetValue()
		}
		if got["medscribe_translations_in_flight"] != 2 {
			t.Errorf("in flight = %v, want 2", got["medscribe_translations_in_flight"])
		}
		if got["medscribe_session_subscribers_active"] != 3 {
			t.Errorf("subscribers = %v, want 3", got["medscribe_session_subscribers_active"])
		}
		if got["medscribe_translation_cache_entries"] != 5 {
			t.Errorf("cache = %v, want 5", got["medscribe_translation_cache_entries"])
		}
		if got["medscribe_db_pool_total_conns"] != 0 {
			t.Errorf("db conns = %v, want 0 with nil pool", got["medscribe_db_pool_total_conns"])
		}
	})

	t.Run("nil_stats_reports_zero", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		reg.MustRegister(NewCollector(nil, nil))
		if _, err := reg.Gather(); err != nil {
			t.Fatalf("Gather: %v", err)
		}
	})
}

func TestOutcome(t *testing.T) {
	if Outcome(nil) != "ok" {
		t.Error("nil error should be ok")
	}
	if Outcome(errors.New("x")) != "error" {
		t.Error("non-nil error should be error")
	}
}

func TestInstrumentHandlerKeepsFlusher(t *testing.T) {
	r := chi.NewRouter()
	r.Use(InstrumentHandler)
	r.Get("/stream", func(w http.ResponseWriter, r *http.Request) {
		if _, ok := w.(http.Flusher); !ok {
			t.Error("wrapped writer lost http.Flusher")
		}
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/stream", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want 418", rec.Code)
	}
}
