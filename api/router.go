// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package api

import (
	"encoding/json"
	e "errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/envira/ieq-pipeline/internal/log"
	"github.com/envira/ieq-pipeline/internal/wallclock"
	"github.com/envira/ieq-pipeline/iso"
	"github.com/envira/ieq-pipeline/pipeline"
	"github.com/envira/ieq-pipeline/store"
	"github.com/envira/ieq-pipeline/telemetry"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type (
	// Status reports ingest health. It is satisfied by *pipeline.Pipeline.
	Status interface {
		Connected() bool
		Broker() string
		Stats() pipeline.Stats
	}

	// Live serves the live subscriber protocol. It is satisfied by *hub.Hub.
	Live interface {
		ServeWS(http.ResponseWriter, *http.Request)
		Count() int
	}

	handler struct {
		store  store.Store
		live   Live
		status Status
		opts   Options
		log    log.Logger
	}
)

const (
	// Number of recent readings a summary looks at.
	summaryReadings = 10

	defaultHours = 24

	notFound = "No data found for device"
)

// NewRouter builds the read-only HTTP surface: live updates on /ws, health,
// and history lookups against the store.
func NewRouter(
	st store.Store,
	live Live,
	status Status,
	opt ...Option,
) http.Handler {
	h := &handler{store: st, live: live, status: status}
	h.opts.Apply(opt)
	h.log = log.Wrap(h.opts.Logger).With(slog.String("module", "api"))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/ws", live.ServeWS)
	r.Get("/health", h.health)
	r.Route("/latest", func(r chi.Router) {
		r.Get("/{deviceID}", h.latest)
		r.Get("/device/{deviceID}/summary", h.summary)
	})
	r.Get("/telemetry/{deviceID}", h.history)
	return r
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := wallclock.Instance.Now()
		next.ServeHTTP(ww, r)

		h.log.Debug(r.Context(), "request served",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("elapsed", wallclock.Instance.Now().Sub(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	broker := "disconnected"
	if h.status.Connected() {
		broker = "connected"
	}
	database := "disconnected"
	if h.store != nil {
		database = "connected"
	}

	h.reply(w, r, http.StatusOK, Health{
		Status:           "healthy",
		Timestamp:        iso.DateTime(wallclock.Instance.Now()),
		MQTTBroker:       broker,
		Database:         database,
		ActiveWebsockets: h.live.Count(),
		MQTTBrokerURL:    h.status.Broker(),
		Stats:            h.status.Stats(),
	})
}

func (h *handler) latest(w http.ResponseWriter, r *http.Request) {
	rec, err := h.store.Latest(r.Context(), chi.URLParam(r, "deviceID"))
	if err != nil {
		h.fail(w, r, err, "Error fetching latest data")
		return
	}
	h.reply(w, r, http.StatusOK, newLatest(rec))
}

func (h *handler) summary(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	recs, err := h.store.Query(r.Context(), store.Query{
		DeviceID: deviceID,
		Limit:    summaryReadings,
	})
	if err == nil && len(recs) == 0 {
		err = store.ErrNotFound
	}
	if err != nil {
		h.fail(w, r, err, "Error fetching device summary")
		return
	}

	latest := recs[0]
	trends := map[string]telemetry.Trend{}
	if len(recs) > 1 {
		trends = telemetry.Trends(latest.Sensors, recs[1].Sensors)
	}

	h.reply(w, r, http.StatusOK, Summary{
		DeviceID:       deviceID,
		SiteID:         latest.SiteID,
		CurrentTime:    iso.DateTime(wallclock.Instance.Now()),
		LastUpdate:     iso.DateTime(latest.ProcessedAt),
		IEQScore:       latest.IEQScore,
		CurrentSensors: latest.Sensors,
		Trends:         trends,
		ReadingCount:   len(recs),
	})
}

func (h *handler) history(w http.ResponseWriter, r *http.Request) {
	q, hours, problem := h.parseHistory(r)
	if problem != "" {
		h.reply(w, r, http.StatusBadRequest, Problem{problem})
		return
	}

	recs, err := h.store.Query(r.Context(), q)
	if err != nil {
		h.fail(w, r, err, "Error fetching telemetry")
		return
	}

	data := make([]Reading, len(recs))
	for i, rec := range recs {
		data[i] = newReading(rec)
	}
	h.reply(w, r, http.StatusOK, History{
		DeviceID:        q.DeviceID,
		Count:           len(data),
		TimeWindowHours: hours,
		Data:            data,
	})
}

// parseHistory reads limit, hours, from and to. Explicit bounds replace the
// look-back window.
func (h *handler) parseHistory(
	r *http.Request,
) (q store.Query, hours *float64, problem string) {
	q.DeviceID = chi.URLParam(r, "deviceID")
	params := r.URL.Query()

	q.Limit = store.DefaultLimit
	if s := params.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return q, nil, "limit must be a positive integer"
		}
		q.Limit = min(n, h.opts.MaxLimit)
	}

	var err error
	if s := params.Get("from"); s != "" {
		if q.From, err = iso.ParseDateTime(s); err != nil {
			return q, nil, "from must be an ISO 8601 date-time"
		}
	}
	if s := params.Get("to"); s != "" {
		if q.To, err = iso.ParseDateTime(s); err != nil {
			return q, nil, "to must be an ISO 8601 date-time"
		}
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return q, nil, "to must not be before from"
	}
	if !q.From.IsZero() || !q.To.IsZero() {
		return q, nil, ""
	}

	window := float64(defaultHours)
	if s := params.Get("hours"); s != "" {
		window, err = strconv.ParseFloat(s, 64)
		if err != nil || window <= 0 {
			return q, nil, "hours must be a positive number"
		}
	}
	q.From = wallclock.Instance.Now().Add(
		-time.Duration(window * float64(time.Hour)),
	)
	return q, &window, ""
}

func (h *handler) fail(
	w http.ResponseWriter,
	r *http.Request,
	err error,
	detail string,
) {
	if e.Is(err, store.ErrNotFound) {
		h.reply(w, r, http.StatusNotFound, Problem{notFound})
		return
	}
	h.log.Err(r.Context(), err,
		slog.String("path", r.URL.Path),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
	h.reply(w, r, http.StatusInternalServerError, Problem{detail})
}

func (h *handler) reply(
	w http.ResponseWriter,
	r *http.Request,
	status int,
	body any,
) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Debug(r.Context(), "response write failed",
			slog.String("error", err.Error()),
		)
	}
}
