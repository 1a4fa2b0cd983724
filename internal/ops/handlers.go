package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/aegis-picks/internal/breaker"
	"github.com/wonny/aegis-picks/internal/ratelimit"
	"github.com/wonny/aegis-picks/internal/scheduler"
	"github.com/wonny/aegis-picks/pkg/logger"
)

// JobStatser reports scheduler job statistics
type JobStatser interface {
	GetJobStats() map[string]scheduler.JobStats
}

// CacheClearer drops factor cache entries
type CacheClearer interface {
	ClearForDate(ctx context.Context, date time.Time) (int, error)
	Clear(ctx context.Context) (int, error)
}

// Handler serves the ops endpoints. Any dependency may be nil; its
// endpoints then answer 404.
// ⭐ SSOT: ops API 핸들러는 이 구조체에서만
type Handler struct {
	breaker *breaker.Breaker
	limiter *ratelimit.Tiered
	global  *ratelimit.Global
	jobs    JobStatser
	cache   CacheClearer
	deps    []string // 상태 조회 대상 의존성 목록
	logger  *logger.Logger
}

// HandlerOption configures a Handler
type HandlerOption func(*Handler)

// WithBreaker exposes circuit state for deps
func WithBreaker(b *breaker.Breaker, deps []string) HandlerOption {
	return func(h *Handler) {
		h.breaker = b
		h.deps = deps
	}
}

// WithLimiters exposes the tiered windows and the global window
func WithLimiters(t *ratelimit.Tiered, g *ratelimit.Global) HandlerOption {
	return func(h *Handler) {
		h.limiter = t
		h.global = g
	}
}

// WithJobs exposes scheduler stats
func WithJobs(j JobStatser) HandlerOption {
	return func(h *Handler) { h.jobs = j }
}

// WithCache allows clearing the factor cache
func WithCache(c CacheClearer) HandlerOption {
	return func(h *Handler) { h.cache = c }
}

// NewHandler creates the ops handler
func NewHandler(log *logger.Logger, opts ...HandlerOption) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	h := &Handler{logger: log.Component("ops")}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ListBreakers returns the circuit of every known dependency
// GET /ops/breakers
func (h *Handler) ListBreakers(w http.ResponseWriter, r *http.Request) {
	if h.breaker == nil {
		respondError(w, http.StatusNotFound, "breaker not configured")
		return
	}

	out := make([]breaker.Status, 0, len(h.deps))
	for _, dep := range h.deps {
		st, err := h.breaker.Status(r.Context(), dep)
		if err != nil {
			h.logger.WithError(err).WithField("dep", dep).Error("Failed to read breaker state")
			respondError(w, http.StatusServiceUnavailable, "breaker state unavailable")
			return
		}
		out = append(out, st)
	}
	respondJSON(w, http.StatusOK, out)
}

// GetBreaker returns one circuit
// GET /ops/breakers/{dep}
func (h *Handler) GetBreaker(w http.ResponseWriter, r *http.Request) {
	if h.breaker == nil {
		respondError(w, http.StatusNotFound, "breaker not configured")
		return
	}

	dep := mux.Vars(r)["dep"]
	st, err := h.breaker.Status(r.Context(), dep)
	if err != nil {
		h.logger.WithError(err).WithField("dep", dep).Error("Failed to read breaker state")
		respondError(w, http.StatusServiceUnavailable, "breaker state unavailable")
		return
	}
	respondJSON(w, http.StatusOK, st)
}

// ResetBreaker forces a circuit closed
// POST /ops/breakers/{dep}/reset
func (h *Handler) ResetBreaker(w http.ResponseWriter, r *http.Request) {
	if h.breaker == nil {
		respondError(w, http.StatusNotFound, "breaker not configured")
		return
	}

	dep := mux.Vars(r)["dep"]
	if err := h.breaker.Reset(r.Context(), dep); err != nil {
		h.logger.WithError(err).WithField("dep", dep).Error("Failed to reset breaker")
		respondError(w, http.StatusServiceUnavailable, "breaker reset failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"dependency": dep, "state": string(breaker.StateClosed)})
}

// GetLimiter returns the window of one interface
// GET /ops/limiters/{iface}
func (h *Handler) GetLimiter(w http.ResponseWriter, r *http.Request) {
	if h.limiter == nil {
		respondError(w, http.StatusNotFound, "limiter not configured")
		return
	}

	iface := mux.Vars(r)["iface"]
	st, err := h.limiter.Stats(r.Context(), iface)
	if err != nil {
		h.logger.WithError(err).WithField("iface", iface).Error("Failed to read limiter window")
		respondError(w, http.StatusServiceUnavailable, "limiter state unavailable")
		return
	}
	respondJSON(w, http.StatusOK, st)
}

// GetGlobalLimiter returns the remaining calls of the global window
// GET /ops/limiters/_global
func (h *Handler) GetGlobalLimiter(w http.ResponseWriter, r *http.Request) {
	if h.global == nil {
		respondError(w, http.StatusNotFound, "global limiter not configured")
		return
	}

	remaining, err := h.global.Remaining(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to read global window")
		respondError(w, http.StatusServiceUnavailable, "limiter state unavailable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"remaining": remaining})
}

// ListJobs returns scheduler job stats
// GET /ops/jobs
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		respondError(w, http.StatusNotFound, "scheduler not running")
		return
	}
	respondJSON(w, http.StatusOK, h.jobs.GetJobStats())
}

// ClearCache drops cached factors, of one date when ?date= is given
// DELETE /ops/cache
func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		respondError(w, http.StatusNotFound, "cache not configured")
		return
	}

	var (
		n   int
		err error
	)
	if raw := r.URL.Query().Get("date"); raw != "" {
		date, perr := time.Parse("2006-01-02", raw)
		if perr != nil {
			respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		n, err = h.cache.ClearForDate(r.Context(), date)
	} else {
		n, err = h.cache.Clear(r.Context())
	}
	if err != nil {
		// 메모리 계층은 이미 비워짐
		h.logger.WithError(err).Warn("Cache clear incomplete")
		respondJSON(w, http.StatusAccepted, map[string]interface{}{"removed": n, "error": err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"removed": n})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
