// Package api implements the control plane: enqueue, queue/DLQ
// inspection, health, and metrics. Grounded on the teacher's
// internal/api/server.go chi-router/writeJSON shape, generalized from
// four endpoints over one job table to the eight spec section 4.9 names
// over the namespaced queue set.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"archivehub/internal/config"
	"archivehub/internal/errs"
	"archivehub/internal/queue"
	"archivehub/internal/ratelimit"
	"archivehub/internal/router"
	"archivehub/internal/store"
	"archivehub/internal/telemetry"
)

// Server wires HTTP handlers for the control plane.
type Server struct {
	cfg     config.Config
	store   *store.Store
	queue   *queue.Queue
	limiter *ratelimit.TokenBucket
	tel     *telemetry.Telemetry
}

// New constructs the control-plane server.
func New(cfg config.Config, st *store.Store, q *queue.Queue, limiter *ratelimit.TokenBucket, tel *telemetry.Telemetry) *Server {
	return &Server{cfg: cfg, store: st, queue: q, limiter: limiter, tel: tel}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)
	r.Mount("/metrics", s.tel.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.requireBearer(s.cfg.EnqueueToken, s.cfg.WorkerEnqueueToken))
		r.Post("/enqueue", s.handleEnqueue)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.requireBearer(s.cfg.AdminAPIToken))
		r.Get("/queues/overview", s.handleQueuesOverview)
		r.Get("/queues/dlq", s.handleDLQList)
		r.Post("/queues/dlq/requeue", s.handleDLQRequeue)
		r.Delete("/queues/dlq", s.handleDLQPurge)
		r.Post("/admin/pm2", s.handlePM2Stub)
		r.Get("/admin/pm2/list", s.handlePM2ListStub)
	})

	return r
}

// requireBearer builds middleware that accepts any of the given tokens
// (empty tokens never match, so an unconfigured auth layer rejects
// everything rather than silently allowing all requests).
func (s *Server) requireBearer(tokens ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			presented := strings.TrimPrefix(header, "Bearer ")
			for _, t := range tokens {
				if t != "" && presented == t {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid bearer token")
		})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	snapshot := telemetry.HealthSnapshot{
		QueueDepths: map[string]int64{},
		DLQDepths:   map[string]int64{},
	}

	snapshot.PostgresOK = s.store.Ping(ctx) == nil

	if active, err := s.store.ListNonTerminalJobgroups(ctx); err == nil {
		snapshot.ActiveJobgroups = len(active)
		if s.tel != nil {
			s.tel.JobgroupsActive.Set(float64(len(active)))
		}
	}

	redisOK := true
	for _, key := range queue.AllQueueKeys() {
		n, err := s.queue.Length(ctx, key)
		if err != nil {
			redisOK = false
			continue
		}
		snapshot.QueueDepths[key] = n
		if s.tel != nil {
			s.tel.QueueDepth.WithLabelValues(key).Set(float64(n))
		}
	}
	for _, key := range queue.AllDLQKeys() {
		n, err := s.queue.Length(ctx, key)
		if err != nil {
			redisOK = false
			continue
		}
		snapshot.DLQDepths[key] = n
		if s.tel != nil {
			s.tel.DLQDepth.WithLabelValues(key).Set(float64(n))
		}
	}
	snapshot.RedisOK = redisOK
	snapshot.Status = snapshot.ComputeStatus()

	code := http.StatusOK
	if snapshot.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, snapshot)
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "request body is not valid JSON")
		return
	}
	if payload == nil {
		payload = map[string]any{}
	}
	if _, ok := payload["job_type"]; !ok {
		payload["job_type"] = "machinist"
	}
	if pt, ok := payload["processing_type"].(string); ok && pt == "batch" {
		payload["processing_type"] = "jobgroup"
	}

	key, err := router.ResolveQueue(payload)
	if err != nil {
		writeRoutingError(w, err)
		return
	}

	if idemKey, _ := payload["idempotency_key"].(string); idemKey != "" {
		claimed, err := s.store.ClaimIdempotencyKey(r.Context(), idemKey, key, s.cfg.IdempotencyTTL)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "IDEMPOTENCY_CHECK_FAILED", err.Error())
			return
		}
		if !claimed {
			writeJSON(w, http.StatusOK, map[string]string{"queue": key, "status": "duplicate_ignored"})
			return
		}
	}

	tenantID, _ := payload["tenant_id"].(string)
	if s.limiter != nil && tenantID != "" {
		allowed, _, err := s.limiter.Allow(r.Context(), "enqueue:"+tenantID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "RATE_LIMIT_UNAVAILABLE", err.Error())
			return
		}
		if !allowed {
			if s.tel != nil {
				s.tel.RateLimitRejects.Inc()
			}
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "enqueue rate limit exceeded for tenant")
			return
		}
	}

	if err := s.queue.Push(r.Context(), key, payload); err != nil {
		writeError(w, http.StatusInternalServerError, "ENQUEUE_FAILED", err.Error())
		return
	}
	if s.tel != nil {
		worker, priority := "unknown", "unknown"
		if parts := strings.Split(key, ":"); len(parts) == 3 {
			worker, priority = parts[1], parts[2]
		}
		s.tel.EnqueueTotal.WithLabelValues(worker, priority).Inc()
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"queue": key, "status": "enqueued"})
}

func (s *Server) handleQueuesOverview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	overview := map[string]int64{}
	for _, key := range queue.AllQueueKeys() {
		n, err := s.queue.Length(ctx, key)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "QUEUE_READ_FAILED", err.Error())
			return
		}
		overview[key] = n
		if s.tel != nil {
			s.tel.QueueDepth.WithLabelValues(key).Set(float64(n))
		}
	}
	for _, key := range queue.AllDLQKeys() {
		n, err := s.queue.Length(ctx, key)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "QUEUE_READ_FAILED", err.Error())
			return
		}
		overview[key] = n
		if s.tel != nil {
			s.tel.DLQDepth.WithLabelValues(key).Set(float64(n))
		}
	}
	writeJSON(w, http.StatusOK, overview)
}

func (s *Server) handleDLQList(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "MISSING_KEY", "key query parameter is required")
		return
	}
	offset := queryInt64(r, "offset", 0)
	limit := queryInt64(r, "limit", 100)
	if limit > 200 {
		limit = 200
	}
	items, err := s.queue.Range(r.Context(), key, offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "DLQ_READ_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"key": key, "items": items})
}

type dlqRequeueRequest struct {
	SrcKey string `json:"srcKey"`
	DstKey string `json:"dstKey"`
	Count  int64  `json:"count"`
}

func (s *Server) handleDLQRequeue(w http.ResponseWriter, r *http.Request) {
	var req dlqRequeueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "request body is not valid JSON")
		return
	}
	if req.SrcKey == "" || req.DstKey == "" {
		writeError(w, http.StatusBadRequest, "MISSING_KEY", "srcKey and dstKey are required")
		return
	}
	if req.Count <= 0 {
		req.Count = 100
	}
	if req.Count > 1000 {
		req.Count = 1000
	}

	items, err := s.queue.PopChunk(r.Context(), req.SrcKey, req.Count)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "DLQ_REQUEUE_FAILED", err.Error())
		return
	}
	for _, raw := range items {
		if err := s.queue.RequeueRaw(r.Context(), req.DstKey, raw); err != nil {
			writeError(w, http.StatusInternalServerError, "DLQ_REQUEUE_FAILED", err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"requeued": len(items)})
}

func (s *Server) handleDLQPurge(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "MISSING_KEY", "key query parameter is required")
		return
	}
	count := queryInt64(r, "count", 100)
	if count > 1000 {
		count = 1000
	}
	items, err := s.queue.PopChunk(r.Context(), key, count)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "DLQ_PURGE_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"purged": len(items)})
}

// handlePM2Stub and handlePM2ListStub are operator-integration stubs: the
// process manager they'd front is out of scope for reimplementation per
// spec section 4.9.
func (s *Server) handlePM2Stub(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotImplemented, map[string]string{"status": "not_implemented"})
}

func (s *Server) handlePM2ListStub(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"processes": []string{}})
}

func queryInt64(r *http.Request, name string, def int64) int64 {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func writeRoutingError(w http.ResponseWriter, err error) {
	var re *errs.RoutingError
	if errors.As(err, &re) {
		writeError(w, http.StatusBadRequest, re.Code, re.Message)
		return
	}
	writeError(w, http.StatusBadRequest, "ROUTING_ERROR", err.Error())
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, code int, errCode, message string) {
	writeJSON(w, code, map[string]string{"error": errCode, "message": message})
}
