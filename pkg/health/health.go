package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Checker probes one dependency.
type Checker func(ctx context.Context) error

// Status represents the health status of a component.
type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

const defaultCheckTimeout = 3 * time.Second

// Response is the JSON body of the health endpoints.
type Response struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult is the result of a single health check.
type CheckResult struct {
	Status   Status `json:"status"`
	Critical bool   `json:"critical"`
	Error    string `json:"error,omitempty"`
}

type registration struct {
	check    Checker
	critical bool
}

// Handler serves liveness and readiness endpoints. A failing critical check
// makes the service unready (503); a failing non-critical check only reports
// it as degraded (200).
type Handler struct {
	mu           sync.RWMutex
	checkers     map[string]registration
	checkTimeout time.Duration
}

// NewHandler creates a new health check handler.
func NewHandler() *Handler {
	return &Handler{
		checkers:     make(map[string]registration),
		checkTimeout: defaultCheckTimeout,
	}
}

// Register adds a critical checker. Re-registering a name replaces it.
func (h *Handler) Register(name string, checker Checker) {
	h.RegisterCritical(name, checker)
}

// RegisterCritical adds a checker whose failure makes the service unready.
func (h *Handler) RegisterCritical(name string, checker Checker) {
	h.register(name, checker, true)
}

// RegisterNonCritical adds a checker whose failure only degrades the service.
func (h *Handler) RegisterNonCritical(name string, checker Checker) {
	h.register(name, checker, false)
}

func (h *Handler) register(name string, checker Checker, critical bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = registration{check: checker, critical: critical}
}

// LivenessHandler reports 200 while the process is running.
func (h *Handler) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, http.StatusOK, Response{Status: StatusUp, Timestamp: time.Now().UTC()})
	}
}

// ReadinessHandler runs every registered check concurrently.
func (h *Handler) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.mu.RLock()
		regs := make(map[string]registration, len(h.checkers))
		for k, v := range h.checkers {
			regs[k] = v
		}
		timeout := h.checkTimeout
		h.mu.RUnlock()

		checks := make(map[string]CheckResult, len(regs))
		var (
			mu sync.Mutex
			wg sync.WaitGroup
		)
		for name, reg := range regs {
			wg.Add(1)
			go func(name string, reg registration) {
				defer wg.Done()
				ctx, cancel := context.WithTimeout(r.Context(), timeout)
				defer cancel()

				res := CheckResult{Status: StatusUp, Critical: reg.critical}
				if err := reg.check(ctx); err != nil {
					res.Status = StatusDown
					res.Error = err.Error()
				}
				mu.Lock()
				checks[name] = res
				mu.Unlock()
			}(name, reg)
		}
		wg.Wait()

		overall := StatusUp
		for _, res := range checks {
			if res.Status != StatusDown {
				continue
			}
			if res.Critical {
				overall = StatusDown
				break
			}
			overall = StatusDegraded
		}

		code := http.StatusOK
		if overall == StatusDown {
			code = http.StatusServiceUnavailable
		}
		writeResponse(w, code, Response{Status: overall, Timestamp: time.Now().UTC(), Checks: checks})
	}
}

func writeResponse(w http.ResponseWriter, code int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
