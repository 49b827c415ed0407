// Package health serves liveness and readiness probes for the daemons.
package health

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Status represents the health status of a component.
type Status string

const (
	StatusUp   Status = "up"
	StatusDown Status = "down"
)

// ComponentCheck represents the health of a single component.
type ComponentCheck struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Response is the JSON body returned by the probe endpoints.
type Response struct {
	Status     Status                    `json:"status"`
	Components map[string]ComponentCheck `json:"components,omitempty"`
	Timestamp  string                    `json:"timestamp"`
}

// CheckFunc returns nil if the component is healthy, or an error describing
// the issue.
type CheckFunc func() error

type check struct {
	name string
	fn   CheckFunc
}

// Checker answers /live and /ready. Readiness runs every registered check.
type Checker struct {
	mu           sync.RWMutex
	checks       []check
	shuttingDown atomic.Bool
	now          func() time.Time
}

// New creates a Checker with no readiness checks.
func New() *Checker {
	return &Checker{now: time.Now}
}

// RegisterReadiness adds or replaces the named readiness check.
func (c *Checker) RegisterReadiness(name string, fn CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.checks {
		if c.checks[i].name == name {
			c.checks[i].fn = fn
			return
		}
	}
	c.checks = append(c.checks, check{name: name, fn: fn})
	sort.Slice(c.checks, func(i, j int) bool { return c.checks[i].name < c.checks[j].name })
}

// SetShuttingDown makes both probes fail from now on.
func (c *Checker) SetShuttingDown() {
	c.shuttingDown.Store(true)
}

// Register mounts /live and /ready on mux.
func (c *Checker) Register(mux *http.ServeMux) {
	mux.HandleFunc("/live", c.LiveHandler())
	mux.HandleFunc("/ready", c.ReadyHandler())
}

// LiveHandler reports the process is running and not shutting down.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if resp, down := c.shutdownResponse(); down {
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		writeJSON(w, http.StatusOK, Response{Status: StatusUp, Timestamp: c.timestamp()})
	}
}

// ReadyHandler runs the readiness checks; any failure answers 503.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if resp, down := c.shutdownResponse(); down {
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		resp := c.Ready()
		code := http.StatusOK
		if resp.Status == StatusDown {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	}
}

// Ready runs every readiness check and returns the combined result.
func (c *Checker) Ready() Response {
	c.mu.RLock()
	checks := append([]check(nil), c.checks...)
	c.mu.RUnlock()

	resp := Response{
		Status:     StatusUp,
		Components: make(map[string]ComponentCheck, len(checks)),
		Timestamp:  c.timestamp(),
	}
	for _, ch := range checks {
		if err := ch.fn(); err != nil {
			resp.Status = StatusDown
			resp.Components[ch.name] = ComponentCheck{Status: StatusDown, Message: err.Error()}
			continue
		}
		resp.Components[ch.name] = ComponentCheck{Status: StatusUp}
	}
	return resp
}

func (c *Checker) shutdownResponse() (Response, bool) {
	if !c.shuttingDown.Load() {
		return Response{}, false
	}
	return Response{
		Status:    StatusDown,
		Timestamp: c.timestamp(),
		Components: map[string]ComponentCheck{
			"process": {Status: StatusDown, Message: "shutting down"},
		},
	}, true
}

func (c *Checker) timestamp() string {
	return c.now().UTC().Format(time.RFC3339)
}

func writeJSON(w http.ResponseWriter, code int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
