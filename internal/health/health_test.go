package health

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func get(t *testing.T, h http.Handler, path string) (int, Response) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var resp Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("%s: body is not JSON: %v", path, err)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("%s: Content-Type = %q", path, ct)
	}
	return rec.Code, resp
}

func newMux(c *Checker) *http.ServeMux {
	mux := http.NewServeMux()
	c.Register(mux)
	return mux
}

func TestLive(t *testing.T) {
	c := New()
	c.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	mux := newMux(c)

	code, resp := get(t, mux, "/live")
	if code != http.StatusOK || resp.Status != StatusUp {
		t.Fatalf("/live = %d %+v", code, resp)
	}
	if resp.Timestamp != "2026-01-02T03:04:05Z" {
		t.Errorf("timestamp = %q", resp.Timestamp)
	}

	c.SetShuttingDown()
	code, resp = get(t, mux, "/live")
	if code != http.StatusServiceUnavailable || resp.Components["process"].Status != StatusDown {
		t.Errorf("/live after shutdown = %d %+v", code, resp)
	}
}

func TestReady(t *testing.T) {
	c := New()
	mux := newMux(c)

	// no checks registered
	if code, resp := get(t, mux, "/ready"); code != http.StatusOK || resp.Status != StatusUp {
		t.Fatalf("/ready = %d %+v", code, resp)
	}

	online := false
	c.RegisterReadiness("sparkplug_session", func() error {
		if !online {
			return errors.New("edge node offline")
		}
		return nil
	})
	c.RegisterReadiness("store_forward", func() error { return nil })

	code, resp := get(t, mux, "/ready")
	if code != http.StatusServiceUnavailable || resp.Status != StatusDown {
		t.Fatalf("/ready offline = %d %+v", code, resp)
	}
	if cc := resp.Components["sparkplug_session"]; cc.Status != StatusDown || cc.Message != "edge node offline" {
		t.Errorf("session component = %+v", cc)
	}
	if resp.Components["store_forward"].Status != StatusUp {
		t.Errorf("store_forward component = %+v", resp.Components["store_forward"])
	}

	online = true
	if code, resp := get(t, mux, "/ready"); code != http.StatusOK || len(resp.Components) != 2 {
		t.Errorf("/ready online = %d %+v", code, resp)
	}

	c.SetShuttingDown()
	if code, _ := get(t, mux, "/ready"); code != http.StatusServiceUnavailable {
		t.Errorf("/ready after shutdown = %d", code)
	}
}

func TestRegisterReadinessReplaces(t *testing.T) {
	c := New()
	c.RegisterReadiness("b", func() error { return errors.New("down") })
	c.RegisterReadiness("a", func() error { return nil })
	c.RegisterReadiness("b", func() error { return nil })
	if len(c.checks) != 2 || c.checks[0].name != "a" {
		t.Fatalf("checks = %+v", c.checks)
	}
	if resp := c.Ready(); resp.Status != StatusUp {
		t.Errorf("Ready() = %+v", resp)
	}
}
