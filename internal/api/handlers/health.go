package handlers

import (
	"context"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/dhandebaz/sangathan-sub001/internal/breaker"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type BreakerSnapshotter interface {
	Snapshot() map[string]breaker.State
}

type HealthHandler struct {
	db       Pinger
	redis    redis.UniversalClient
	breakers BreakerSnapshotter
}

// NewHealthHandler checks db and, when they are non-nil, redis and the
// dependency breakers.
func NewHealthHandler(db Pinger, rdb redis.UniversalClient, breakers BreakerSnapshotter) *HealthHandler {
	return &HealthHandler{db: db, redis: rdb, breakers: breakers}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz fails on an unreachable database or redis. An open breaker only
// marks the instance degraded: the core keeps serving with that dependency
// rejected.
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	if h.db != nil {
		checks["database"] = pingResult(h.db.Ping(r.Context()))
	}
	if h.redis != nil {
		checks["redis"] = pingResult(h.redis.Ping(r.Context()).Err())
	}

	status := http.StatusOK
	for _, v := range checks {
		if v != "ok" {
			status = http.StatusServiceUnavailable
			break
		}
	}

	body := map[string]any{"checks": checks}
	label := "ok"
	if status != http.StatusOK {
		label = "unhealthy"
	}
	if h.breakers != nil {
		states := map[string]string{}
		for name, st := range h.breakers.Snapshot() {
			states[name] = st.String()
			if st != breaker.Closed && label == "ok" {
				label = "degraded"
			}
		}
		body["breakers"] = states
	}
	body["status"] = label

	writeJSON(w, status, body)
}

func pingResult(err error) string {
	if err != nil {
		return "unhealthy: " + err.Error()
	}
	return "ok"
}
