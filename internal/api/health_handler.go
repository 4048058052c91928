package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ignite/list-builder/internal/metabase"
	"github.com/ignite/list-builder/internal/pkg/httputil"
)

// HealthStatus represents the overall health of the system.
type HealthStatus struct {
	Status  string                    `json:"status"` // "healthy", "degraded", "unhealthy"
	Version string                    `json:"version"`
	Uptime  string                    `json:"uptime"`
	Checks  map[string]ComponentCheck `json:"checks"`
}

// ComponentCheck represents the health of a single component.
type ComponentCheck struct {
	Status  string `json:"status"` // "up", "down", "degraded"
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// Pinger is anything the health check can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker reports on the BI tool session, the metadata cache and
// the suggestion provider.
type HealthChecker struct {
	bi        Pinger
	cache     Pinger
	llmReady  bool
	startTime time.Time
}

// NewHealthChecker creates a new HealthChecker. Nil dependencies report
// "not configured".
func NewHealthChecker(deps Deps) *HealthChecker {
	hc := &HealthChecker{
		llmReady:  deps.Suggester.Available(),
		startTime: time.Now(),
	}
	if deps.Catalog != nil {
		hc.bi = deps.Catalog
	}
	if deps.Cache != nil {
		hc.cache = deps.Cache
	}
	return hc
}

// Version is reported by /health. Set at build time with -ldflags.
var Version = "dev"

// HandleHealth returns the status of every component. Always 200.
//
//	GET /health
func (hc *HealthChecker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())

	httputil.OK(w, HealthStatus{
		Status:  determineOverallStatus(checks),
		Version: Version,
		Uptime:  formatUptime(time.Since(hc.startTime)),
		Checks:  checks,
	})
}

// HandleLiveness only proves the process serves HTTP.
//
//	GET /health/live
func (hc *HealthChecker) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]string{"status": "alive"})
}

// HandleReadiness answers 503 while the BI tool is unreachable.
//
//	GET /health/ready
func (hc *HealthChecker) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())
	status := determineOverallStatus(checks)

	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	httputil.JSON(w, code, map[string]any{"status": status, "checks": checks})
}

func (hc *HealthChecker) runAllChecks(ctx context.Context) map[string]ComponentCheck {
	type result struct {
		name  string
		check ComponentCheck
	}

	ch := make(chan result, 3)
	go func() { ch <- result{"metabase", hc.checkMetabase(ctx)} }()
	go func() { ch <- result{"redis", hc.checkRedis(ctx)} }()
	go func() { ch <- result{"llm", hc.checkLLM()} }()

	checks := make(map[string]ComponentCheck, 3)
	for range 3 {
		r := <-ch
		checks[r.name] = r.check
	}
	return checks
}

// checkMetabase obtains (or reuses) a BI tool session with a 5-second timeout.
func (hc *HealthChecker) checkMetabase(ctx context.Context) ComponentCheck {
	if hc.bi == nil {
		return ComponentCheck{Status: "down", Message: "not configured"}
	}
	return ping(ctx, hc.bi, 5*time.Second, 2*time.Second)
}

// checkRedis pings Redis with a 2-second timeout.
func (hc *HealthChecker) checkRedis(ctx context.Context) ComponentCheck {
	if hc.cache == nil {
		return ComponentCheck{Status: "down", Message: "not configured"}
	}
	return ping(ctx, hc.cache, 2*time.Second, 500*time.Millisecond)
}

func (hc *HealthChecker) checkLLM() ComponentCheck {
	if !hc.llmReady {
		return ComponentCheck{Status: "down", Message: "not configured"}
	}
	return ComponentCheck{Status: "up", Message: "configured"}
}

func ping(ctx context.Context, p Pinger, timeout, slow time.Duration) ComponentCheck {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := p.Ping(pingCtx)
	latency := time.Since(start)

	if errors.Is(err, metabase.ErrNotConfigured) {
		return ComponentCheck{Status: "down", Message: "not configured"}
	}
	if err != nil {
		return ComponentCheck{
			Status:  "down",
			Latency: latency.String(),
			Message: fmt.Sprintf("ping failed: %v", err),
		}
	}

	status := "up"
	msg := "connected"
	if latency > slow {
		status = "degraded"
		msg = fmt.Sprintf("slow response (%s)", latency)
	}

	return ComponentCheck{
		Status:  status,
		Latency: latency.String(),
		Message: msg,
	}
}

// determineOverallStatus computes the top-level status:
//   - "unhealthy" if the BI tool is configured but down
//   - "degraded"  if any check is degraded or an optional check is down
//   - "healthy"   otherwise
func determineOverallStatus(checks map[string]ComponentCheck) string {
	if bi, ok := checks["metabase"]; ok && bi.Status == "down" && bi.Message != "not configured" {
		return "unhealthy"
	}

	for _, c := range checks {
		if c.Status == "degraded" {
			return "degraded"
		}
		if c.Status == "down" && c.Message != "not configured" {
			return "degraded"
		}
	}

	return "healthy"
}

// formatUptime produces a human-readable uptime string like "3d 4h 12m 5s".
func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
