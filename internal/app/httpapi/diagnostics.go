package httpapi

import (
	"context"
	"net/http"
	goruntime "runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

const probeTimeout = 2 * time.Second

var hiddenHeaders = map[string]bool{
	"Authorization":       true,
	"Proxy-Authorization": true,
	"Cookie":              true,
	"Set-Cookie":          true,
}

// DatabaseStatus is the body of the database-check endpoint.
type DatabaseStatus struct {
	Connected  bool      `json:"connected"`
	Mode       string    `json:"mode"`
	RetryCount int       `json:"retryCount"`
	Error      string    `json:"error,omitempty"`
	LatencyMS  *int64    `json:"latencyMs,omitempty"`
	Reconnect  *bool     `json:"reconnected,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

func (h *handler) databaseStatus(ctx context.Context) DatabaseStatus {
	state := h.deps.Database.State()
	status := DatabaseStatus{
		Connected:  state.Connected,
		Mode:       h.deps.Database.Mode(),
		RetryCount: state.RetryCount,
		Timestamp:  time.Now().UTC(),
	}
	if state.LastError != nil && !h.deps.Config.IsProduction() {
		status.Error = state.LastError.Error()
	}

	if h.deps.Pinger != nil && state.Connected {
		pctx, cancel := context.WithTimeout(ctx, probeTimeout)
		defer cancel()
		start := time.Now()
		if err := h.deps.Pinger.Ping(pctx); err == nil {
			ms := time.Since(start).Milliseconds()
			status.LatencyMS = &ms
		} else {
			h.log.WithContext(ctx).WithError(err).Warn("database ping failed")
		}
	}
	return status
}

func statusCode(connected bool) int {
	if connected {
		return http.StatusOK
	}
	return http.StatusServiceUnavailable
}

func (h *handler) databaseCheck(w http.ResponseWriter, r *http.Request) {
	status := h.databaseStatus(r.Context())
	writeJSON(w, statusCode(status.Connected), status)
}

func (h *handler) databaseReconnect(w http.ResponseWriter, r *http.Request) {
	ok := h.deps.Database.Reconnect(r.Context())
	h.log.WithContext(r.Context()).WithField("reconnected", ok).Info("manual database reconnect")

	status := h.databaseStatus(r.Context())
	status.Reconnect = &ok
	writeJSON(w, statusCode(status.Connected), status)
}

func (h *handler) debug(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
	defer cancel()

	uptime := time.Since(h.deps.StartedAt)
	cfg := h.deps.Config

	var ms goruntime.MemStats
	goruntime.ReadMemStats(&ms)

	headers := make(map[string]string, len(r.Header))
	for name, values := range r.Header {
		if hiddenHeaders[http.CanonicalHeaderKey(name)] {
			continue
		}
		headers[name] = strings.Join(values, ", ")
	}

	state := h.deps.Database.State()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"timestamp":     time.Now().UTC(),
		"uptime":        uptime.Round(time.Second).String(),
		"uptimeSeconds": int64(uptime.Seconds()),
		"runtime": map[string]interface{}{
			"goVersion":  goruntime.Version(),
			"goroutines": goruntime.NumGoroutine(),
			"numCPU":     goruntime.NumCPU(),
			"memory": map[string]interface{}{
				"allocBytes":     ms.Alloc,
				"heapInUseBytes": ms.HeapInuse,
				"sysBytes":       ms.Sys,
				"numGC":          ms.NumGC,
			},
		},
		"host": hostInfo(ctx),
		"environment": map[string]interface{}{
			"appEnv":             cfg.Environment,
			"buildMode":          cfg.BuildMode,
			"skipDbCheck":        cfg.SkipDBCheck,
			"offlineMode":        cfg.OfflineMode(),
			"databaseConfigured": cfg.Database.URL != "",
		},
		"database": map[string]interface{}{
			"mode":       h.deps.Database.Mode(),
			"connected":  state.Connected,
			"retryCount": state.RetryCount,
		},
		"request": map[string]interface{}{
			"method":  r.Method,
			"url":     r.URL.String(),
			"headers": headers,
		},
		"audit": map[string]interface{}{
			"recent": h.audit.summaries(20),
		},
	})
}

// hostInfo collects what the platform supports; probes that fail are left
// out.
func hostInfo(ctx context.Context) map[string]interface{} {
	out := map[string]interface{}{}

	if info, err := host.InfoWithContext(ctx); err == nil {
		out["hostname"] = info.Hostname
		out["os"] = info.OS
		out["platform"] = info.Platform
		out["kernelVersion"] = info.KernelVersion
		out["uptimeSeconds"] = info.Uptime
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		out["memory"] = map[string]interface{}{
			"totalBytes":     vm.Total,
			"availableBytes": vm.Available,
			"usedBytes":      vm.Used,
			"usedPercent":    vm.UsedPercent,
		}
	}
	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		out["cpuPercent"] = pct[0]
	}
	if avg, err := load.AvgWithContext(ctx); err == nil {
		out["load"] = map[string]float64{
			"load1":  avg.Load1,
			"load5":  avg.Load5,
			"load15": avg.Load15,
		}
	}
	return out
}
