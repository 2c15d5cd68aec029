package watch

import (
	"encoding/json"
	"net/http"
	"time"

	"git.home.luguber.info/inful/texcache/internal/build"
	"git.home.luguber.info/inful/texcache/internal/version"
)

// HealthStatus represents the overall health of the watcher.
type HealthStatus string

const (
	HealthStatusHealthy  HealthStatus = "healthy"
	HealthStatusDegraded HealthStatus = "degraded"
	HealthStatusStarting HealthStatus = "starting"
)

// LastBuild summarizes the most recent build in a health response.
type LastBuild struct {
	ID       string            `json:"id"`
	Status   build.BuildStatus `json:"status"`
	Finished time.Time         `json:"finished"`
	Snippets int               `json:"snippets"`
	Failed   int               `json:"failed"`
}

// HealthResponse is the /healthz document.
type HealthResponse struct {
	Status    HealthStatus `json:"status"`
	Timestamp time.Time    `json:"timestamp"`
	Uptime    string       `json:"uptime"`
	Version   string       `json:"version"`
	Builds    int          `json:"builds"`
	LastBuild *LastBuild   `json:"last_build,omitempty"`
}

// Health reports healthy after a successful build, degraded after a failed
// one and starting before the first build completes.
func (w *Watcher) Health() HealthResponse {
	n, last := w.Builds()
	resp := HealthResponse{
		Status:    HealthStatusStarting,
		Timestamp: time.Now(),
		Version:   version.Version,
		Builds:    n,
	}
	if !w.started.IsZero() {
		resp.Uptime = time.Since(w.started).Round(time.Second).String()
	}
	if last == nil {
		return resp
	}
	resp.LastBuild = &LastBuild{
		ID:       last.BuildID,
		Status:   last.Status,
		Finished: last.EndTime,
		Snippets: last.Site.Snippets,
		Failed:   len(last.Failures),
	}
	if last.Status.IsSuccess() {
		resp.Status = HealthStatusHealthy
	} else {
		resp.Status = HealthStatusDegraded
	}
	return resp
}

func (w *Watcher) handleHealth(rw http.ResponseWriter, _ *http.Request) {
	resp := w.Health()
	rw.Header().Set("Content-Type", "application/json")
	if resp.Status == HealthStatusDegraded {
		rw.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(rw).Encode(resp)
}
