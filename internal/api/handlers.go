package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/Zeebrow/ec2-price-tracker/internal/harvest"
	"github.com/Zeebrow/ec2-price-tracker/internal/pricing"
	"github.com/Zeebrow/ec2-price-tracker/internal/status"
	"github.com/Zeebrow/ec2-price-tracker/internal/storage/postgres"
)

// CatalogReader serves the cached catalogs. *pricing.CatalogCache satisfies
// it; a nil reader means no cache is configured.
type CatalogReader interface {
	Get(ctx context.Context) (*pricing.CachedCatalogs, error)
}

// RunMetricsReader serves run accounting rows. *postgres.Store satisfies it;
// a nil reader means no database is configured.
type RunMetricsReader interface {
	LatestRunMetrics(ctx context.Context) (postgres.RunMetricsRow, error)
}

// Handler implements the control API endpoints.
type Handler struct {
	status   status.Store
	launcher Launcher
	catalogs CatalogReader
	runs     RunMetricsReader
	logger   *zap.Logger
}

// GetStatus handles GET /status.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.status.Read(r.Context())
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "status unavailable", "status_unavailable", err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": string(st)})
}

// StartRun handles POST /run. The body is the JSON form of harvest.Options;
// omitted fields keep their defaults. A run is spawned as a detached
// harvester process so it survives API restarts.
func (h *Handler) StartRun(w http.ResponseWriter, r *http.Request) {
	opts := harvest.DefaultOptions()
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
		// An empty body runs with the defaults.
		h.respondError(w, http.StatusBadRequest, "invalid request body", "bad_request", err)
		return
	}
	if err := opts.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), "invalid_options", nil)
		return
	}

	st, err := h.status.Read(r.Context())
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "status unavailable", "status_unavailable", err)
		return
	}
	if st != status.StateIdle {
		h.respondError(w, http.StatusConflict, "engine is not idle: currently "+string(st), "not_idle", nil)
		return
	}

	pid, err := h.launcher.Launch(opts)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to start run", "launch_failed", err)
		return
	}

	h.logger.Info("run started",
		zap.Int("pid", pid),
		zap.Int("threads", opts.ThreadCount),
		zap.Strings("regions", opts.Regions),
		zap.Strings("operating_systems", opts.OperatingSystems),
	)
	h.respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"status": "starting",
		"pid":    pid,
	})
}

// GetLatestRun handles GET /runs/latest with the accounting row of the most
// recent completed run.
func (h *Handler) GetLatestRun(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		h.respondError(w, http.StatusServiceUnavailable, "run history requires a database", "no_database", nil)
		return
	}

	row, err := h.runs.LatestRunMetrics(r.Context())
	if errors.Is(err, postgres.ErrNotFound) {
		h.respondError(w, http.StatusNotFound, "no runs have completed yet", "no_runs", nil)
		return
	}
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "run history unavailable", "query_failed", err)
		return
	}
	h.respondJSON(w, http.StatusOK, row)
}

// GetCatalogs handles GET /catalogs from the redis cache. The cache is only
// written when a run collects the live catalogs, so a miss means no run has
// completed within the TTL.
func (h *Handler) GetCatalogs(w http.ResponseWriter, r *http.Request) {
	if h.catalogs == nil {
		h.respondError(w, http.StatusServiceUnavailable, "catalog cache is not configured", "no_cache", nil)
		return
	}

	catalogs, err := h.catalogs.Get(r.Context())
	if err != nil {
		h.respondError(w, http.StatusServiceUnavailable, "catalog cache unavailable", "cache_unavailable", err)
		return
	}
	if catalogs == nil {
		h.respondError(w, http.StatusNotFound, "catalogs have not been collected yet", "not_collected", nil)
		return
	}
	h.respondJSON(w, http.StatusOK, catalogs)
}

func (h *Handler) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, statusCode int, message, code string, err error) {
	if err != nil {
		h.logger.Warn(message, zap.Error(err), zap.Int("status", statusCode))
	} else {
		h.logger.Warn(message, zap.Int("status", statusCode))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
		"code":  code,
	})
}
