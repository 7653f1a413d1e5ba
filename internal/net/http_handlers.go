// Package net assembles the HTTP surface: health and diagnostics endpoints,
// a one-shot command endpoint and the spectator websocket.
package net

import (
	"encoding/json"
	"errors"
	"io"
	nethttp "net/http"
	"net/http/pprof"
	"time"

	"github.com/the-cubic-cat/sfera/internal/net/intake"
	"github.com/the-cubic-cat/sfera/internal/net/ws"
	"github.com/the-cubic-cat/sfera/internal/observability"
	"github.com/the-cubic-cat/sfera/internal/physics"
	"github.com/the-cubic-cat/sfera/internal/render"
	"github.com/the-cubic-cat/sfera/internal/sim"
	"github.com/the-cubic-cat/sfera/internal/telemetry"
	"github.com/the-cubic-cat/sfera/logging"
)

const maxCommandBody = 64 << 10

// RouterStats reports event router counters.
type RouterStats interface {
	Stats() logging.RouterStats
}

type HTTPHandlerConfig struct {
	Hub           *ws.Hub
	Submitter     ws.Submitter
	ReadOnly      bool
	Engine        *physics.Engine
	Window        *render.Window
	Metrics       *logging.Metrics
	Router        RouterStats
	Logger        telemetry.Logger
	Observability observability.Config
}

func NewHTTPHandler(cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.LoggerFunc(nil)
	}

	mux := nethttp.NewServeMux()

	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		payload := struct {
			Status      string            `json:"status"`
			ServerTime  int64             `json:"serverTime"`
			SimTimeNS   int64             `json:"simTimeNs"`
			EndTimeNS   int64             `json:"endTimeNs"`
			RenderNS    int64             `json:"renderTimeNs"`
			Timescale   float64           `json:"timescale"`
			Balls       int               `json:"balls"`
			Spectators  int               `json:"spectators"`
			Logging     bool              `json:"energyLogging"`
			Telemetry   map[string]uint64 `json:"telemetry,omitempty"`
			Events      *eventStats       `json:"events,omitempty"`
			TimestepNS  int64             `json:"timestepNs"`
			RunaheadNS  int64             `json:"runaheadNs"`
			Iterations  int               `json:"maxCollisionIterations"`
			ErrorMargin float64           `json:"collisionErrMargin"`
		}{
			Status:     "ok",
			ServerTime: time.Now().UnixMilli(),
		}
		if eng := cfg.Engine; eng != nil {
			payload.SimTimeNS = int64(eng.SimulationTime())
			payload.EndTimeNS = int64(eng.World().EndTime())
			payload.Balls = eng.World().Len()
			payload.Logging = eng.IsLoggingKineticEnergy()
			pc := eng.Config()
			payload.TimestepNS = int64(pc.Timestep)
			payload.RunaheadNS = int64(pc.Runahead)
			payload.Iterations = pc.MaxCollisionIterations
			payload.ErrorMargin = pc.CollisionErrMargin
		}
		if win := cfg.Window; win != nil {
			payload.RenderNS = int64(win.Time())
			payload.Timescale = win.Timescale()
		}
		if cfg.Hub != nil {
			payload.Spectators = cfg.Hub.Len()
		}
		if cfg.Metrics != nil {
			payload.Telemetry = cfg.Metrics.Snapshot()
		}
		if cfg.Router != nil && cfg.Observability.DiagnosticsEvents {
			stats := cfg.Router.Stats()
			payload.Events = &eventStats{Total: stats.EventsTotal, Dropped: stats.DroppedTotal}
		}

		writeJSON(w, nethttp.StatusOK, payload)
	})

	mux.HandleFunc("/command", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodPost {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		if cfg.ReadOnly || cfg.Submitter == nil {
			httpError(w, "read only", nethttp.StatusForbidden)
			return
		}

		var req struct {
			Line string `json:"line"`
		}
		if r.Body != nil {
			defer r.Body.Close()
			decoder := json.NewDecoder(io.LimitReader(r.Body, maxCommandBody))
			if err := decoder.Decode(&req); err != nil && err != io.EOF {
				httpError(w, "invalid payload", nethttp.StatusBadRequest)
				return
			}
		}

		out, err := cfg.Submitter.Submit(r.Context(), sim.SourceConsole+":http", req.Line)
		response := struct {
			Status string `json:"status"`
			Output string `json:"output,omitempty"`
			Error  string `json:"error,omitempty"`
		}{Status: "ok", Output: out}
		status := nethttp.StatusOK
		if err != nil {
			response.Status = "error"
			response.Error = err.Error()
			status = nethttp.StatusUnprocessableEntity
			switch {
			case errors.Is(err, sim.ErrCommandRejected):
				status = nethttp.StatusServiceUnavailable
			case errors.Is(err, intake.ErrForbidden):
				status = nethttp.StatusForbidden
			}
		}
		writeJSON(w, status, response)
	})

	if cfg.Hub != nil {
		handler := ws.NewHandler(cfg.Hub, cfg.Submitter, ws.HandlerConfig{Logger: logger, ReadOnly: cfg.ReadOnly})
		mux.HandleFunc("/ws", handler.Handle)
	}

	if cfg.Observability.EnablePprofTrace {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	return mux
}

type eventStats struct {
	Total   uint64 `json:"total"`
	Dropped uint64 `json:"dropped"`
}

func writeJSON(w nethttp.ResponseWriter, status int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		httpError(w, "failed to encode", nethttp.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func httpError(w nethttp.ResponseWriter, msg string, code int) {
	nethttp.Error(w, msg, code)
}
