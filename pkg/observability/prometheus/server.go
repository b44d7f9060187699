package prometheus

import (
	"context"
	"encoding/json"
	"net"
	"sort"

	"github.com/fluxorio/roundpool/pkg/core/concurrency"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Server exposes /metrics, /live and /ready over fasthttp.
type Server struct {
	pools   map[string]concurrency.RoundPool
	metrics fasthttp.RequestHandler
	server  *fasthttp.Server
}

// poolStatus is the /ready payload for one pool
type poolStatus struct {
	Running         bool   `json:"running"`
	State           string `json:"state"`
	Workers         int    `json:"workers"`
	Waiting         int    `json:"waiting"`
	RoundsCompleted uint64 `json:"rounds_completed"`
	RoundsFailed    uint64 `json:"rounds_failed"`
	Stalls          uint64 `json:"stalls"`
}

// NewServer creates a metrics server for gatherer. pools are reported by /ready,
// which answers 503 as soon as one of them has been shut down.
func NewServer(gatherer prometheus.Gatherer, pools map[string]concurrency.RoundPool) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		pools:   pools,
		metrics: fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})),
	}
	s.server = &fasthttp.Server{
		Handler: s.Handler,
		Name:    "roundpool",
	}
	return s
}

// Handler routes a request
func (s *Server) Handler(ctx *fasthttp.RequestCtx) {
	if !ctx.IsGet() && !ctx.IsHead() {
		ctx.Error("method not allowed", fasthttp.StatusMethodNotAllowed)
		return
	}

	switch string(ctx.Path()) {
	case "/metrics":
		s.metrics(ctx)
	case "/live":
		writeJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "up"})
	case "/ready":
		s.ready(ctx)
	default:
		ctx.Error("not found", fasthttp.StatusNotFound)
	}
}

func (s *Server) ready(ctx *fasthttp.RequestCtx) {
	names := make([]string, 0, len(s.pools))
	for name := range s.pools {
		names = append(names, name)
	}
	sort.Strings(names)

	ready := true
	body := make(map[string]poolStatus, len(names))
	for _, name := range names {
		pool := s.pools[name]
		stats := pool.Stats()
		running := pool.IsRunning()
		ready = ready && running
		body[name] = poolStatus{
			Running:         running,
			State:           stats.State.String(),
			Workers:         stats.Workers,
			Waiting:         stats.Waiting,
			RoundsCompleted: stats.RoundsCompleted,
			RoundsFailed:    stats.RoundsFailed,
			Stalls:          stats.Stalls,
		}
	}

	status := fasthttp.StatusOK
	if !ready {
		status = fasthttp.StatusServiceUnavailable
	}
	writeJSON(ctx, status, map[string]interface{}{
		"ready": ready,
		"pools": body,
	})
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		ctx.Error(err.Error(), fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(data)
}

// Serve serves on ln until Shutdown
func (s *Server) Serve(ln net.Listener) error {
	return s.server.Serve(ln)
}

// Shutdown stops the server, waiting for open connections up to ctx
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.ShutdownWithContext(ctx)
}
