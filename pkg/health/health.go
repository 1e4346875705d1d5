// Package health reports the circuit state of every remote adapter over the
// standard gRPC health protocol.
package health

import (
	"context"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/davibasa/Enter-Fellowship-sub001/pkg/logger"
	"github.com/davibasa/Enter-Fellowship-sub001/pkg/resilience"
)

// Probe is anything with a circuit worth reporting.
type Probe interface {
	Name() string
	CircuitState() resilience.State
}

// Status is one adapter in a snapshot.
type Status struct {
	Name    string `json:"name"`
	State   string `json:"state"`
	Serving bool   `json:"serving"`
}

type Reporter struct {
	probes   []Probe
	server   *grpchealth.Server
	interval time.Duration
	logger   logger.Logger
}

func NewReporter(probes []Probe, interval time.Duration, log logger.Logger) *Reporter {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Reporter{
		probes:   probes,
		server:   grpchealth.NewServer(),
		interval: interval,
		logger:   log.Named("health"),
	}
}

// Snapshot reads every probe once.
func (r *Reporter) Snapshot() []Status {
	out := make([]Status, 0, len(r.probes))
	for _, p := range r.probes {
		state := p.CircuitState()
		out = append(out, Status{
			Name:    p.Name(),
			State:   state.String(),
			Serving: state != resilience.StateOpen,
		})
	}
	return out
}

// Refresh pushes the current snapshot to the gRPC health server. The
// service as a whole keeps serving: open circuits only degrade results.
func (r *Reporter) Refresh() {
	r.server.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	for _, s := range r.Snapshot() {
		status := healthpb.HealthCheckResponse_SERVING
		if !s.Serving {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		r.server.SetServingStatus(s.Name, status)
	}
}

// Run refreshes on every tick until ctx is done.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.Refresh()
	for {
		select {
		case <-ctx.Done():
			r.server.Shutdown()
			return
		case <-ticker.C:
			r.Refresh()
		}
	}
}

// Serve exposes the health service on addr until ctx is done.
func (r *Reporter) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, r.server)
	reflection.Register(srv)

	go r.Run(ctx)
	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()

	r.logger.Info("gRPC health server starting", logger.String("addr", addr))
	if err := srv.Serve(lis); err != nil && ctx.Err() == nil {
		return fmt.Errorf("grpc health server stopped: %w", err)
	}
	return nil
}
