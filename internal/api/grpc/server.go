package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"practice-ledger/internal/api/grpc/interceptor"
	"practice-ledger/internal/logger"
	"practice-ledger/internal/security"
)

// LedgerService is the health service name reported for the ledger itself.
const LedgerService = "practice.ledger"

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// NewServer builds the operational gRPC server: health checks and reflection
// behind the same token rules as the HTTP API.
func NewServer(tokenManager security.TokenManager) (*grpc.Server, *health.Server) {
	auth := interceptor.NewAuthInterceptor(tokenManager)
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(interceptor.Logging(), auth.Unary()),
		grpc.StreamInterceptor(auth.Stream()),
	)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)

	// Register reflection service for grpcurl
	reflection.Register(s)

	return s, hs
}

// WatchDatabase keeps the ledger health status in step with the database
// until ctx is cancelled.
func WatchDatabase(ctx context.Context, hs *health.Server, db Pinger, interval time.Duration) {
	probeDatabase(ctx, hs, db)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probeDatabase(ctx, hs, db)
		}
	}
}

func probeDatabase(ctx context.Context, hs *health.Server, db Pinger) {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := db.PingContext(pingCtx); err != nil {
		logger.Warn("Database health probe failed", "error", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	hs.SetServingStatus("", status)
	hs.SetServingStatus(LedgerService, status)
}
