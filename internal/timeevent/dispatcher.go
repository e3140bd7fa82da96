package timeevent

import (
	"context"
	"fmt"
	"net"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/kestrelnet/ms2bot/internal/timeevent/api"
)

// Serve starts the dispatcher's gRPC server on addr and blocks until ctx
// is cancelled, then gracefully stops. Grounded on archon's
// internal/shipgate.Start, minus the mutual-TLS setup — see DESIGN.md for
// why that was not carried over for this module's channel mesh.
func Serve(ctx context.Context, logger *logrus.Logger, addr string, svc *Service) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("timeevent: listening on %s: %w", addr, err)
	}

	grpcServer := grpc.NewServer()
	api.RegisterTimeEventServiceServer(grpcServer, svc)

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", addr).Info("time-event dispatcher listening")
		if err := grpcServer.Serve(listener); err != nil {
			errCh <- fmt.Errorf("timeevent: serve: %w", err)
			return
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		grpcServer.GracefulStop()
		logger.Info("time-event dispatcher stopped")
		return nil
	}
}
