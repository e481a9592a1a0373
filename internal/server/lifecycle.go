// Package server provides process lifecycle management: ordered startup,
// signal-driven shutdown, and a bounded grace period for stopping services.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Service represents a long-running component that can be started and stopped.
type Service interface {
	// Start runs the service and blocks until it stops or fails.
	// Returning nil means the service ended normally.
	Start() error
	// Stop asks the service to finish within the deadline carried by ctx.
	Stop(ctx context.Context) error
}

// FuncService adapts a start/stop function pair into the Service interface.
type FuncService struct {
	StartFn func() error
	StopFn  func(ctx context.Context) error
}

// Start calls the underlying start function.
func (f *FuncService) Start() error { return f.StartFn() }

// Stop calls the underlying stop function, if any.
func (f *FuncService) Stop(ctx context.Context) error {
	if f.StopFn == nil {
		return nil
	}
	return f.StopFn(ctx)
}

// Lifecycle manages the startup and shutdown of multiple services.
// Services are started in order and stopped in reverse order.
type Lifecycle struct {
	logger          *zap.Logger
	shutdownTimeout time.Duration

	mu       sync.Mutex
	services []namedService
}

type namedService struct {
	name    string
	service Service
}

// NewLifecycle creates a new Lifecycle manager. A non-positive
// shutdownTimeout means services are stopped without a deadline.
//
// Precondition: logger must be non-nil.
func NewLifecycle(logger *zap.Logger, shutdownTimeout time.Duration) *Lifecycle {
	return &Lifecycle{
		logger:          logger,
		shutdownTimeout: shutdownTimeout,
	}
}

// Add registers a named service for lifecycle management.
//
// Precondition: name must be non-empty; svc must be non-nil.
func (l *Lifecycle) Add(name string, svc Service) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.services = append(l.services, namedService{name: name, service: svc})
}

// Run starts all services and blocks until SIGINT/SIGTERM, ctx cancellation,
// or the first service failure, then stops every service in reverse order.
//
// Postcondition: All services have been asked to stop when Run returns. The
// returned error joins the failure that triggered shutdown (if any) with
// every Stop error.
func (l *Lifecycle) Run(ctx context.Context) error {
	start := time.Now()

	l.mu.Lock()
	services := append([]namedService(nil), l.services...)
	l.mu.Unlock()

	sigCtx, stopSignals := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	errCh := make(chan error, len(services))
	for _, ns := range services {
		ns := ns
		go func() {
			l.logger.Info("starting service", zap.String("service", ns.name))
			svcStart := time.Now()
			if err := ns.service.Start(); err != nil {
				l.logger.Error("service failed",
					zap.String("service", ns.name),
					zap.Error(err),
					zap.Duration("uptime", time.Since(svcStart)),
				)
				errCh <- fmt.Errorf("service %s: %w", ns.name, err)
			}
		}()
	}

	l.logger.Info("all services started",
		zap.Int("count", len(services)),
		zap.Duration("startup", time.Since(start)),
	)

	var cause error
	select {
	case cause = <-errCh:
		l.logger.Error("service error, shutting down", zap.Error(cause))
	case <-sigCtx.Done():
		if ctx.Err() != nil {
			l.logger.Info("context cancelled, shutting down")
		} else {
			l.logger.Info("received signal, shutting down")
		}
	}

	stopErr := l.shutdown(services)

	l.logger.Info("shutdown complete", zap.Duration("total_uptime", time.Since(start)))
	return errors.Join(cause, stopErr)
}

func (l *Lifecycle) shutdown(services []namedService) error {
	shutdownStart := time.Now()
	ctx := context.Background()
	if l.shutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.shutdownTimeout)
		defer cancel()
	}

	var errs []error
	for i := len(services) - 1; i >= 0; i-- {
		ns := services[i]
		svcStart := time.Now()
		l.logger.Info("stopping service", zap.String("service", ns.name))
		if err := ns.service.Stop(ctx); err != nil {
			l.logger.Warn("service stop failed",
				zap.String("service", ns.name),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("stopping %s: %w", ns.name, err))
			continue
		}
		l.logger.Info("service stopped",
			zap.String("service", ns.name),
			zap.Duration("elapsed", time.Since(svcStart)),
		)
	}
	l.logger.Info("all services stopped", zap.Duration("shutdown_elapsed", time.Since(shutdownStart)))
	return errors.Join(errs...)
}

// Exit logs err and terminates the process with status 1 when err is non-nil.
func Exit(logger *zap.Logger, err error) {
	if err == nil {
		return
	}
	logger.Error("exiting", zap.Error(err))
	_ = logger.Sync()
	os.Exit(1)
}
