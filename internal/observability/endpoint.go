package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/conf"
	apperrors "github.com/anna-pye/myeventlane-v2-sub001/internal/errors"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/logger"
	metricspkg "github.com/anna-pye/myeventlane-v2-sub001/internal/observability/metrics"
)

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// HealthStatus is the /healthz response body.
type HealthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Endpoint serves /metrics and /healthz.
type Endpoint struct {
	echo          *echo.Echo
	listenAddress string
	metrics       *Metrics
	checks        map[string]HealthCheck
	log           logger.Logger
}

// NewEndpoint creates the endpoint. It fails when metrics are disabled.
func NewEndpoint(settings *conf.MetricsSettings, metrics *Metrics, checks map[string]HealthCheck, log logger.Logger) (*Endpoint, error) {
	if !settings.Enabled {
		return nil, apperrors.Newf("metrics endpoint not enabled in settings").
			Component("observability").
			Category(apperrors.CategoryConfiguration).
			Build()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 30 * time.Second

	ep := &Endpoint{
		echo:          e,
		listenAddress: settings.Listen,
		metrics:       metrics,
		checks:        checks,
		log:           log.Module("metrics"),
	}
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	e.GET("/healthz", ep.health)
	return ep, nil
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (e *Endpoint) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", e.listenAddress)
	if err != nil {
		return apperrors.New(err).
			Component("observability").
			Category(apperrors.CategoryNetwork).
			Context("listen", e.listenAddress).
			Build()
	}
	return e.serve(ctx, listener)
}

func (e *Endpoint) serve(ctx context.Context, listener net.Listener) error {
	e.echo.Listener = listener
	e.log.Info("metrics endpoint starting", logger.String("address", listener.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.echo.Start("")
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	e.log.Info("stopping metrics endpoint")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metricspkg.ShutdownTimeout)
	defer cancel()
	if err := e.echo.Shutdown(shutdownCtx); err != nil {
		e.log.Error("metrics endpoint shutdown error", logger.Error(err))
		return err
	}
	<-errCh
	return nil
}

// Handler exposes the routes for tests and embedding.
func (e *Endpoint) Handler() http.Handler {
	return e.echo
}

func (e *Endpoint) health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	status := HealthStatus{Status: "ok", Checks: make(map[string]string, len(e.checks))}
	code := http.StatusOK
	for name, check := range e.checks {
		if err := check(ctx); err != nil {
			status.Status = "degraded"
			status.Checks[name] = err.Error()
			code = http.StatusServiceUnavailable
			continue
		}
		status.Checks[name] = "ok"
	}
	return c.JSON(code, status)
}
