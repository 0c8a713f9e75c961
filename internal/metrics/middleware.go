package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/domain"
)

// Middleware records HTTP request duration and count, labelled by route pattern.
func (r *Recorder) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			var fe *fiber.Error
			var appErr *domain.AppError
			switch {
			case errors.As(err, &appErr):
				status = appErr.StatusCode
			case errors.As(err, &fe):
				status = fe.Code
			}
		}

		path := c.Route().Path
		if path == "" {
			path = "unknown"
		}
		labels := []string{c.Method(), path, strconv.Itoa(status)}

		r.httpRequestLatency.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
		r.httpRequestsTotal.WithLabelValues(labels...).Inc()
		return err
	}
}

// Handler serves the registry in the Prometheus text format.
func Handler(gatherer prometheus.Gatherer) fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}
