// Package dashboard serves the read-only query API behind the forecasting dashboard.
package dashboard

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tigerroll/weatherflow/internal/config"
	"github.com/tigerroll/weatherflow/internal/domain/entity"
	"github.com/tigerroll/weatherflow/internal/repository"
	"github.com/tigerroll/weatherflow/pkg/batch/adapter/database"
	"github.com/tigerroll/weatherflow/pkg/batch/support/util/exception"
	"github.com/tigerroll/weatherflow/pkg/batch/support/util/logger"
)

var validate = validator.New()

// Server owns the fiber app.
type Server struct {
	app  *fiber.App
	conn database.DBConnection
	repo *repository.WeatherRepository
	cfg  config.DashboardConfig
	// now is replaced in tests.
	now func() time.Time
}

// NewServer registers every route. gatherer backs /metrics; nil serves the default registry.
func NewServer(conn database.DBConnection, repo *repository.WeatherRepository, cfg config.DashboardConfig, gatherer prometheus.Gatherer) *Server {
	s := &Server{conn: conn, repo: repo, cfg: cfg, now: time.Now}
	s.app = fiber.New(fiber.Config{
		AppName:               "weatherflow-dashboard",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          30 * time.Second,
		ErrorHandler:          errorHandler,
	})
	s.app.Use(fiberlogger.New(fiberlogger.Config{Output: logger.Writer()}))
	s.app.Use(recover.New())

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	s.app.Get("/healthz", s.health)

	api := s.app.Group("/api")
	api.Get("/history", s.history)
	api.Get("/forecasts", s.forecasts)
	api.Get("/monitoring", s.monitoring)
	api.Get("/locations", s.locations)
	return s
}

// App exposes the fiber app, e.g. for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run listens on the configured address until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Dashboard listening on %s.", s.cfg.Listen)
		errCh <- s.app.Listen(s.cfg.Listen)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
		return err
	}
	logger.Infof("Dashboard stopped.")
	return nil
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	} else {
		logger.Errorf("Dashboard request %s failed: %v", c.OriginalURL(), err)
		err = errors.New(exception.ExtractErrorMessage(err))
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}

// dateQuery holds the query parameters shared by the read endpoints.
type dateQuery struct {
	Date       string `query:"date" validate:"omitempty,datetime=2006-01-02"`
	LocationID int64  `query:"location_id" validate:"gte=0"`
}

func (s *Server) bind(c *fiber.Ctx) (time.Time, dateQuery, error) {
	var q dateQuery
	if err := c.QueryParser(&q); err != nil {
		return time.Time{}, q, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(q); err != nil {
		return time.Time{}, q, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if q.Date == "" {
		return entity.Day(s.now().UTC()), q, nil
	}
	d, _ := time.Parse(time.DateOnly, q.Date)
	return d, q, nil
}

func (s *Server) health(c *fiber.Ctx) error {
	sqlDB, err := s.conn.GetSQLDB()
	if err == nil {
		err = sqlDB.PingContext(c.UserContext())
	}
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable", "database": s.conn.Name()})
	}
	return c.JSON(fiber.Map{"status": "ok", "database": s.conn.Name()})
}

func (s *Server) history(c *fiber.Ctx) error {
	d, _, err := s.bind(c)
	if err != nil {
		return err
	}
	from := d.AddDate(0, 0, -s.cfg.HistoryDays)
	rows, err := s.repo.DailyRange(c.UserContext(), s.conn.DB(), from, d)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"from": from.Format(time.DateOnly), "to": d.Format(time.DateOnly), "rows": rows})
}

func (s *Server) forecasts(c *fiber.Ctx) error {
	d, _, err := s.bind(c)
	if err != nil {
		return err
	}
	from, to := d.AddDate(0, 0, -s.cfg.ForecastPastDays), d.AddDate(0, 0, s.cfg.ForecastFutureDays)
	rows, err := s.repo.ForecastRange(c.UserContext(), s.conn.DB(), from, to)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"from": from.Format(time.DateOnly), "to": to.Format(time.DateOnly), "rows": rows})
}

func (s *Server) monitoring(c *fiber.Ctx) error {
	d, q, err := s.bind(c)
	if err != nil {
		return err
	}
	from := d
	if c.Query("date") == "" {
		from = d.AddDate(0, 0, -s.cfg.HistoryDays)
	}
	rows, err := s.repo.MonitoringRange(c.UserContext(), s.conn.DB(), q.LocationID, from, d)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"location_id": q.LocationID, "from": from.Format(time.DateOnly), "to": d.Format(time.DateOnly), "rows": rows})
}

func (s *Server) locations(c *fiber.Ctx) error {
	ids, err := s.repo.Locations(c.UserContext(), s.conn.DB())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"locations": ids})
}
