package server

import (
	"context"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"

	"flightledger/internal/auth"
	"flightledger/internal/config"
	"flightledger/internal/contracts"
	"flightledger/internal/ledger"
	"flightledger/internal/logging"
)

// Server wires the auth store, ledger and contracts manager behind the
// HTTP API.
type Server struct {
	echo      *echo.Echo
	cfg       config.Config
	users     *auth.Store
	ledger    *ledger.Ledger
	contracts *contracts.Manager
	verdicts  *verdictCache
	started   time.Time
}

func New(cfg config.Config, users *auth.Store, l *ledger.Ledger, cm *contracts.Manager) (*Server, error) {
	verdicts, err := newVerdictCache(cfg.Ledger.VerdictCache)
	if err != nil {
		return nil, err
	}
	s := &Server{
		echo:      echo.New(),
		cfg:       cfg,
		users:     users,
		ledger:    l,
		contracts: cm,
		verdicts:  verdicts,
		started:   time.Now(),
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Server.ReadTimeout = cfg.Server.ReadTimeout
	s.echo.Server.WriteTimeout = cfg.Server.WriteTimeout
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	e := s.echo
	e.Use(s.requestLogger)

	e.GET("/health", s.health)

	api := e.Group("/api")
	api.POST("/register", s.register)
	api.POST("/login", s.login)
	api.POST("/logout", s.logout, s.requireAuth)
	api.GET("/verify_token", s.verifyToken, s.requireAuth)

	user := api.Group("/user", s.requireAuth)
	user.GET("/profile", s.profile)
	user.GET("/my_uavs", s.myUAVs)
	user.GET("/my_flights", s.myFlights)

	api.GET("/list_flights", s.listFlights, s.requireAuth)
	api.GET("/get_log/:filename", s.getLog, s.requireAuth)
	api.POST("/start_flight", s.startFlight, s.requireAuth)
	api.POST("/authenticate", s.authenticate, s.requireAuth)
	api.POST("/log_telemetry", s.logTelemetry, s.requireAuth)
	api.POST("/end_flight", s.endFlight, s.requireAuth)
	api.GET("/active_flights", s.activeFlights, s.requireAuth)
	api.GET("/flight_activity/:flight_id", s.flightActivity, s.requireAuth)

	admin := api.Group("/admin", s.requireAuth, s.requireAdmin)
	admin.GET("/users", s.adminUsers)
	admin.POST("/users/:username/role", s.adminUpdateRole)
	admin.POST("/users/:username/status", s.adminToggleStatus)
	admin.POST("/assign_uav", s.adminAssign)
	admin.POST("/unassign_uav", s.adminUnassign)
	admin.GET("/assignments", s.adminAssignments)
	admin.GET("/available_uavs", s.adminAvailableUAVs)
	admin.GET("/system_stats", s.adminSystemStats)
	admin.GET("/login_history", s.adminLoginHistory)
	admin.GET("/activity_log", s.adminActivityLog)
	admin.GET("/stuck_flights", s.adminStuckFlights)
	admin.POST("/flights/:flight_id/force_end", s.adminForceEnd)
	admin.POST("/reset_flights", s.adminResetFlights)

	api.GET("/contracts/stats", s.contractStats, s.requireAuth)
	api.GET("/contracts/violations", s.contractViolations, s.requireAuth)
	api.GET("/telemetry/summary", s.telemetrySummary, s.requireAuth)
	api.GET("/system_status", s.systemStatus)
	api.GET("/user_stats", s.userStats, s.requireAuth)

	api.GET("/ws/activity", s.wsActivity, s.requireAuth)
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Server.Port)
	logging.Info("listening", logging.Server, "addr", addr)
	return s.echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the routing tree for tests.
func (s *Server) Handler() *echo.Echo { return s.echo }

func errJSON(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"error": msg})
}
