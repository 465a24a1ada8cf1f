package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"flightledger/internal/auth"
	"flightledger/internal/chain"
	"flightledger/internal/ledger"
	"flightledger/internal/telemetry"
)

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{"ok": true})
}

func (s *Server) listFlights(c echo.Context) error {
	files, err := s.ledger.ListArchives()
	if err != nil {
		return errJSON(c, http.StatusInternalServerError, "cannot list archives")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"flights": files})
}

// getLog returns an archived chain together with its verification verdict.
// Non-admins may only open flights of UAVs assigned to them.
func (s *Server) getLog(c echo.Context) error {
	path, err := s.ledger.ArchivePath(c.Param("filename"))
	if err != nil {
		return errJSON(c, http.StatusBadRequest, "invalid filename")
	}
	verdict, blocks, err := s.verdicts.Verify(path)
	switch {
	case errors.Is(err, chain.ErrMalformedBlock):
		return errJSON(c, http.StatusUnprocessableEntity, err.Error())
	case err != nil:
		return errJSON(c, http.StatusNotFound, "flight log not found")
	}

	u := currentUser(c)
	if u.Role != auth.RoleAdmin && len(blocks) > 0 {
		supi := flightSupi(blocks[0])
		if !s.users.IsAssigned(u.Username, supi) {
			return errJSON(c, http.StatusForbidden, "not assigned to this UAV")
		}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"verification": verdict,
		"chain":        blocks,
	})
}

func flightSupi(genesis chain.Block) string {
	for _, ev := range genesis.EventLog {
		if ev.UAVSupi != "" {
			return ev.UAVSupi
		}
	}
	for _, tx := range genesis.Transactions {
		if tx.UAVSupi != "" {
			return tx.UAVSupi
		}
	}
	return ""
}

type startFlightRequest struct {
	UAVSupi string `json:"uav_supi"`
}

func (s *Server) startFlight(c echo.Context) error {
	var req startFlightRequest
	if err := c.Bind(&req); err != nil || req.UAVSupi == "" {
		return errJSON(c, http.StatusBadRequest, "uav_supi required")
	}
	u := currentUser(c)
	if u.Role != auth.RoleAdmin && !s.users.IsAssigned(u.Username, req.UAVSupi) {
		return errJSON(c, http.StatusForbidden, "not assigned to this UAV")
	}
	flightID, genesis, err := s.ledger.StartFlight(req.UAVSupi, u.Username)
	if errors.Is(err, ledger.ErrUnknownUAV) {
		return errJSON(c, http.StatusBadRequest, "unknown UAV")
	}
	if err != nil {
		return errJSON(c, http.StatusInternalServerError, "cannot start flight")
	}
	s.users.LogActivity(u.Username, "FLIGHT_STARTED", req.UAVSupi, "flight "+strconv.FormatInt(flightID, 10))
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"flight_id":    flightID,
		"genesis_hash": genesis.CurrentHash,
	})
}

type authenticateRequest struct {
	FlightID int64  `json:"flight_id"`
	UAVSupi  string `json:"uav_supi"`
	Step     string `json:"step"`
	ResStar  string `json:"res_star"`
}

// authenticate drives the two-step challenge/response flow. Step
// "challenge" issues (RAND, AUTN); step "response" checks RES* and returns
// the derived session key.
func (s *Server) authenticate(c echo.Context) error {
	var req authenticateRequest
	if err := c.Bind(&req); err != nil {
		return errJSON(c, http.StatusBadRequest, "invalid request body")
	}
	if !s.flightAccessAllowed(c, req.FlightID) {
		return errJSON(c, http.StatusForbidden, "not assigned to this UAV")
	}

	switch req.Step {
	case "challenge":
		ch, err := s.ledger.BeginAuth(req.FlightID, req.UAVSupi)
		if errors.Is(err, ledger.ErrUnknownFlight) || errors.Is(err, ledger.ErrUnknownUAV) {
			return errJSON(c, http.StatusNotFound, err.Error())
		}
		if err != nil {
			return errJSON(c, http.StatusBadRequest, err.Error())
		}
		return c.JSON(http.StatusOK, map[string]interface{}{"rand": ch.Rand, "autn": ch.AUTN})

	case "response":
		key, err := s.ledger.CompleteAuth(req.FlightID, req.UAVSupi, req.ResStar)
		switch {
		case errors.Is(err, ledger.ErrUnknownFlight):
			return errJSON(c, http.StatusNotFound, err.Error())
		case errors.Is(err, ledger.ErrNoPendingAuth):
			return errJSON(c, http.StatusConflict, err.Error())
		case errors.Is(err, ledger.ErrAuthMismatch):
			return errJSON(c, http.StatusUnauthorized, "authentication failed")
		case err != nil:
			return errJSON(c, http.StatusInternalServerError, "authentication error")
		}
		return c.JSON(http.StatusOK, map[string]interface{}{"session_key": key})

	default:
		return errJSON(c, http.StatusBadRequest, "step must be challenge or response")
	}
}

type telemetryRequest struct {
	FlightID int64   `json:"flight_id"`
	XPos     float64 `json:"x_pos"`
	YPos     float64 `json:"y_pos"`
	ZAlt     float64 `json:"z_alt"`
	VelMag   float64 `json:"vel_mag"`
}

// logTelemetry pools one sample and runs the contract rules over it; any
// breaches are reported back and retained in the violation history.
func (s *Server) logTelemetry(c echo.Context) error {
	var req telemetryRequest
	if err := c.Bind(&req); err != nil {
		return errJSON(c, http.StatusBadRequest, "invalid request body")
	}
	if !s.flightAccessAllowed(c, req.FlightID) {
		return errJSON(c, http.StatusForbidden, "not assigned to this UAV")
	}
	info, err := s.ledger.Info(req.FlightID)
	if errors.Is(err, ledger.ErrUnknownFlight) {
		return errJSON(c, http.StatusNotFound, "unknown flight")
	}

	sample := chain.Telemetry{XPos: req.XPos, YPos: req.YPos, ZAlt: req.ZAlt, VelMag: req.VelMag}
	violations := s.contracts.EvaluateAll(req.FlightID, sample, info.StartTime)

	hash, err := s.ledger.Submit(req.FlightID, chain.Transaction{
		Kind:      chain.TxTelemetry,
		UAVSupi:   info.UAVSupi,
		Telemetry: &sample,
	})
	if err != nil {
		return errJSON(c, http.StatusInternalServerError, "cannot record telemetry")
	}

	resp := map[string]interface{}{"pooled": hash == "", "violations": violations}
	if hash != "" {
		resp["block_hash"] = hash
	}
	return c.JSON(http.StatusOK, resp)
}

type endFlightRequest struct {
	FlightID int64 `json:"flight_id"`
}

func (s *Server) endFlight(c echo.Context) error {
	var req endFlightRequest
	if err := c.Bind(&req); err != nil {
		return errJSON(c, http.StatusBadRequest, "invalid request body")
	}
	if !s.flightAccessAllowed(c, req.FlightID) {
		return errJSON(c, http.StatusForbidden, "not assigned to this UAV")
	}
	if err := s.ledger.EndFlight(req.FlightID); err != nil {
		if errors.Is(err, ledger.ErrUnknownFlight) {
			return errJSON(c, http.StatusNotFound, "unknown flight")
		}
		return errJSON(c, http.StatusInternalServerError, "cannot end flight")
	}
	u := currentUser(c)
	s.users.LogActivity(u.Username, "FLIGHT_ENDED", "", "flight "+strconv.FormatInt(req.FlightID, 10))
	return c.JSON(http.StatusOK, map[string]string{"message": "flight archived"})
}

// flightAccessAllowed reports whether the caller may act on the active
// flight: admins always, others only when assigned to its UAV. Unknown
// flights are allowed through so the handler surfaces its own status.
func (s *Server) flightAccessAllowed(c echo.Context, flightID int64) bool {
	u := currentUser(c)
	if u.Role == auth.RoleAdmin {
		return true
	}
	info, err := s.ledger.Info(flightID)
	if err != nil {
		return true
	}
	return s.users.IsAssigned(u.Username, info.UAVSupi)
}

func (s *Server) activeFlights(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{"flights": s.ledger.ActiveFlights()})
}

func (s *Server) flightActivity(c echo.Context) error {
	flightID, err := strconv.ParseInt(c.Param("flight_id"), 10, 64)
	if err != nil {
		return errJSON(c, http.StatusBadRequest, "invalid flight id")
	}
	if !s.flightAccessAllowed(c, flightID) {
		return errJSON(c, http.StatusForbidden, "not assigned to this UAV")
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	entries, err := s.ledger.FlightActivity(flightID, limit)
	if errors.Is(err, ledger.ErrUnknownFlight) {
		return errJSON(c, http.StatusNotFound, "unknown flight")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"activity": entries})
}

func (s *Server) contractStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.contracts.Stats())
}

func (s *Server) contractViolations(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	return c.JSON(http.StatusOK, map[string]interface{}{"violations": s.contracts.Violations(limit)})
}

func (s *Server) telemetrySummary(c echo.Context) error {
	summary, err := telemetry.Summarize(s.ledger.ArchiveDir())
	if err != nil {
		return errJSON(c, http.StatusInternalServerError, "cannot summarize archives")
	}
	return c.JSON(http.StatusOK, summary)
}

func (s *Server) systemStatus(c echo.Context) error {
	files, _ := s.ledger.ListArchives()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":           "online",
		"uptime_seconds":   int64(time.Since(s.started).Seconds()),
		"active_flights":   len(s.ledger.ActiveFlights()),
		"archived_flights": len(files),
		"registered_uavs":  len(s.ledger.UAVs()),
	})
}

func (s *Server) userStats(c echo.Context) error {
	u := currentUser(c)
	files, err := s.ledger.ListArchives()
	if err != nil {
		return errJSON(c, http.StatusInternalServerError, "cannot list archives")
	}
	uavs := s.users.UserUAVs(u.Username)
	assigned := map[string]bool{}
	for _, supi := range uavs {
		assigned[supi] = true
	}
	flights, blocks := 0, 0
	for _, f := range files {
		if u.Role == auth.RoleAdmin || assigned[f.UAVSupi] {
			flights++
			blocks += f.Blocks
		}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"username":      u.Username,
		"role":          u.Role,
		"assigned_uavs": len(uavs),
		"flights":       flights,
		"blocks":        blocks,
	})
}
