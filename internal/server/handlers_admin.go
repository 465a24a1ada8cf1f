package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"flightledger/internal/auth"
	"flightledger/internal/ledger"
)

func (s *Server) adminUsers(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{"users": s.users.Users()})
}

type roleRequest struct {
	Role string `json:"role"`
}

func (s *Server) adminUpdateRole(c echo.Context) error {
	var req roleRequest
	if err := c.Bind(&req); err != nil {
		return errJSON(c, http.StatusBadRequest, "invalid request body")
	}
	err := s.users.UpdateRole(currentUser(c).Username, c.Param("username"), auth.Role(req.Role))
	switch {
	case errors.Is(err, auth.ErrUserNotFound):
		return errJSON(c, http.StatusNotFound, err.Error())
	case errors.Is(err, auth.ErrSelfChange), errors.Is(err, auth.ErrInvalidRole):
		return errJSON(c, http.StatusBadRequest, err.Error())
	case err != nil:
		return errJSON(c, http.StatusInternalServerError, "cannot update role")
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "role updated"})
}

func (s *Server) adminToggleStatus(c echo.Context) error {
	active, err := s.users.ToggleStatus(currentUser(c).Username, c.Param("username"))
	switch {
	case errors.Is(err, auth.ErrUserNotFound):
		return errJSON(c, http.StatusNotFound, err.Error())
	case errors.Is(err, auth.ErrSelfChange):
		return errJSON(c, http.StatusBadRequest, err.Error())
	case err != nil:
		return errJSON(c, http.StatusInternalServerError, "cannot toggle status")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"active": active})
}

type assignRequest struct {
	Username string `json:"username"`
	UAVSupi  string `json:"uav_supi"`
}

func (s *Server) adminAssign(c echo.Context) error {
	var req assignRequest
	if err := c.Bind(&req); err != nil {
		return errJSON(c, http.StatusBadRequest, "invalid request body")
	}
	if !s.ledger.KnownUAV(req.UAVSupi) {
		return errJSON(c, http.StatusBadRequest, "unknown UAV")
	}
	err := s.users.Assign(currentUser(c).Username, req.Username, req.UAVSupi)
	if errors.Is(err, auth.ErrUserNotFound) {
		return errJSON(c, http.StatusNotFound, err.Error())
	}
	if err != nil {
		return errJSON(c, http.StatusInternalServerError, "cannot assign UAV")
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "UAV assigned"})
}

func (s *Server) adminUnassign(c echo.Context) error {
	var req assignRequest
	if err := c.Bind(&req); err != nil {
		return errJSON(c, http.StatusBadRequest, "invalid request body")
	}
	err := s.users.Unassign(currentUser(c).Username, req.Username, req.UAVSupi)
	if err != nil {
		return errJSON(c, http.StatusNotFound, "assignment not found")
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "UAV unassigned"})
}

func (s *Server) adminAssignments(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{"assignments": s.users.Assignments()})
}

func (s *Server) adminAvailableUAVs(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{"uavs": s.ledger.UAVs()})
}

func (s *Server) adminSystemStats(c echo.Context) error {
	files, err := s.ledger.ListArchives()
	if err != nil {
		return errJSON(c, http.StatusInternalServerError, "cannot list archives")
	}
	blocks := 0
	for _, f := range files {
		blocks += f.Blocks
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"auth":             s.users.Stats(),
		"contracts":        s.contracts.Stats(),
		"active_flights":   len(s.ledger.ActiveFlights()),
		"archived_flights": len(files),
		"archived_blocks":  blocks,
	})
}

func (s *Server) adminLoginHistory(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	records, err := s.users.LoginHistory(c.QueryParam("username"), limit)
	if err != nil {
		return errJSON(c, http.StatusInternalServerError, "cannot read login history")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"logins": records})
}

func (s *Server) adminActivityLog(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	records, err := s.users.ActivityLog(c.QueryParam("username"), limit)
	if err != nil {
		return errJSON(c, http.StatusInternalServerError, "cannot read activity log")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"activity": records})
}

func (s *Server) adminStuckFlights(c echo.Context) error {
	stuck, err := s.ledger.StuckFlights(s.cfg.Ledger.StuckAfter)
	if err != nil {
		return errJSON(c, http.StatusInternalServerError, "cannot scan active ledgers")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"stuck_flights": stuck})
}

func (s *Server) adminForceEnd(c echo.Context) error {
	flightID, err := strconv.ParseInt(c.Param("flight_id"), 10, 64)
	if err != nil {
		return errJSON(c, http.StatusBadRequest, "invalid flight id")
	}
	if err := s.ledger.ForceEnd(flightID); err != nil {
		if errors.Is(err, ledger.ErrUnknownFlight) {
			return errJSON(c, http.StatusNotFound, "unknown flight")
		}
		return errJSON(c, http.StatusInternalServerError, "cannot force end flight")
	}
	s.users.LogActivity(currentUser(c).Username, "FLIGHT_FORCE_ENDED", "", "flight "+strconv.FormatInt(flightID, 10))
	return c.JSON(http.StatusOK, map[string]string{"message": "flight archived"})
}

func (s *Server) adminResetFlights(c echo.Context) error {
	report, err := s.ledger.Reset()
	if err != nil {
		return errJSON(c, http.StatusInternalServerError, "reset failed: "+err.Error())
	}
	s.users.LogActivity(currentUser(c).Username, "FLIGHTS_RESET", "", "backup: "+report.BackupDir)
	return c.JSON(http.StatusOK, report)
}
