package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"flightledger/internal/auth"
)

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

func (s *Server) register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return errJSON(c, http.StatusBadRequest, "invalid request body")
	}
	role := auth.Role(req.Role)
	if role == "" {
		role = auth.RoleUser
	}
	err := s.users.Register(req.Username, req.Password, req.Email, role, s.cfg.Auth.SeedAdmin)
	switch {
	case errors.Is(err, auth.ErrUserExists):
		return errJSON(c, http.StatusConflict, err.Error())
	case err != nil:
		return errJSON(c, http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, map[string]string{"message": "user registered"})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return errJSON(c, http.StatusBadRequest, "invalid request body")
	}
	token, role, err := s.users.Login(req.Username, req.Password, c.RealIP(), c.Request().UserAgent())
	if err != nil {
		return errJSON(c, http.StatusUnauthorized, "invalid username or password")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"token":    token,
		"username": req.Username,
		"role":     role,
	})
}

func (s *Server) logout(c echo.Context) error {
	s.users.Logout(bearerToken(c))
	return c.JSON(http.StatusOK, map[string]string{"message": "logged out"})
}

func (s *Server) verifyToken(c echo.Context) error {
	u := currentUser(c)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"valid":    true,
		"username": u.Username,
		"role":     u.Role,
	})
}

func (s *Server) profile(c echo.Context) error {
	info, err := s.users.UserInfo(currentUser(c).Username)
	if err != nil {
		return errJSON(c, http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, info)
}

func (s *Server) myUAVs(c echo.Context) error {
	u := currentUser(c)
	uavs := s.users.UserUAVs(u.Username)
	if u.Role == auth.RoleAdmin {
		uavs = s.ledger.UAVs()
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"uavs": uavs})
}

// myFlights lists the archives the caller may open: all of them for an
// admin, otherwise only flights of UAVs assigned to the user.
func (s *Server) myFlights(c echo.Context) error {
	files, err := s.ledger.ListArchives()
	if err != nil {
		return errJSON(c, http.StatusInternalServerError, "cannot list archives")
	}
	u := currentUser(c)
	if u.Role != auth.RoleAdmin {
		visible := files[:0]
		for _, f := range files {
			if s.users.IsAssigned(u.Username, f.UAVSupi) {
				visible = append(visible, f)
			}
		}
		files = visible
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"flights": files})
}
