package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

type User struct {
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	Role      Role      `json:"role"`
	Active    bool      `json:"active"`
	Salt      string    `json:"salt"`
	PassHash  string    `json:"pass_hash"`
	CreatedAt time.Time `json:"created_at"`
	LastLogin time.Time `json:"last_login"`
}

// Public is the wire shape of a user, credentials stripped.
type Public struct {
	Username     string    `json:"username"`
	Email        string    `json:"email,omitempty"`
	Role         Role      `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	LastLogin    time.Time `json:"last_login"`
	AssignedUAVs []string  `json:"assigned_uavs"`
}

type Assignment struct {
	Username   string    `json:"username"`
	UAVSupi    string    `json:"uav_supi"`
	AssignedBy string    `json:"assigned_by"`
	AssignedAt time.Time `json:"assigned_at"`
	Active     bool      `json:"is_active"`
}

type session struct {
	Username  string
	ExpiresAt time.Time
}

var (
	ErrUserExists    = errors.New("username already exists")
	ErrUserNotFound  = errors.New("user not found")
	ErrBadCredential = errors.New("invalid username or password")
	ErrInvalidRole   = errors.New("invalid role")
	ErrSelfChange    = errors.New("cannot change own account")
)

// Store keeps users, UAV assignments and sessions. Users and assignments
// are snapshotted to users.json on every mutation; login history and the
// activity trail are append-only JSONL files.
type Store struct {
	mu          sync.Mutex
	usersPath   string
	loginsPath  string
	activityLog string
	sessionTTL  time.Duration

	users       map[string]*User
	assignments []Assignment
	sessions    map[string]session

	now func() time.Time
}

type snapshot struct {
	Users       []*User      `json:"users"`
	Assignments []Assignment `json:"assignments"`
}

func NewStore(dataDir string, sessionTTL time.Duration) (*Store, error) {
	if dataDir == "" {
		dataDir = "./data/auth"
	}
	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	s := &Store{
		usersPath:   filepath.Join(dataDir, "users.json"),
		loginsPath:  filepath.Join(dataDir, "logins.log"),
		activityLog: filepath.Join(dataDir, "activity.log"),
		sessionTTL:  sessionTTL,
		users:       map[string]*User{},
		sessions:    map[string]session{},
		now:         time.Now,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.usersPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode users: %w", err)
	}
	for _, u := range snap.Users {
		s.users[u.Username] = u
	}
	s.assignments = snap.Assignments
	return nil
}

// persist writes the snapshot; callers hold the lock.
func (s *Store) persist() error {
	snap := snapshot{Assignments: s.assignments}
	for _, u := range s.users {
		snap.Users = append(snap.Users, u)
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.usersPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.usersPath)
}

func hashPassword(password, salt string) string {
	sum := sha256.Sum256([]byte(password + salt))
	return hex.EncodeToString(sum[:])
}

// Register creates a user. When seedAdmin is set the very first account
// becomes an admin, so a fresh deployment is manageable.
func (s *Store) Register(username, password, email string, role Role, seedAdmin bool) error {
	if len(username) < 3 {
		return errors.New("username must be at least 3 characters")
	}
	if len(password) < 6 {
		return errors.New("password must be at least 6 characters")
	}
	if role != RoleAdmin && role != RoleUser {
		return ErrInvalidRole
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; ok {
		return ErrUserExists
	}
	if seedAdmin && len(s.users) == 0 {
		role = RoleAdmin
	}
	salt := uuid.NewString()
	s.users[username] = &User{
		Username:  username,
		Email:     email,
		Role:      role,
		Active:    true,
		Salt:      salt,
		PassHash:  hashPassword(password, salt),
		CreatedAt: s.now().UTC(),
	}
	if err := s.persist(); err != nil {
		delete(s.users, username)
		return err
	}
	s.appendActivity("system", "USER_REGISTERED", username, fmt.Sprintf("new user registered with role: %s", role))
	return nil
}

// Login verifies credentials, records the attempt and returns a session
// token on success.
func (s *Store) Login(username, password, ip, userAgent string) (string, Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[username]
	success := ok && u.Active && u.PassHash == hashPassword(password, u.Salt)
	s.appendLogin(username, ip, userAgent, success)
	if !success {
		return "", "", ErrBadCredential
	}

	u.LastLogin = s.now().UTC()
	_ = s.persist()

	token := uuid.NewString()
	s.sessions[token] = session{Username: username, ExpiresAt: s.now().Add(s.sessionTTL)}
	return token, u.Role, nil
}

// Lookup resolves a session token to its user, dropping the session if it
// has expired.
func (s *Store) Lookup(token string) (*User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return nil, false
	}
	if s.now().After(sess.ExpiresAt) {
		delete(s.sessions, token)
		return nil, false
	}
	u, ok := s.users[sess.Username]
	if !ok || !u.Active {
		return nil, false
	}
	return u, true
}

func (s *Store) Logout(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[token]; ok {
		delete(s.sessions, token)
		s.appendActivity(sess.Username, "LOGOUT", "", "user logged out")
	}
}

func (s *Store) IsAdmin(username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	return ok && u.Role == RoleAdmin
}

func (s *Store) Users() []Public {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Public, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, s.publicLocked(u))
	}
	return out
}

func (s *Store) UserInfo(username string) (Public, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return Public{}, ErrUserNotFound
	}
	return s.publicLocked(u), nil
}

func (s *Store) publicLocked(u *User) Public {
	uavs := []string{}
	for _, a := range s.assignments {
		if a.Active && a.Username == u.Username {
			uavs = append(uavs, a.UAVSupi)
		}
	}
	return Public{
		Username:     u.Username,
		Email:        u.Email,
		Role:         u.Role,
		Active:       u.Active,
		CreatedAt:    u.CreatedAt,
		LastLogin:    u.LastLogin,
		AssignedUAVs: uavs,
	}
}

func (s *Store) UpdateRole(admin, target string, role Role) error {
	if role != RoleAdmin && role != RoleUser {
		return ErrInvalidRole
	}
	if admin == target {
		return ErrSelfChange
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[target]
	if !ok {
		return ErrUserNotFound
	}
	u.Role = role
	if err := s.persist(); err != nil {
		return err
	}
	s.appendActivity(admin, "ROLE_CHANGED", target, fmt.Sprintf("role changed to: %s", role))
	return nil
}

// ToggleStatus flips the target account's active flag and returns the new
// state.
func (s *Store) ToggleStatus(admin, target string) (bool, error) {
	if admin == target {
		return false, ErrSelfChange
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[target]
	if !ok {
		return false, ErrUserNotFound
	}
	u.Active = !u.Active
	if err := s.persist(); err != nil {
		return false, err
	}
	state := "disabled"
	if u.Active {
		state = "enabled"
	}
	s.appendActivity(admin, "USER_STATUS_CHANGED", target, "account "+state)
	return u.Active, nil
}

func (s *Store) UserCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, u := range s.users {
		if u.Active {
			n++
		}
	}
	return n
}

type Stats struct {
	TotalUsers       int `json:"total_users"`
	TotalAdmins      int `json:"total_admins"`
	ActiveSessions   int `json:"active_sessions"`
	TotalAssignments int `json:"total_assignments"`
}

func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{}
	for _, u := range s.users {
		st.TotalUsers++
		if u.Role == RoleAdmin {
			st.TotalAdmins++
		}
	}
	for _, sess := range s.sessions {
		if s.now().Before(sess.ExpiresAt) {
			st.ActiveSessions++
		}
	}
	for _, a := range s.assignments {
		if a.Active {
			st.TotalAssignments++
		}
	}
	return st
}
