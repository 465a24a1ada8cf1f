package auth

import (
	"bufio"
	"encoding/json"
	"os"
	"slices"
	"time"
)

type LoginRecord struct {
	Username  string    `json:"username"`
	IP        string    `json:"ip_address,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	Success   bool      `json:"success"`
	At        time.Time `json:"at"`
}

type ActivityRecord struct {
	Username string    `json:"username"`
	Action   string    `json:"action"`
	Target   string    `json:"target,omitempty"`
	Details  string    `json:"details,omitempty"`
	At       time.Time `json:"at"`
}

// LogActivity appends one entry to the audit trail.
func (s *Store) LogActivity(username, action, target, details string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendActivity(username, action, target, details)
}

// appendActivity and appendLogin run with the lock held; a failed append is
// dropped rather than failing the caller's operation.
func (s *Store) appendActivity(username, action, target, details string) {
	_ = appendJSONLine(s.activityLog, ActivityRecord{
		Username: username,
		Action:   action,
		Target:   target,
		Details:  details,
		At:       s.now().UTC(),
	})
}

func (s *Store) appendLogin(username, ip, userAgent string, success bool) {
	_ = appendJSONLine(s.loginsPath, LoginRecord{
		Username:  username,
		IP:        ip,
		UserAgent: userAgent,
		Success:   success,
		At:        s.now().UTC(),
	})
}

// LoginHistory returns the most recent login attempts, newest first,
// optionally filtered by username.
func (s *Store) LoginHistory(username string, limit int) ([]LoginRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var out []LoginRecord
	err := scanJSONLines(s.loginsPath, func(line []byte) error {
		var rec LoginRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return err
		}
		if username != "" && rec.Username != username {
			return nil
		}
		out = append(out, rec)
		if len(out) > limit {
			out = out[len(out)-limit:]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}

// ActivityLog returns the most recent audit entries, newest first.
func (s *Store) ActivityLog(username string, limit int) ([]ActivityRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var out []ActivityRecord
	err := scanJSONLines(s.activityLog, func(line []byte) error {
		var rec ActivityRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return err
		}
		if username != "" && rec.Username != username {
			return nil
		}
		out = append(out, rec)
		if len(out) > limit {
			out = out[len(out)-limit:]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}

func appendJSONLine(path string, v interface{}) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func scanJSONLines(path string, fn func(line []byte) error) error {
	file, err := os.OpenFile(path, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 5*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}
