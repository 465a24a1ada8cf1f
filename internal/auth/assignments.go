package auth

import "fmt"

// Assign grants a user access to a UAV. Re-assigning an already active
// pairing is a no-op; an inactive one is revived.
func (s *Store) Assign(admin, username, uavSupi string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; !ok {
		return ErrUserNotFound
	}
	for i, a := range s.assignments {
		if a.Username == username && a.UAVSupi == uavSupi {
			if a.Active {
				return nil
			}
			s.assignments[i].Active = true
			s.assignments[i].AssignedBy = admin
			s.assignments[i].AssignedAt = s.now().UTC()
			if err := s.persist(); err != nil {
				return err
			}
			s.appendActivity(admin, "UAV_ASSIGNED", username, fmt.Sprintf("UAV %s assigned", uavSupi))
			return nil
		}
	}
	s.assignments = append(s.assignments, Assignment{
		Username:   username,
		UAVSupi:    uavSupi,
		AssignedBy: admin,
		AssignedAt: s.now().UTC(),
		Active:     true,
	})
	if err := s.persist(); err != nil {
		return err
	}
	s.appendActivity(admin, "UAV_ASSIGNED", username, fmt.Sprintf("UAV %s assigned", uavSupi))
	return nil
}

func (s *Store) Unassign(admin, username, uavSupi string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, a := range s.assignments {
		if a.Username == username && a.UAVSupi == uavSupi && a.Active {
			s.assignments[i].Active = false
			if err := s.persist(); err != nil {
				return err
			}
			s.appendActivity(admin, "UAV_UNASSIGNED", username, fmt.Sprintf("UAV %s unassigned", uavSupi))
			return nil
		}
	}
	return fmt.Errorf("no active assignment of %s to %s", uavSupi, username)
}

// UserUAVs lists the SUPIs actively assigned to a user.
func (s *Store) UserUAVs(username string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []string{}
	for _, a := range s.assignments {
		if a.Active && a.Username == username {
			out = append(out, a.UAVSupi)
		}
	}
	return out
}

func (s *Store) Assignments() []Assignment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Assignment, len(s.assignments))
	copy(out, s.assignments)
	return out
}

func (s *Store) IsAssigned(username, uavSupi string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.assignments {
		if a.Active && a.Username == username && a.UAVSupi == uavSupi {
			return true
		}
	}
	return false
}
