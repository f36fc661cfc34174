package docportal

import "context"

// resolveRole derives the role of user from the backend user record.
//
// A credential error from the lookup reports forced=true and the caller must
// log out. Any other failure falls back to the role already held for the same
// identity, else RoleUser, and keeps the identity authenticated. A missing
// record is created with RoleUser.
func (s *Store) resolveRole(ctx context.Context, user Identity) (role Role, forced bool) {
	type lookup struct {
		role  Role
		found bool
	}
	res, err := boundedCall(ctx, s.cfg.Session.RoleTimeout, func(c context.Context) (lookup, error) {
		r, found, err := s.backend.GetRole(c, user.ID)
		return lookup{role: r, found: found}, err
	})

	switch {
	case IsCredentialError(err):
		s.logger.Warn("role lookup rejected credential", "user_id", user.ID, "error", err)
		return RoleUnknown, true
	case err != nil:
		fallback := s.fallbackRole(user)
		s.metrics.Inc(MetricRoleFallback)
		s.logger.Warn("role lookup failed, using fallback role",
			"user_id", user.ID,
			"fallback", string(fallback),
			"error", err,
		)
		s.emitAudit(ctx, AuditRoleFallback, &user, fallback, false, err, nil)
		return fallback, false
	case !res.found:
		if insErr := s.backend.InsertUser(ctx, user, RoleUser); insErr != nil {
			s.logger.Warn("creating user record failed", "user_id", user.ID, "error", insErr)
		} else {
			s.metrics.Inc(MetricRoleRecordInserted)
		}
		return RoleUser, false
	}

	if res.role == RoleUnknown || res.role == "" {
		return RoleUser, false
	}
	return res.role, false
}

func (s *Store) fallbackRole(user Identity) Role {
	cur := s.Snapshot()
	if cur.Identity != nil && cur.Identity.ID == user.ID && (cur.Role == RoleAdmin || cur.Role == RoleUser) {
		return cur.Role
	}
	return RoleUser
}
