package room

// WebinarConfigSnapshot returns a copy of the room's webinar configuration.
func (r *Room) WebinarConfigSnapshot() WebinarConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.webinarConfig
}

// WebinarUpdate is a partial update to WebinarConfig; nil fields are left
// unchanged, matching §4.4's webinar:updateConfig payload semantics.
type WebinarUpdate struct {
	Enabled      *bool
	PublicAccess *bool
	Locked       *bool
	MaxAttendees *int
	InviteCode   *string
}

// UpdateWebinarConfig applies a partial update (admin-only at the signaling
// layer) and returns the resulting snapshot.
func (r *Room) UpdateWebinarConfig(u WebinarUpdate) WebinarConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u.Enabled != nil {
		r.webinarConfig.Enabled = *u.Enabled
	}
	if u.PublicAccess != nil {
		r.webinarConfig.PublicAccess = *u.PublicAccess
	}
	if u.Locked != nil {
		r.webinarConfig.Locked = *u.Locked
	}
	if u.MaxAttendees != nil {
		r.webinarConfig.MaxAttendees = *u.MaxAttendees
	}
	if u.InviteCode != nil {
		if *u.InviteCode == "" {
			r.webinarConfig.InviteCodeHash = ""
		} else {
			r.webinarConfig.InviteCodeHash = hashInviteCode(*u.InviteCode)
		}
	}
	return r.webinarConfig
}

// RotateWebinarLink increments LinkVersion, invalidating every previously
// minted signed link token (spec.md §6). Returns the new version.
func (r *Room) RotateWebinarLink() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.webinarConfig.LinkVersion++
	return r.webinarConfig.LinkVersion
}

// WebinarLinkVersion returns the current link version without mutating it,
// for verifying a previously-minted token.
func (r *Room) WebinarLinkVersion() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.webinarConfig.LinkVersion
}
