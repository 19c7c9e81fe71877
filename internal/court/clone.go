package court

// Clone returns a deep copy so callers can modify the result freely.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{Tick: s.Tick}
	if s.Courts != nil {
		out.Courts = make([]Court, len(s.Courts))
		for i, c := range s.Courts {
			out.Courts[i] = c.Clone()
		}
	}
	if s.Waitlist != nil {
		out.Waitlist = make([]WaitlistEntry, len(s.Waitlist))
		for i, entry := range s.Waitlist {
			out.Waitlist[i] = entry.Clone()
		}
	}
	if s.WetCourts != nil {
		out.WetCourts = append([]int(nil), s.WetCourts...)
	}
	return out
}

// Clone returns a deep copy of the court.
func (c Court) Clone() Court {
	out := Court{}
	if c.Current != nil {
		session := c.Current.Clone()
		out.Current = &session
	}
	if c.History != nil {
		out.History = make([]ArchivedSession, len(c.History))
		for i, h := range c.History {
			h.Session = h.Session.Clone()
			out.History[i] = h
		}
	}
	return out
}

// Clone returns a deep copy of the session.
func (s Session) Clone() Session {
	s.Participants = cloneParticipants(s.Participants)
	return s
}

// Clone returns a deep copy of the waitlist entry.
func (e WaitlistEntry) Clone() WaitlistEntry {
	e.Participants = cloneParticipants(e.Participants)
	return e
}

// CloneBlocks copies a block list.
func CloneBlocks(blocks []Block) []Block {
	if blocks == nil {
		return nil
	}
	return append([]Block(nil), blocks...)
}

func cloneParticipants(in []Participant) []Participant {
	if in == nil {
		return nil
	}
	return append([]Participant(nil), in...)
}
