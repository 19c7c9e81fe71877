package court

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

var jsonNull = []byte("null")

// flexTime accepts RFC 3339 strings, epoch milliseconds and null.
type flexTime time.Time

func newFlexTime(t time.Time) *flexTime {
	if t.IsZero() {
		return nil
	}
	ft := flexTime(t)
	return &ft
}

func (f *flexTime) time() time.Time {
	if f == nil {
		return time.Time{}
	}
	return time.Time(*f)
}

func (f flexTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(f).UTC().Format(time.RFC3339Nano))
}

func (f *flexTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, jsonNull) {
		*f = flexTime{}
		return nil
	}
	if data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		if raw == "" {
			*f = flexTime{}
			return nil
		}
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return fmt.Errorf("court: invalid timestamp %q: %w", raw, err)
		}
		*f = flexTime(t)
		return nil
	}
	ms, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("court: invalid timestamp %s: %w", data, err)
	}
	*f = flexTime(time.UnixMilli(ms).UTC())
	return nil
}

// MarshalJSON writes the participant as an object.
func (p Participant) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name string `json:"name"`
		ID   string `json:"memberId,omitempty"`
	}{Name: p.Name, ID: p.ID})
}

// UnmarshalJSON accepts a bare name string or an object using any of the
// historical field names.
func (p *Participant) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		*p = Participant{Name: name}
		return nil
	}
	var wire struct {
		Name       string `json:"name"`
		PlayerName string `json:"playerName"`
		FullName   string `json:"fullName"`
		MemberID   string `json:"memberId"`
		ID         string `json:"id"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*p = Participant{Name: firstNonEmpty(wire.Name, wire.PlayerName, wire.FullName), ID: firstNonEmpty(wire.MemberID, wire.ID)}
	return nil
}

type sessionWire struct {
	Players      []Participant `json:"players"`
	Participants []Participant `json:"participants,omitempty"`
	Guests       int           `json:"guests,omitempty"`
	StartTime    *flexTime     `json:"startTime,omitempty"`
	Start        *flexTime     `json:"start,omitempty"`
	EndTime      *flexTime     `json:"endTime,omitempty"`
	End          *flexTime     `json:"end,omitempty"`
	Duration     int           `json:"duration,omitempty"`
}

func (w sessionWire) session() Session {
	players := w.Players
	if len(players) == 0 {
		players = w.Participants
	}
	start := w.StartTime
	if start == nil {
		start = w.Start
	}
	end := w.EndTime
	if end == nil {
		end = w.End
	}
	return Session{
		Participants:    players,
		Guests:          w.Guests,
		Start:           start.time(),
		End:             end.time(),
		DurationMinutes: w.Duration,
	}
}

func wireFromSession(s Session) sessionWire {
	players := s.Participants
	if players == nil {
		players = []Participant{}
	}
	return sessionWire{
		Players:   players,
		Guests:    s.Guests,
		StartTime: newFlexTime(s.Start),
		EndTime:   newFlexTime(s.End),
		Duration:  s.DurationMinutes,
	}
}

// MarshalJSON writes the canonical session shape.
func (s Session) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireFromSession(s))
}

// UnmarshalJSON accepts both the canonical and legacy field names.
func (s *Session) UnmarshalJSON(data []byte) error {
	var wire sessionWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*s = wire.session()
	return nil
}

type archivedWire struct {
	sessionWire
	ClearedAt   *flexTime `json:"clearedAt,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	OriginalEnd *flexTime `json:"originalEnd,omitempty"`
}

// MarshalJSON writes the archived session flattened with its metadata.
func (a ArchivedSession) MarshalJSON() ([]byte, error) {
	return json.Marshal(archivedWire{
		sessionWire: wireFromSession(a.Session),
		ClearedAt:   newFlexTime(a.ClearedAt),
		Reason:      a.Reason,
		OriginalEnd: newFlexTime(a.OriginalEnd),
	})
}

// UnmarshalJSON reads a flattened archived session.
func (a *ArchivedSession) UnmarshalJSON(data []byte) error {
	var wire archivedWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*a = ArchivedSession{
		Session:     wire.sessionWire.session(),
		ClearedAt:   wire.ClearedAt.time(),
		Reason:      wire.Reason,
		OriginalEnd: wire.OriginalEnd.time(),
	}
	return nil
}

type courtWire struct {
	Current *Session          `json:"current"`
	History []ArchivedSession `json:"history,omitempty"`
}

// MarshalJSON always writes the nested shape.
func (c Court) MarshalJSON() ([]byte, error) {
	return json.Marshal(courtWire{Current: c.Current, History: c.History})
}

// UnmarshalJSON normalizes the nested shape, the flat legacy shape that keeps
// players directly on the court, and null entries.
func (c *Court) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, jsonNull) {
		*c = Court{}
		return nil
	}

	var probe struct {
		Current json.RawMessage   `json:"current"`
		History []ArchivedSession `json:"history"`
		Players json.RawMessage   `json:"players"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}

	out := Court{History: probe.History}
	current := bytes.TrimSpace(probe.Current)
	switch {
	case len(current) > 0 && !bytes.Equal(current, jsonNull):
		var session Session
		if err := json.Unmarshal(current, &session); err != nil {
			return err
		}
		out.Current = &session
	case hasPlayers(probe.Players):
		var session Session
		if err := json.Unmarshal(data, &session); err != nil {
			return err
		}
		out.Current = &session
	}
	*c = out
	return nil
}

func hasPlayers(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, jsonNull) {
		return false
	}
	var players []json.RawMessage
	if err := json.Unmarshal(raw, &players); err != nil {
		return false
	}
	return len(players) > 0
}

type waitlistWire struct {
	ID           string        `json:"id"`
	Players      []Participant `json:"players"`
	Participants []Participant `json:"participants,omitempty"`
	Guests       int           `json:"guests,omitempty"`
	JoinedAt     *flexTime     `json:"joinedAt,omitempty"`
	Timestamp    *flexTime     `json:"timestamp,omitempty"`
}

// MarshalJSON writes the canonical waitlist entry shape.
func (e WaitlistEntry) MarshalJSON() ([]byte, error) {
	players := e.Participants
	if players == nil {
		players = []Participant{}
	}
	return json.Marshal(waitlistWire{
		ID:       e.ID,
		Players:  players,
		Guests:   e.Guests,
		JoinedAt: newFlexTime(e.EnqueuedAt),
	})
}

// UnmarshalJSON accepts canonical and legacy waitlist entries.
func (e *WaitlistEntry) UnmarshalJSON(data []byte) error {
	var wire waitlistWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	players := wire.Players
	if len(players) == 0 {
		players = wire.Participants
	}
	joined := wire.JoinedAt
	if joined == nil {
		joined = wire.Timestamp
	}
	*e = WaitlistEntry{ID: wire.ID, Participants: players, Guests: wire.Guests, EnqueuedAt: joined.time()}
	return nil
}

type snapshotWire struct {
	Courts        []Court         `json:"courts"`
	Waitlist      []WaitlistEntry `json:"waitlist"`
	WaitingGroups []WaitlistEntry `json:"waitingGroups,omitempty"`
	WetCourts     []int           `json:"wetCourts,omitempty"`
	Tick          int64           `json:"tick"`
}

// MarshalJSON writes the canonical snapshot document.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	courts := s.Courts
	if courts == nil {
		courts = []Court{}
	}
	waitlist := s.Waitlist
	if waitlist == nil {
		waitlist = []WaitlistEntry{}
	}
	return json.Marshal(snapshotWire{Courts: courts, Waitlist: waitlist, WetCourts: s.WetCourts, Tick: s.Tick})
}

// UnmarshalJSON reads a snapshot document, accepting the legacy waitingGroups key.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var wire snapshotWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	waitlist := wire.Waitlist
	if len(waitlist) == 0 {
		waitlist = wire.WaitingGroups
	}
	*s = Snapshot{Courts: wire.Courts, Waitlist: waitlist, WetCourts: wire.WetCourts, Tick: wire.Tick}
	return nil
}

// DecodeSnapshot parses a stored document and resizes it to n courts.
func DecodeSnapshot(data []byte, n int) (Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("court: decode snapshot: %w", err)
	}
	return snap.Normalize(n), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
