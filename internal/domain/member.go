package domain

import "sort"

// Occupant is the roster entry shown in presence views.
// No transport or lifecycle logic here.
type Occupant struct {
	ConnectionID ConnectionID `json:"connection_id"`
	DisplayName  string       `json:"display_name"`
	Kind         Kind         `json:"kind"`
}

// Occupancy is derived, never stored: sessions of a room folded with its
// voice sub-channels.
type Occupancy struct {
	Count         int      `json:"count"`
	OccupantNames []string `json:"occupant_names"`
}

func (o Occupancy) Empty() bool { return o.Count == 0 }

// FoldOccupancy computes the occupancy of room from any set of sessions.
// Count is the number of distinct connections present; names are sorted
// and deduplicated.
func FoldOccupancy(room RoomID, sessions []PresenceSession) Occupancy {
	conns := make(map[ConnectionID]struct{})
	names := make(map[string]struct{})
	for _, s := range sessions {
		if !room.Contains(s.RoomID) {
			continue
		}
		conns[s.ConnectionID] = struct{}{}
		names[s.DisplayName] = struct{}{}
	}
	out := Occupancy{Count: len(conns), OccupantNames: make([]string, 0, len(names))}
	for n := range names {
		out.OccupantNames = append(out.OccupantNames, n)
	}
	sort.Strings(out.OccupantNames)
	return out
}
