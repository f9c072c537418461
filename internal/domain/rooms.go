package domain

// RoomOccupancy is a standard booking's claim on a room for part of a day.
// A nil RoomID is the unassigned pseudo-room.
type RoomOccupancy struct {
	RoomID *int64
	Start  int
	End    int
}

type roomKey struct {
	id         int64
	unassigned bool
}

func keyOf(roomID *int64) roomKey {
	if roomID == nil {
		return roomKey{unassigned: true}
	}
	return roomKey{id: *roomID}
}

// OccupiedRooms counts the distinct rooms, the unassigned pseudo-room
// included, with a booking overlapping the slot. No adjacency exemption
// applies here.
func OccupiedRooms(slot CandidateSlot, occupancy []RoomOccupancy) int {
	taken := make(map[roomKey]struct{}, len(occupancy))
	for _, o := range occupancy {
		if Overlaps(slot.Start, slot.End(), o.Start, o.End) {
			taken[keyOf(o.RoomID)] = struct{}{}
		}
	}
	return len(taken)
}

// RoomsAvailable reports whether at least one room of a pool of poolSize is
// still free for the slot. It does not say which room.
func RoomsAvailable(slot CandidateSlot, occupancy []RoomOccupancy, poolSize int) bool {
	if poolSize <= 0 {
		return false
	}
	return OccupiedRooms(slot, occupancy) < poolSize
}

// FreeRoom picks the first room of pool, in pool order, with no overlapping
// booking.
func FreeRoom(slot CandidateSlot, occupancy []RoomOccupancy, pool []int64) (int64, bool) {
	taken := make(map[int64]struct{}, len(occupancy))
	for _, o := range occupancy {
		if o.RoomID == nil {
			continue
		}
		if Overlaps(slot.Start, slot.End(), o.Start, o.End) {
			taken[*o.RoomID] = struct{}{}
		}
	}
	for _, id := range pool {
		if _, ok := taken[id]; !ok {
			return id, true
		}
	}
	return 0, false
}
