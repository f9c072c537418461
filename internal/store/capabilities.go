package store

// Capabilities describes optional schema features, resolved once at startup.
type Capabilities struct {
	// RoomActiveColumn is true when rooms.is_active exists and inactive rooms
	// must be left out of the pool.
	RoomActiveColumn bool
}
