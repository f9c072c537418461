package domain

import (
	"sort"

	"cloud.google.com/go/civil"
)

const (
	SessionMinutes = 60

	// AdjacencyToleranceMinutes absorbs rounding in stored timestamps when two
	// bookings are meant to be back to back.
	AdjacencyToleranceMinutes = 1
)

// BusyInterval is a span of wall-clock minutes on one Stockholm day during
// which its owners are committed.
type BusyInterval struct {
	Start    int     `json:"start"`
	End      int     `json:"end"`
	OwnerIDs []int64 `json:"ownerIds"`
}

func (b BusyInterval) OwnedBy(userID int64) bool {
	for _, id := range b.OwnerIDs {
		if id == userID {
			return true
		}
	}
	return false
}

type CandidateSlot struct {
	Date            civil.Date
	Start           int
	DurationMinutes int
}

func NewSessionSlot(date civil.Date, start int) CandidateSlot {
	return CandidateSlot{Date: date, Start: start, DurationMinutes: SessionMinutes}
}

func (s CandidateSlot) End() int {
	return s.Start + s.DurationMinutes
}

// Overlaps is the half-open test [startA,endA) ∩ [startB,endB) ≠ ∅.
func Overlaps(startA, endA, startB, endB int) bool {
	return startA < endB && startB < endA
}

// Adjacent reports whether the slot meets the busy interval at a boundary,
// within AdjacencyToleranceMinutes minutes of rounding.
func Adjacent(slot CandidateSlot, busy BusyInterval) bool {
	return absInt(slot.End()-busy.Start) <= AdjacencyToleranceMinutes ||
		absInt(slot.Start-busy.End) <= AdjacencyToleranceMinutes
}

// ConflictsWith reports whether any busy interval overlaps the slot, ignoring
// back-to-back neighbours.
func ConflictsWith(slot CandidateSlot, busy []BusyInterval) bool {
	for _, b := range busy {
		if !Overlaps(slot.Start, slot.End(), b.Start, b.End) {
			continue
		}
		if Adjacent(slot, b) {
			continue
		}
		return true
	}
	return false
}

// FilterOwner keeps the intervals owned by userID.
func FilterOwner(busy []BusyInterval, userID int64) []BusyInterval {
	out := make([]BusyInterval, 0, len(busy))
	for _, b := range busy {
		if b.OwnedBy(userID) {
			out = append(out, b)
		}
	}
	return out
}

func SortIntervals(busy []BusyInterval) {
	sort.SliceStable(busy, func(i, j int) bool {
		if busy[i].Start != busy[j].Start {
			return busy[i].Start < busy[j].Start
		}
		return busy[i].End < busy[j].End
	})
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
