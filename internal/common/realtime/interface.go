package realtime

import (
	"context"
	"fmt"
)

// Transport delivers events to named rooms. Implementations are fire-and-forget:
// delivery is best-effort and must never block or fail the caller's commit path.
type Transport interface {
	// Emit publishes an event to every subscriber of room.
	Emit(ctx context.Context, room, event string, payload interface{}) error

	// Close releases transport resources.
	Close() error
}

// Room name builders. Rooms scope who receives an event: contest-wide feeds,
// staff-only feeds, and per-member private feeds.

func ContestSubmissionsRoom(contestID int64) string {
	return fmt.Sprintf("contest/%d/submissions", contestID)
}

func ContestLeaderboardRoom(contestID int64) string {
	return fmt.Sprintf("contest/%d/leaderboard", contestID)
}

func ContestStaffRoom(contestID int64) string {
	return fmt.Sprintf("contest/%d/staff", contestID)
}

func MemberPrivateRoom(memberID int64) string {
	return fmt.Sprintf("member/%d/private", memberID)
}
