// Package unlock is the single source of truth for gating decisions. Both the
// HTTP layer (enforcement) and the sync engine (UI feedback) call into this
// package; they must never diverge, or a writer could see gated content by
// racing the UI ahead of the server check.
package unlock

// Threshold is the fraction of the daily target that unlocks gated content.
const Threshold = 2.0 / 3.0

// Role identifies a couple member's side of the agreement.
type Role string

const (
	RoleSupporter Role = "supporter"
	RoleWriter    Role = "writer"
)

// Valid reports whether r is one of the two known roles.
func (r Role) Valid() bool {
	return r == RoleSupporter || r == RoleWriter
}

// IsUnlocked reports whether a member with the given role may see gated
// content for a day with the given totals. The supporter is never gated. A
// zero target never unlocks (division guard).
func IsUnlocked(role Role, totalHours, targetHours float64) bool {
	if role == RoleSupporter {
		return true
	}
	if targetHours <= 0 {
		return false
	}
	return totalHours/targetHours >= Threshold
}

// HoursRemaining returns how many more hours the writer needs today before
// unlocking, never negative.
func HoursRemaining(totalHours, targetHours float64) float64 {
	remaining := Threshold*targetHours - totalHours
	if remaining < 0 {
		return 0
	}
	return remaining
}

// CanSeePartnerGated reports whether the viewer may see the partner's gated
// row. Gating is keyed to the *author's* unlock state: a supporter-authored
// row opens when the writer viewer has unlocked; a writer-authored row is
// always open to the supporter.
func CanSeePartnerGated(viewerRole Role, writerUnlockedToday bool) bool {
	if viewerRole == RoleSupporter {
		return true
	}
	return writerUnlockedToday
}
