// Package sync implements the client-side reconciliation engine: a local
// day-keyed cache of the couple's data, hydrated from disk, refreshed from
// the server, and flushed back with a debounce. Local edits that have not
// reached the server yet are guarded per field so a concurrent refresh can
// never clobber them.
package sync

import (
	"github.com/studypact/backend/internal/models"
)

// DayState is the client's merged view of one day. "Mine" rows were authored
// by this device's user, "Theirs" by the partner. Partner gated rows are only
// present when the server chose to return them; the engine never derives
// visibility locally.
type DayState struct {
	Date string `json:"date"`

	MineProgress   *models.ProgressRecord `json:"mine_progress,omitempty"`
	TheirsProgress *models.ProgressRecord `json:"theirs_progress,omitempty"`

	MineGated   *models.GatedContent `json:"mine_gated,omitempty"`
	TheirsGated *models.GatedContent `json:"theirs_gated,omitempty"`

	MineOpen   *models.OpenContent `json:"mine_open,omitempty"`
	TheirsOpen *models.OpenContent `json:"theirs_open,omitempty"`
}

// Clone returns a deep-enough copy for handing out snapshots: row pointers
// are copied, slices inside rows are re-sliced so callers can't mutate the
// engine's state through them.
func (d *DayState) Clone() *DayState {
	out := &DayState{Date: d.Date}
	if d.MineProgress != nil {
		r := *d.MineProgress
		r.Hours = append(models.Float64Array(nil), d.MineProgress.Hours...)
		out.MineProgress = &r
	}
	if d.TheirsProgress != nil {
		r := *d.TheirsProgress
		r.Hours = append(models.Float64Array(nil), d.TheirsProgress.Hours...)
		out.TheirsProgress = &r
	}
	if d.MineGated != nil {
		g := *d.MineGated
		g.DailyPhotoPaths = append(models.StringArray(nil), d.MineGated.DailyPhotoPaths...)
		out.MineGated = &g
	}
	if d.TheirsGated != nil {
		g := *d.TheirsGated
		g.DailyPhotoPaths = append(models.StringArray(nil), d.TheirsGated.DailyPhotoPaths...)
		out.TheirsGated = &g
	}
	if d.MineOpen != nil {
		o := *d.MineOpen
		o.SubjectNotes = append(models.StringArray(nil), d.MineOpen.SubjectNotes...)
		out.MineOpen = &o
	}
	if d.TheirsOpen != nil {
		o := *d.TheirsOpen
		o.SubjectNotes = append(models.StringArray(nil), d.TheirsOpen.SubjectNotes...)
		out.TheirsOpen = &o
	}
	return out
}

// fieldKey identifies one locally-editable field of one day for the dirty
// guard and the debounced flusher.
type fieldKey struct {
	Date  string
	Field string
}

// Locally-editable fields. Photos are uploaded directly, not synced.
const (
	fieldHours        = "hours"
	fieldGatedMessage = "gated_message"
	fieldOpenNotes    = "open_notes"
	fieldOpenDiary    = "open_diary"
)
