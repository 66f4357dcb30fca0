// Package catalog holds the fixed subject catalog shared by every couple.
// The catalog is configuration, not user data: every progress record's hours
// slice is positionally aligned to it.
package catalog

// Subject is a single catalog entry with its daily target in hours.
type Subject struct {
	Name        string  `json:"name"`
	TargetHours float64 `json:"target_hours"`
}

// Subjects is the ordered catalog. Order matters: hours and notes slices in
// progress and open-content records are indexed by position.
var Subjects = []Subject{
	{Name: "行政法", TargetHours: 3},
	{Name: "行政學", TargetHours: 2},
	{Name: "刑訴法", TargetHours: 3},
	{Name: "刑法", TargetHours: 1.5},
	{Name: "公務員法", TargetHours: 1},
	{Name: "憲法", TargetHours: 0.5},
}

// Len returns the number of catalog subjects.
func Len() int {
	return len(Subjects)
}

// TotalTarget returns the summed daily target across all subjects.
func TotalTarget() float64 {
	var total float64
	for _, s := range Subjects {
		total += s.TargetHours
	}
	return total
}

// PadHours returns a copy of hours resized to the catalog length. Missing
// entries become 0; extra entries are dropped. Used to normalize malformed
// remote rows instead of rejecting them.
func PadHours(hours []float64) []float64 {
	out := make([]float64, len(Subjects))
	copy(out, hours)
	return out
}

// PadNotes does the same for per-subject note slices.
func PadNotes(notes []string) []string {
	out := make([]string, len(Subjects))
	copy(out, notes)
	return out
}
