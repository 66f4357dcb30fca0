package handlers

import (
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/studypact/backend/internal/logger"
	"github.com/studypact/backend/internal/models"
	"github.com/studypact/backend/internal/util"
	"go.uber.org/zap"
)

// Days of history returned when no explicit from date is given
const defaultDaysWindow = 30

// defaultWindowStart is the first date of the default history window, used
// by every range endpoint when from is omitted.
func defaultWindowStart() string {
	return time.Now().AddDate(0, 0, -defaultDaysWindow+1).Format(models.DateFormat)
}

// DayView merges everything the caller may see about one day into a single
// row: both members' progress, visible gated content, and open content.
type DayView struct {
	Date     string                  `json:"date"`
	Progress []models.ProgressRecord `json:"progress"`
	Gated    []models.GatedContent   `json:"gated"`
	Open     []models.OpenContent    `json:"open"`
}

// GetDays returns the merged per-day view for the window starting at from
// (default: the last 30 days). Gated rows are filtered by the caller's
// visibility before merging.
func (h *Handlers) GetDays(c *gin.Context) {
	profile, ok := util.GetProfileFromContext(c)
	if !ok {
		return
	}

	from := c.Query("from")
	if from == "" {
		from = defaultWindowStart()
	}
	if !util.ValidDate(from) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from must be YYYY-MM-DD"})
		return
	}

	ctx := c.Request.Context()

	progress, err := h.progress.FetchRange(ctx, profile.CoupleID, from)
	if err != nil {
		logger.Log.Error("progress fetch failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch days"})
		return
	}

	gated, err := h.gated.FetchRangeForViewer(ctx, profile, from)
	if err != nil {
		logger.Log.Error("gated fetch failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch days"})
		return
	}

	open, err := h.open.FetchRange(ctx, profile.CoupleID, from)
	if err != nil {
		logger.Log.Error("open fetch failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch days"})
		return
	}

	byDate := make(map[string]*DayView)
	day := func(date string) *DayView {
		if v, ok := byDate[date]; ok {
			return v
		}
		v := &DayView{
			Date:     date,
			Progress: []models.ProgressRecord{},
			Gated:    []models.GatedContent{},
			Open:     []models.OpenContent{},
		}
		byDate[date] = v
		return v
	}

	for _, r := range progress {
		d := day(r.Date)
		d.Progress = append(d.Progress, r)
	}
	for _, g := range gated {
		d := day(g.Date)
		d.Gated = append(d.Gated, g)
	}
	for _, o := range open {
		d := day(o.Date)
		d.Open = append(d.Open, o)
	}

	days := make([]*DayView, 0, len(byDate))
	for _, v := range byDate {
		days = append(days, v)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date > days[j].Date })

	c.JSON(http.StatusOK, gin.H{
		"days": days,
		"from": from,
	})
}
