package checks

import (
	"sort"
	"time"

	"github.com/grigta/adpulse/services/monitoring-service/internal/models"
)

// entityTotals sums one entity's rows over a window and keeps its latest state.
type entityTotals struct {
	ID              string
	Name            string
	ParentID        string
	LatestStatus    string
	LatestDate      time.Time
	LatestBudget    float64
	Impressions     int64
	Clicks          int64
	Spend           float64
	Conversions     float64
	AudienceSignals int
	Days            int
}

func (e *entityTotals) ref() models.EntityRef {
	return models.EntityRef{ID: e.ID, Name: e.Name, CampaignID: e.ParentID}
}

// totalsByEntity aggregates rows per entity id, sorted by id for stable output.
func totalsByEntity(rows []models.MetricRow) []*entityTotals {
	byID := make(map[string]*entityTotals)
	for _, row := range rows {
		e, ok := byID[row.EntityID]
		if !ok {
			e = &entityTotals{ID: row.EntityID}
			byID[row.EntityID] = e
		}
		e.Impressions += row.Impressions
		e.Clicks += row.Clicks
		e.Spend += row.Spend
		e.Conversions += row.Conversions
		e.Days++
		if row.AudienceSignals > e.AudienceSignals {
			e.AudienceSignals = row.AudienceSignals
		}
		if !row.Date.Before(e.LatestDate) {
			e.LatestDate = row.Date
			e.LatestStatus = row.Status
			e.LatestBudget = row.DailyBudget
			if row.EntityName != "" {
				e.Name = row.EntityName
			}
			if row.ParentID != "" {
				e.ParentID = row.ParentID
			}
		}
	}

	out := make([]*entityTotals, 0, len(byID))
	for _, e := range byID {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// dailySpend sums spend per day key in loc.
func dailySpend(rows []models.MetricRow, loc *time.Location) map[string]float64 {
	out := make(map[string]float64)
	for _, row := range rows {
		out[models.DayKey(row.Date, loc)] += row.Spend
	}
	return out
}

func splitByRange(rows []models.MetricRow, recent models.DateRange) (in, out []models.MetricRow) {
	for _, row := range rows {
		if recent.Contains(row.Date) {
			in = append(in, row)
		} else {
			out = append(out, row)
		}
	}
	return in, out
}

func sumClicksConversions(rows []models.MetricRow) (clicks int64, conversions float64) {
	for _, row := range rows {
		clicks += row.Clicks
		conversions += row.Conversions
	}
	return clicks, conversions
}
