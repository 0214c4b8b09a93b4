// Package stats computes dashboard figures from the lead store.
package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/lead-engine/internal/model"
	"github.com/sells-group/lead-engine/internal/store"
)

// ErrConferenceNotFound is returned when a conference is missing or has no
// positive cost to measure against.
var ErrConferenceNotFound = eris.New("stats: conference not found or cost not set")

// HotStatuses are the statuses counted as hot on the dashboard.
var HotStatuses = []model.Status{model.StatusQualified, model.StatusWon}

// Dashboard is the headline lead summary.
type Dashboard struct {
	TotalLeads        int    `json:"total_leads"`
	HotLeads          int    `json:"hot_leads"`
	MeetingsScheduled int    `json:"meetings_scheduled"`
	OverdueFollowups  int    `json:"overdue_followups"`
	ConversionRate    string `json:"conversion_rate"`
}

// ROI is a conference's return on cost from its won leads.
type ROI struct {
	ConferenceID  string  `json:"conference_id"`
	TotalRevenue  float64 `json:"total_revenue"`
	Cost          float64 `json:"cost"`
	ROIPercentage string  `json:"roi_percentage"`
}

// Service reads figures from a store.
type Service struct {
	store store.Store
}

// New creates a Service.
func New(st store.Store) *Service {
	return &Service{store: st}
}

func overdueQuery(now time.Time) store.LeadQuery {
	return store.LeadQuery{Statuses: []model.Status{model.StatusFollowUp}, ReminderBefore: now}
}

// Dashboard counts leads concurrently. A count the store rejects is
// reported as zero; a call that fails outright fails the dashboard.
func (s *Service) Dashboard(ctx context.Context, now time.Time) (*Dashboard, error) {
	var d Dashboard
	g, gctx := errgroup.WithContext(ctx)

	count := func(name string, q store.LeadQuery, dst *int) {
		g.Go(func() error {
			code, n, err := s.store.CountLeads(gctx, q)
			if err != nil {
				return eris.Wrapf(err, "stats: count %s", name)
			}
			if !store.IsSuccess(code) {
				zap.L().Warn("stats: count rejected", zap.String("count", name), zap.Int("status_code", code))
				return nil
			}
			*dst = n
			return nil
		})
	}
	count("total", store.LeadQuery{}, &d.TotalLeads)
	count("hot", store.LeadQuery{Statuses: HotStatuses}, &d.HotLeads)
	count("meetings", store.LeadQuery{Statuses: []model.Status{model.StatusMeeting}}, &d.MeetingsScheduled)
	count("overdue", overdueQuery(now), &d.OverdueFollowups)

	if err := g.Wait(); err != nil {
		return nil, err
	}
	d.ConversionRate = ConversionRate(d.HotLeads, d.TotalLeads)
	return &d, nil
}

// ConversionRate formats hot/total as a percentage, "0%" when total is 0.
func ConversionRate(hot, total int) string {
	if total <= 0 {
		return "0%"
	}
	return fmt.Sprintf("%.1f%%", float64(hot)/float64(total)*100)
}

// Overdue returns Follow-up leads whose reminder is before now.
func (s *Service) Overdue(ctx context.Context, now time.Time) ([]model.Lead, error) {
	code, leads, err := s.store.GetLeads(ctx, overdueQuery(now))
	if err != nil {
		return nil, eris.Wrap(err, "stats: overdue leads")
	}
	if !store.IsSuccess(code) {
		return nil, eris.Errorf("stats: overdue leads: store returned %d", code)
	}
	return leads, nil
}

// ConferenceROI compares a conference's cost with revenue from its won leads.
func (s *Service) ConferenceROI(ctx context.Context, conferenceID string) (*ROI, error) {
	code, conf, err := s.store.GetConference(ctx, conferenceID)
	if err != nil {
		return nil, eris.Wrap(err, "stats: get conference")
	}
	if !store.IsSuccess(code) || conf == nil || conf.Cost <= 0 {
		return nil, ErrConferenceNotFound
	}

	code, won, err := s.store.GetLeads(ctx, store.LeadQuery{
		ConferenceID: conferenceID,
		Statuses:     []model.Status{model.StatusWon},
	})
	if err != nil {
		return nil, eris.Wrap(err, "stats: conference leads")
	}
	if !store.IsSuccess(code) {
		return nil, eris.Errorf("stats: conference leads: store returned %d", code)
	}

	var revenue float64
	for _, l := range won {
		if l.Revenue != nil {
			revenue += *l.Revenue
		}
	}
	return &ROI{
		ConferenceID:  conferenceID,
		TotalRevenue:  revenue,
		Cost:          conf.Cost,
		ROIPercentage: fmt.Sprintf("%.1f%%", (revenue-conf.Cost)/conf.Cost*100),
	}, nil
}
