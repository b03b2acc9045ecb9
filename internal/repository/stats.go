package repository

import (
	"fmt"
	"math"
	"time"

	"nexusdesk/internal/model"
)

// statsConversation is the slice of a conversation the dashboard aggregates over.
type statsConversation struct {
	ID        string
	HandledBy model.Handler
	CreatedAt time.Time
	// Messages in created_at order.
	Messages []model.Message
}

// statsWindowStart is the earliest creation time computeStats looks at:
// the start of the month or of the 7-day chart, whichever comes first.
func statsWindowStart(now time.Time) time.Time {
	month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	week := startOfDay(now).AddDate(0, 0, -6)
	if week.Before(month) {
		return week
	}
	return month
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func computeStats(convs []statsConversation, now time.Time) model.DashboardStats {
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	var total, byAI int
	var gaps []time.Duration
	for _, c := range convs {
		if c.CreatedAt.Before(monthStart) {
			continue
		}
		total++
		if c.HandledBy == model.HandledByAI {
			byAI++
		}
		gaps = append(gaps, firstResponseGaps(c.Messages)...)
	}

	rate := 0.0
	if total > 0 {
		rate = math.Round(float64(byAI)/float64(total)*1000) / 10
	}

	var avg time.Duration
	if len(gaps) > 0 {
		var sum time.Duration
		for _, g := range gaps {
			sum += g
		}
		avg = sum / time.Duration(len(gaps))
	}

	volume := make([]model.VolumePoint, 0, 7)
	for i := 6; i >= 0; i-- {
		dayStart := startOfDay(now).AddDate(0, 0, -i)
		dayEnd := dayStart.AddDate(0, 0, 1)
		count := 0
		for _, c := range convs {
			if !c.CreatedAt.Before(dayStart) && c.CreatedAt.Before(dayEnd) {
				count++
			}
		}
		volume = append(volume, model.VolumePoint{Name: dayStart.Weekday().String()[:3], Value: count})
	}

	return model.DashboardStats{
		KPIs: model.KPIs{
			TotalChats:       total,
			AIResolutionRate: rate,
			AvgTime:          formatDuration(avg),
		},
		VolumeChart: volume,
	}
}

// firstResponseGaps measures, for every run of client messages, the time from
// its first message to the next reply by the AI or an agent.
func firstResponseGaps(msgs []model.Message) []time.Duration {
	var gaps []time.Duration
	var waiting *time.Time
	for i := range msgs {
		m := msgs[i]
		if m.Sender == model.SenderClient {
			if waiting == nil {
				waiting = &msgs[i].CreatedAt
			}
			continue
		}
		if waiting != nil {
			gaps = append(gaps, m.CreatedAt.Sub(*waiting))
			waiting = nil
		}
	}
	return gaps
}

// formatDuration renders durations the way the dashboard shows them: "45s", "1m 45s", "2h 5m".
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	switch {
	case d >= time.Hour:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	case d >= time.Minute:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
}
