package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/flowlens/pkg/schema"
)

// DefaultRuns is the number of upcoming runs a Plan lists.
const DefaultRuns = 3

// Plan describes when a schedule-triggered flow runs. Runs are computed from
// the schedule's own start, never from the wall clock, so a Plan is stable
// across analyses.
type Plan struct {
	Frequency string      `json:"frequency" yaml:"frequency"`
	Cron      string      `json:"cron,omitempty" yaml:"cron,omitempty"`
	Runs      []time.Time `json:"runs" yaml:"runs"`
}

// String renders the plan as one parameter segment.
func (p *Plan) String() string {
	if len(p.Runs) == 0 {
		return p.Frequency
	}
	first := p.Runs[0].Format("15:04 MST")
	if p.Cron == "" {
		return fmt.Sprintf("%s at %s %s", p.Frequency, p.Runs[0].Format("2006-01-02"), first)
	}
	runs := make([]string, len(p.Runs))
	for i, r := range p.Runs {
		runs[i] = r.Format("2006-01-02 15:04")
	}
	return fmt.Sprintf("%s at %s (cron %s), next: %s", p.Frequency, first, p.Cron, strings.Join(runs, ", "))
}

// Describer converts flow schedules into cron plans.
type Describer struct {
	parser cron.Parser
	runs   int
}

// NewDescriber creates a Describer listing runs upcoming runs per plan.
// A non-positive runs uses DefaultRuns.
func NewDescriber(runs int) *Describer {
	if runs <= 0 {
		runs = DefaultRuns
	}
	return &Describer{
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		runs:   runs,
	}
}

// Describe builds the plan of a schedule. Frequencies other than Once, Daily
// and Weekly are reported without runs.
func (d *Describer) Describe(s *schema.Schedule) (*Plan, error) {
	if s == nil {
		return nil, fmt.Errorf("schedule is nil")
	}
	first, err := startOf(s)
	if err != nil {
		return nil, err
	}

	plan := &Plan{Frequency: s.Frequency}
	var expr string
	switch strings.ToLower(s.Frequency) {
	case "once":
		plan.Runs = []time.Time{first}
		return plan, nil
	case "daily":
		expr = fmt.Sprintf("%d %d * * *", first.Minute(), first.Hour())
	case "weekly":
		expr = fmt.Sprintf("%d %d * * %d", first.Minute(), first.Hour(), int(first.Weekday()))
	default:
		return plan, nil
	}

	plan.Cron = expr
	t := first.Add(-time.Second)
	for range d.runs {
		next, err := d.CalculateNextRun(expr, t)
		if err != nil {
			return nil, err
		}
		plan.Runs = append(plan.Runs, next)
		t = next
	}
	return plan, nil
}

// CalculateNextRun computes the next run time for a cron expression.
func (d *Describer) CalculateNextRun(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := d.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return schedule.Next(from), nil
}

var timeLayouts = []string{"15:04:05.000Z", "15:04:05Z", "15:04:05", "15:04"}

// startOf combines the schedule's start date and time in UTC.
func startOf(s *schema.Schedule) (time.Time, error) {
	day, err := time.Parse("2006-01-02", s.StartDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse start date %q: %w", s.StartDate, err)
	}
	if s.StartTime == "" {
		return day, nil
	}
	for _, layout := range timeLayouts {
		if tod, err := time.Parse(layout, s.StartTime); err == nil {
			return day.Add(time.Duration(tod.Hour())*time.Hour +
				time.Duration(tod.Minute())*time.Minute +
				time.Duration(tod.Second())*time.Second), nil
		}
	}
	return time.Time{}, fmt.Errorf("parse start time %q: unsupported layout", s.StartTime)
}
