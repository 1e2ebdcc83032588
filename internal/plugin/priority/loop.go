// Package priority periodically converts recent per-group resource usage
// into scheduler priorities: the more a group consumed, the higher the
// priority value pushed back to the scheduler.
package priority

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	v1 "github.com/auditor-dev/auditor/internal/api/v1"
	"github.com/auditor-dev/auditor/internal/client"
	"github.com/shopspring/decimal"
)

// Source lists accounting records; satisfied by *client.Client.
type Source interface {
	GetAll(ctx context.Context, opts client.QueryOptions) ([]v1.Record, error)
}

// CommandRunner executes one scheduler command line.
type CommandRunner interface {
	Run(ctx context.Context, command string) error
}

// ShellRunner executes commands through /bin/sh.
type ShellRunner struct{}

func (ShellRunner) Run(ctx context.Context, command string) error {
	out, err := exec.CommandContext(ctx, "/bin/sh", "-c", command).CombinedOutput()
	if err != nil {
		return fmt.Errorf("command %q failed: %w (output: %s)", command, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Options configure the plugin loop.
type Options struct {
	// Site restricts the pulled records to one deployment.
	Site string
	// GroupKey is the meta dimension that carries group membership.
	GroupKey string
	// GroupMapping assigns each scheduler group the meta values that
	// count toward it.
	GroupMapping map[string][]string
	// Weights scale each component's amount; components without a weight
	// do not contribute.
	Weights map[string]float64
	// ScoreName, when set, multiplies each amount by that score's factor.
	// Components lacking the score use a factor of 1.
	ScoreName string
	// MinPriority and MaxPriority bound the computed priorities.
	MinPriority int64
	MaxPriority int64
	// LookBack is the usage window ending at now.
	LookBack time.Duration
	// Command is the scheduler command template. {group}, {priority} and
	// the positional {1} (priority) are substituted per group.
	Command string
	// Interval between ticks.
	Interval time.Duration
}

func (o Options) validate() error {
	if o.GroupKey == "" {
		return fmt.Errorf("group key is required")
	}
	if len(o.GroupMapping) == 0 {
		return fmt.Errorf("group mapping must not be empty")
	}
	if o.MaxPriority < o.MinPriority {
		return fmt.Errorf("max priority %d is below min priority %d", o.MaxPriority, o.MinPriority)
	}
	if o.LookBack <= 0 {
		return fmt.Errorf("look-back window must be positive, got %s", o.LookBack)
	}
	if o.Command == "" {
		return fmt.Errorf("command template is required")
	}
	if o.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", o.Interval)
	}
	return nil
}

// Loop is the periodic priority computation.
type Loop struct {
	opts   Options
	source Source
	runner CommandRunner
	now    func() time.Time
}

func NewLoop(opts Options, source Source, runner CommandRunner) (*Loop, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if runner == nil {
		runner = ShellRunner{}
	}
	return &Loop{opts: opts, source: source, runner: runner, now: time.Now}, nil
}

// Run ticks until the context is cancelled. Pull failures abort the
// loop; command failures are logged and skipped so one unreachable
// scheduler call does not stop priority updates for the other groups.
func (l *Loop) Run(ctx context.Context) error {
	slog.Info("[PriorityPlugin] Starting loop",
		"interval", l.opts.Interval.String(),
		"groups", len(l.opts.GroupMapping))

	ticker := time.NewTicker(l.opts.Interval)
	defer ticker.Stop()

	for {
		if err := l.Tick(ctx); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			slog.Info("[PriorityPlugin] Loop stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick performs one full pull-compute-apply pass.
func (l *Loop) Tick(ctx context.Context) error {
	records, err := l.pull(ctx)
	if err != nil {
		return fmt.Errorf("failed to pull records: %w", err)
	}

	priorities := l.computePriorities(records)
	for _, group := range sortedGroups(priorities) {
		command := expandCommand(l.opts.Command, group, priorities[group])
		if err := l.runner.Run(ctx, command); err != nil {
			slog.Error("[PriorityPlugin] Scheduler command failed",
				"group", group,
				"priority", priorities[group],
				"error", err.Error())
			continue
		}
		slog.Info("[PriorityPlugin] Priority applied",
			"group", group,
			"priority", priorities[group])
	}
	return nil
}

func (l *Loop) pull(ctx context.Context) ([]v1.Record, error) {
	since := l.now().Add(-l.opts.LookBack).UTC()
	opts := client.QueryOptions{StopTimeGTE: &since}
	if l.opts.Site != "" {
		site, err := v1.ParseName(l.opts.Site)
		if err != nil {
			return nil, fmt.Errorf("invalid site name %q: %w", l.opts.Site, err)
		}
		opts.Meta = map[v1.Name][]v1.Name{v1.MustName("site"): {site}}
	}
	return l.source.GetAll(ctx, opts)
}

// computePriorities sums weighted usage per group and linearly maps the
// sums onto [MinPriority, MaxPriority]. Groups without usage, and every
// group on an empty window, get MinPriority.
func (l *Loop) computePriorities(records []v1.Record) map[string]int64 {
	sums := make(map[string]decimal.Decimal, len(l.opts.GroupMapping))
	for group := range l.opts.GroupMapping {
		sums[group] = decimal.Zero
	}

	groupKey := v1.Name(l.opts.GroupKey)
	for _, rec := range records {
		usage := l.recordUsage(rec)
		if usage.IsZero() {
			continue
		}
		for group, values := range l.opts.GroupMapping {
			for _, value := range values {
				if rec.Meta.Contains(groupKey, v1.Name(value)) {
					sums[group] = sums[group].Add(usage)
					break
				}
			}
		}
	}

	maxSum := decimal.Zero
	for _, sum := range sums {
		if sum.GreaterThan(maxSum) {
			maxSum = sum
		}
	}

	priorities := make(map[string]int64, len(sums))
	span := decimal.NewFromInt(l.opts.MaxPriority - l.opts.MinPriority)
	for group, sum := range sums {
		if maxSum.IsZero() {
			priorities[group] = l.opts.MinPriority
			continue
		}
		scaled := sum.Div(maxSum).Mul(span).Round(0)
		priorities[group] = l.opts.MinPriority + scaled.IntPart()
	}
	return priorities
}

// recordUsage is Σ component.amount × score-factor × configured weight
// over the record's components.
func (l *Loop) recordUsage(rec v1.Record) decimal.Decimal {
	total := decimal.Zero
	for _, comp := range rec.Components {
		weight, ok := l.opts.Weights[comp.Name.String()]
		if !ok {
			continue
		}
		factor := 1.0
		if l.opts.ScoreName != "" {
			for _, score := range comp.Scores {
				if score.Name.String() == l.opts.ScoreName {
					factor = float64(score.Factor)
					break
				}
			}
		}
		contribution := decimal.NewFromInt(int64(comp.Amount)).
			Mul(decimal.NewFromFloat(factor)).
			Mul(decimal.NewFromFloat(weight))
		total = total.Add(contribution)
	}
	return total
}

func expandCommand(template, group string, priority int64) string {
	prio := strconv.FormatInt(priority, 10)
	return strings.NewReplacer(
		"{1}", prio,
		"{priority}", prio,
		"{group}", group,
	).Replace(template)
}

func sortedGroups(priorities map[string]int64) []string {
	groups := make([]string, 0, len(priorities))
	for group := range priorities {
		groups = append(groups, group)
	}
	sort.Strings(groups)
	return groups
}
