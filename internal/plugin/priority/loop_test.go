package priority

import (
	"context"
	"fmt"
	"testing"
	"time"

	v1 "github.com/auditor-dev/auditor/internal/api/v1"
	"github.com/auditor-dev/auditor/internal/client"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	records []v1.Record
	err     error
	gotOpts client.QueryOptions
}

func (f *fakeSource) GetAll(_ context.Context, opts client.QueryOptions) ([]v1.Record, error) {
	f.gotOpts = opts
	return f.records, f.err
}

type recordingRunner struct {
	commands []string
	failOn   string
}

func (r *recordingRunner) Run(_ context.Context, command string) error {
	r.commands = append(r.commands, command)
	if r.failOn != "" && command == r.failOn {
		return fmt.Errorf("scheduler unreachable")
	}
	return nil
}

func testOptions() Options {
	return Options{
		Site:     "hpc1",
		GroupKey: "group",
		GroupMapping: map[string][]string{
			"atlas": {"atlas-prod", "atlas-dev"},
			"cms":   {"cms"},
		},
		Weights:     map[string]float64{"cores": 1.0},
		MinPriority: 1,
		MaxPriority: 100,
		LookBack:    24 * time.Hour,
		Command:     "scontrol update PartitionName={group} PriorityJobFactor={1}",
		Interval:    time.Minute,
	}
}

func record(t *testing.T, group string, cores int64, scores ...v1.Score) v1.Record {
	t.Helper()
	stop := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return v1.Record{
		RecordID: v1.MustName(fmt.Sprintf("run-%s-%d", group, cores)),
		Meta: v1.NewMeta(map[v1.Name][]v1.Name{
			v1.MustName("group"): {v1.MustName(group)},
		}, []v1.Name{v1.MustName("group")}),
		Components: []v1.Component{
			{Name: v1.MustName("cores"), Amount: v1.Amount(cores), Scores: scores},
		},
		StartTime: stop.Add(-time.Hour),
		StopTime:  &stop,
	}
}

func TestNewLoopValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"missing group key", func(o *Options) { o.GroupKey = "" }},
		{"empty group mapping", func(o *Options) { o.GroupMapping = nil }},
		{"inverted priority range", func(o *Options) { o.MinPriority = 10; o.MaxPriority = 1 }},
		{"zero look-back", func(o *Options) { o.LookBack = 0 }},
		{"missing command", func(o *Options) { o.Command = "" }},
		{"zero interval", func(o *Options) { o.Interval = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions()
			tt.mutate(&opts)
			_, err := NewLoop(opts, &fakeSource{}, &recordingRunner{})
			require.Error(t, err)
		})
	}
}

func TestTickComputesAndAppliesPriorities(t *testing.T) {
	source := &fakeSource{records: []v1.Record{
		record(t, "atlas-prod", 300),
		record(t, "atlas-dev", 100),
		record(t, "cms", 100),
	}}
	runner := &recordingRunner{}

	loop, err := NewLoop(testOptions(), source, runner)
	require.NoError(t, err)
	loop.now = func() time.Time { return time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC) }

	require.NoError(t, loop.Tick(context.Background()))

	// atlas consumed 400 cores, cms 100: atlas maps to the top of the
	// range, cms to a quarter of it.
	require.Equal(t, []string{
		"scontrol update PartitionName=atlas PriorityJobFactor=100",
		"scontrol update PartitionName=cms PriorityJobFactor=26",
	}, runner.commands)

	// The pull was filtered by site and window.
	require.NotNil(t, source.gotOpts.StopTimeGTE)
	require.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), *source.gotOpts.StopTimeGTE)
	require.Equal(t, []v1.Name{v1.MustName("hpc1")}, source.gotOpts.Meta[v1.MustName("site")])
}

func TestTickEmptyWindowGivesMinPriority(t *testing.T) {
	runner := &recordingRunner{}
	loop, err := NewLoop(testOptions(), &fakeSource{}, runner)
	require.NoError(t, err)

	require.NoError(t, loop.Tick(context.Background()))
	require.Equal(t, []string{
		"scontrol update PartitionName=atlas PriorityJobFactor=1",
		"scontrol update PartitionName=cms PriorityJobFactor=1",
	}, runner.commands)
}

func TestTickUsesScoreFactor(t *testing.T) {
	opts := testOptions()
	opts.ScoreName = "hepspec06"

	source := &fakeSource{records: []v1.Record{
		// 100 cores at factor 2 outweigh 150 unscored cores.
		record(t, "atlas-prod", 100, v1.Score{Name: v1.MustName("hepspec06"), Factor: 2.0}),
		record(t, "cms", 150),
	}}
	runner := &recordingRunner{}

	loop, err := NewLoop(opts, source, runner)
	require.NoError(t, err)
	require.NoError(t, loop.Tick(context.Background()))

	require.Equal(t, []string{
		"scontrol update PartitionName=atlas PriorityJobFactor=100",
		"scontrol update PartitionName=cms PriorityJobFactor=75",
	}, runner.commands)
}

func TestTickIgnoresUnweightedComponents(t *testing.T) {
	stop := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	source := &fakeSource{records: []v1.Record{
		{
			RecordID: v1.MustName("run-mem-only"),
			Meta: v1.NewMeta(map[v1.Name][]v1.Name{
				v1.MustName("group"): {v1.MustName("cms")},
			}, []v1.Name{v1.MustName("group")}),
			Components: []v1.Component{
				{Name: v1.MustName("memory"), Amount: 4096},
			},
			StartTime: stop.Add(-time.Hour),
			StopTime:  &stop,
		},
		record(t, "atlas-prod", 10),
	}}
	runner := &recordingRunner{}

	loop, err := NewLoop(testOptions(), source, runner)
	require.NoError(t, err)
	require.NoError(t, loop.Tick(context.Background()))

	require.Equal(t, []string{
		"scontrol update PartitionName=atlas PriorityJobFactor=100",
		"scontrol update PartitionName=cms PriorityJobFactor=1",
	}, runner.commands)
}

func TestTickCommandFailureContinues(t *testing.T) {
	source := &fakeSource{records: []v1.Record{
		record(t, "atlas-prod", 100),
		record(t, "cms", 100),
	}}
	runner := &recordingRunner{failOn: "scontrol update PartitionName=atlas PriorityJobFactor=100"}

	loop, err := NewLoop(testOptions(), source, runner)
	require.NoError(t, err)

	// The failed atlas command does not prevent the cms update.
	require.NoError(t, loop.Tick(context.Background()))
	require.Len(t, runner.commands, 2)
}

func TestTickPullFailureAborts(t *testing.T) {
	source := &fakeSource{err: fmt.Errorf("connection refused")}
	loop, err := NewLoop(testOptions(), source, &recordingRunner{})
	require.NoError(t, err)

	err = loop.Tick(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to pull")
}

func TestRunStopsOnContextCancel(t *testing.T) {
	opts := testOptions()
	opts.Interval = 50 * time.Millisecond

	runner := &recordingRunner{}
	loop, err := NewLoop(opts, &fakeSource{}, runner)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()

	err = loop.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotEmpty(t, runner.commands)
}

func TestExpandCommand(t *testing.T) {
	got := expandCommand("set {group} to {priority} ({1})", "atlas", 42)
	require.Equal(t, "set atlas to 42 (42)", got)
}
