package epilog

import (
	"strings"
	"testing"
	"time"

	v1 "github.com/auditor-dev/auditor/internal/api/v1"
	"github.com/stretchr/testify/require"
)

func sampleJob() Job {
	return Job{
		ID:        "4711",
		StartTime: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		StopTime:  time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC),
		Blob: map[string]string{
			"NumCPUs":   "8",
			"Mem":       "16384",
			"Partition": "gpu",
			"NumGPUs":   "2",
		},
	}
}

func TestBuildRecord(t *testing.T) {
	specs := []ComponentSpec{
		{
			Name: "cores",
			Key:  "NumCPUs",
			Scores: []ScoreSpec{
				{Name: "hepspec06", Factor: 10.5},
			},
		},
		{Name: "memory", Key: "Mem"},
	}

	add, err := BuildRecord("hpc1-", "hpc1", specs, sampleJob())
	require.NoError(t, err)

	require.Equal(t, "hpc1-4711", add.RecordID.String())
	require.True(t, add.Meta.Contains(v1.MustName("site"), v1.MustName("hpc1")))
	require.NotNil(t, add.StopTime)

	require.Len(t, add.Components, 2)
	require.Equal(t, v1.MustName("cores"), add.Components[0].Name)
	require.Equal(t, v1.Amount(8), add.Components[0].Amount)
	require.Len(t, add.Components[0].Scores, 1)
	require.Equal(t, v1.Factor(10.5), add.Components[0].Scores[0].Factor)
	require.Equal(t, v1.Amount(16384), add.Components[1].Amount)
}

func TestBuildRecordSkipsMissingKeys(t *testing.T) {
	specs := []ComponentSpec{
		{Name: "cores", Key: "NumCPUs"},
		{Name: "licenses", Key: "Licenses"},
	}

	add, err := BuildRecord("", "", specs, sampleJob())
	require.NoError(t, err)
	require.Len(t, add.Components, 1)
	require.Equal(t, v1.MustName("cores"), add.Components[0].Name)
}

func TestBuildRecordOnlyIfGating(t *testing.T) {
	specs := []ComponentSpec{
		{
			Name:   "gpus",
			Key:    "NumGPUs",
			OnlyIf: &OnlyIf{Key: "Partition", Matches: "gpu"},
		},
		{
			Name:   "fpgas",
			Key:    "NumGPUs",
			OnlyIf: &OnlyIf{Key: "Partition", Matches: "fpga"},
		},
		{
			Name: "cores",
			Key:  "NumCPUs",
			Scores: []ScoreSpec{
				{Name: "gpu-boost", Factor: 2.0, OnlyIf: &OnlyIf{Key: "Partition", Matches: "gpu"}},
				{Name: "cpu-only", Factor: 1.0, OnlyIf: &OnlyIf{Key: "Partition", Matches: "cpu"}},
			},
		},
	}

	add, err := BuildRecord("", "", specs, sampleJob())
	require.NoError(t, err)
	require.Len(t, add.Components, 2)
	require.Equal(t, v1.MustName("gpus"), add.Components[0].Name)

	cores := add.Components[1]
	require.Len(t, cores.Scores, 1)
	require.Equal(t, v1.MustName("gpu-boost"), cores.Scores[0].Name)
}

func TestBuildRecordNonIntegerValue(t *testing.T) {
	job := sampleJob()
	job.Blob["NumCPUs"] = "eight"

	_, err := BuildRecord("", "", []ComponentSpec{{Name: "cores", Key: "NumCPUs"}}, job)
	require.Error(t, err)
	require.Contains(t, err.Error(), "not an integer")
}

func TestBuildRecordGeneratesIDWhenMissing(t *testing.T) {
	job := sampleJob()
	job.ID = ""

	add, err := BuildRecord("hpc1-", "", nil, job)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(add.RecordID.String(), "hpc1-"))
	require.Greater(t, len(add.RecordID.String()), len("hpc1-"))
}

func TestBuildRecordOpenJob(t *testing.T) {
	job := sampleJob()
	job.StopTime = time.Time{}

	add, err := BuildRecord("", "", nil, job)
	require.NoError(t, err)
	require.Nil(t, add.StopTime)
}

func TestJobFromEnv(t *testing.T) {
	environ := []string{
		"SLURM_JOB_ID=4711",
		"SLURM_JOB_START_TIME=1709287200",
		"SLURM_JOB_END_TIME=2024-03-01T11:00:00Z",
		"NumCPUs=8",
		"malformed-entry",
	}

	job, err := JobFromEnv(environ, "SLURM_JOB_ID", "SLURM_JOB_START_TIME", "SLURM_JOB_END_TIME")
	require.NoError(t, err)
	require.Equal(t, "4711", job.ID)
	require.Equal(t, time.Unix(1709287200, 0).UTC(), job.StartTime)
	require.Equal(t, time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC), job.StopTime)
	require.Equal(t, "8", job.Blob["NumCPUs"])
	require.NotContains(t, job.Blob, "malformed-entry")
}

func TestJobFromEnvMissingStart(t *testing.T) {
	_, err := JobFromEnv([]string{"SLURM_JOB_ID=4711"}, "SLURM_JOB_ID", "SLURM_JOB_START_TIME", "SLURM_JOB_END_TIME")
	require.Error(t, err)
	require.Contains(t, err.Error(), "SLURM_JOB_START_TIME")
}

func TestJobFromEnvBadTimestamp(t *testing.T) {
	_, err := JobFromEnv([]string{"START=yesterday"}, "ID", "START", "END")
	require.Error(t, err)
}
