package ogrtranslate

import (
	"bytes"
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func townJobs(t *testing.T, n int) []Job {
	t.Helper()
	dir := t.TempDir()
	src := writeTowns(t, dir, "towns.geojson")
	jobs := make([]Job, n)
	for i := range jobs {
		jobs[i] = Job{
			Name:        filepath.Base(t.Name()) + string(rune('a'+i)),
			Source:      src,
			Destination: filepath.Join(dir, string(rune('a'+i))+".geojson"),
		}
	}
	return jobs
}

func TestRunJobsParallel(t *testing.T) {
	jobs := townJobs(t, 4)
	jobs[1].Options.Where = "pop > 1000"

	var mu sync.Mutex
	var calls []int
	results, errs := RunJobs(context.Background(), jobs, BatchOptions{
		Parallel: true,
		Workers:  2,
		Progress: func(done, total int) {
			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, 4, total)
			calls = append(calls, done)
		},
	})
	require.Empty(t, errs)
	require.Len(t, results, 4)
	assert.Equal(t, []int{1, 2, 3, 4}, calls)

	for i, res := range results {
		require.NotNil(t, res, "job %d", i)
	}
	assert.EqualValues(t, 3, results[0].Written)
	assert.EqualValues(t, 2, results[1].Written)
	assert.Equal(t, 2, countFeatures(t, jobs[1].Destination))
	assert.Equal(t, 3, countFeatures(t, jobs[3].Destination))
}

func TestRunJobsSkipErrors(t *testing.T) {
	jobs := townJobs(t, 3)
	jobs[1].Source = filepath.Join(t.TempDir(), "missing.geojson")

	var log bytes.Buffer
	for _, parallel := range []bool{true, false} {
		results, errs := RunJobs(context.Background(), jobs, BatchOptions{
			Parallel:   parallel,
			SkipErrors: true,
			ErrorLog:   &log,
		})
		require.Len(t, errs, 1)
		var je *JobError
		require.ErrorAs(t, errs[0], &je)
		assert.Equal(t, jobs[1].Name, je.Job)
		assert.NotNil(t, results[0])
		assert.Nil(t, results[1])
		assert.NotNil(t, results[2])
	}
	assert.Contains(t, log.String(), "Error running job")
}

func TestRunJobsStopsOnFirstError(t *testing.T) {
	jobs := townJobs(t, 3)
	jobs[0].Options.AccessMode = "sideways"

	results, errs := RunJobs(context.Background(), jobs, BatchOptions{Parallel: false})
	require.Len(t, errs, 1)
	assert.True(t, IsUsageError(errs[0]))
	for _, res := range results {
		assert.Nil(t, res)
	}
}

func TestRunJobsSharedDestinationRunsSerially(t *testing.T) {
	jobs := townJobs(t, 2)
	jobs[1].Destination = jobs[0].Destination
	jobs[1].Options.AccessMode = "append"
	assert.True(t, sharesDestination(jobs))

	var calls []int
	results, errs := RunJobs(context.Background(), jobs, BatchOptions{
		Parallel:   true,
		SkipErrors: true,
		Progress:   func(done, _ int) { calls = append(calls, done) },
	})
	require.Empty(t, errs)
	assert.EqualValues(t, 3, results[1].Written)
	assert.Equal(t, []int{0, 1, 2}, calls)
}

func TestRunJobsEmpty(t *testing.T) {
	results, errs := RunJobs(context.Background(), nil, DefaultBatchOptions())
	assert.Empty(t, results)
	assert.Nil(t, errs)
}
