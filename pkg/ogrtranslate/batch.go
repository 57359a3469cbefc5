package ogrtranslate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
)

// BatchOptions controls how RunJobs schedules jobs and handles failures.
type BatchOptions struct {
	// Parallel runs jobs concurrently on Workers goroutines. Jobs that
	// share a destination always run one after the other, in file order.
	Parallel bool

	// Workers is the number of concurrent jobs. If 0, defaults to
	// runtime.NumCPU().
	Workers int

	// SkipErrors keeps running the remaining jobs when one fails. When
	// false, the first failure stops scheduling and is returned.
	SkipErrors bool

	// Progress is called after each job finishes, successfully or not,
	// with the number of jobs done so far.
	Progress func(done, total int)

	// ErrorLog receives per-job failures and the warnings of every job.
	ErrorLog io.Writer
}

// DefaultBatchOptions returns batch options running jobs in parallel and
// skipping failed ones.
func DefaultBatchOptions() BatchOptions {
	return BatchOptions{
		Parallel:   true,
		Workers:    runtime.NumCPU(),
		SkipErrors: true,
	}
}

// JobError ties a failure to the job that produced it.
type JobError struct {
	Job string
	Err error
}

func (e *JobError) Error() string { return fmt.Sprintf("job %s: %v", e.Job, e.Err) }

func (e *JobError) Unwrap() error { return e.Err }

// RunJobs runs the jobs and returns their results in job order, nil for
// jobs that failed or never ran, along with the failures.
//
//	jf, err := ogrtranslate.LoadJobFile("jobs.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	results, errs := ogrtranslate.RunJobs(ctx, jf.Jobs, ogrtranslate.BatchOptions{
//	    Parallel:   true,
//	    SkipErrors: true,
//	    Progress: func(done, total int) {
//	        fmt.Printf("\r%d/%d jobs", done, total)
//	    },
//	    ErrorLog: os.Stderr,
//	})
func RunJobs(ctx context.Context, jobs []Job, opts BatchOptions) ([]*Result, []error) {
	results := make([]*Result, len(jobs))
	if len(jobs) == 0 {
		return results, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if !opts.Parallel || sharesDestination(jobs) {
		return results, runJobsSerial(ctx, jobs, opts, results)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type jobResult struct {
		index int
		res   *Result
		err   error
	}

	queue := make(chan int, len(jobs))
	done := make(chan jobResult, len(jobs))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range queue {
				if ctx.Err() != nil {
					done <- jobResult{index: index, err: ctx.Err()}
					continue
				}
				res, err := RunJob(ctx, jobs[index], opts.ErrorLog)
				done <- jobResult{index: index, res: res, err: err}
			}
		}()
	}

	for i := range jobs {
		queue <- i
	}
	close(queue)

	go func() {
		wg.Wait()
		close(done)
	}()

	var errs []error
	var first error
	finished := 0
	for r := range done {
		finished++
		if opts.Progress != nil {
			opts.Progress(finished, len(jobs))
		}
		if r.err == nil {
			results[r.index] = r.res
			continue
		}
		if first != nil && errors.Is(r.err, context.Canceled) {
			// cancelled after the first failure
			continue
		}
		err := &JobError{Job: jobs[r.index].Name, Err: r.err}
		logJobError(opts.ErrorLog, err)
		if opts.SkipErrors {
			errs = append(errs, err)
			continue
		}
		if first == nil {
			first = err
			cancel()
		}
	}
	if first != nil {
		return results, []error{first}
	}
	return results, errs
}

func runJobsSerial(ctx context.Context, jobs []Job, opts BatchOptions, results []*Result) []error {
	var errs []error
	for i, job := range jobs {
		if opts.Progress != nil {
			opts.Progress(i, len(jobs))
		}
		res, err := RunJob(ctx, job, opts.ErrorLog)
		if err != nil {
			err := &JobError{Job: job.Name, Err: err}
			logJobError(opts.ErrorLog, err)
			if opts.SkipErrors {
				errs = append(errs, err)
				continue
			}
			return []error{err}
		}
		results[i] = res
	}
	if opts.Progress != nil {
		opts.Progress(len(jobs), len(jobs))
	}
	return errs
}

// RunJob runs a single job: it opens the source, translates it into the
// destination and closes both.
func RunJob(ctx context.Context, job Job, errorLog io.Writer) (res *Result, err error) {
	opts, err := job.Options.Build()
	if err != nil {
		return nil, err
	}
	opts.ErrorLog = errorLog

	src, err := OpenSourceFormat(job.Source, job.SourceFormat)
	if err != nil {
		return nil, fmt.Errorf("unable to open source %s: %w", job.Source, err)
	}
	defer src.Close()

	dst, res, err := TranslatePath(ctx, job.Destination, src, opts)
	if err != nil {
		return res, err
	}
	if cerr := dst.Close(); cerr != nil {
		return res, fmt.Errorf("closing %s: %w", job.Destination, cerr)
	}
	return res, nil
}

func sharesDestination(jobs []Job) bool {
	seen := make(map[string]bool, len(jobs))
	for _, j := range jobs {
		if seen[j.Destination] {
			return true
		}
		seen[j.Destination] = true
	}
	return false
}

func logJobError(w io.Writer, err error) {
	if w != nil {
		fmt.Fprintf(w, "Error running job: %v\n", err)
	}
}
