package engine

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/chatbatch/pkg/core"
)

// CancelledMessage is the error of a job that was never started because the
// run was cancelled.
const CancelledMessage = "cancelled before dispatch"

// execFunc runs one job to a result. It must not fail.
type execFunc func(ctx context.Context, job core.Job) core.JobResult

// dispatch runs the queues on a fixed pool of workers. A worker takes the
// next user in FIFO order and runs that user's jobs one after another,
// sending each result to out. Once ctx is done, jobs not yet started are
// reported as cancelled without being run. dispatch returns when every job
// has a result on out.
func dispatch(ctx context.Context, queues []userQueue, workers int, exec execFunc, out chan<- core.JobResult) {
	if len(queues) == 0 {
		return
	}
	workers = max(1, min(workers, len(queues)))

	pending := make(chan userQueue, len(queues))
	for _, q := range queues {
		pending <- q
	}
	close(pending)

	var g errgroup.Group
	for range workers {
		g.Go(func() error {
			for q := range pending {
				for _, job := range q.jobs {
					if ctx.Err() != nil {
						out <- cancelledResult(job)
						continue
					}
					out <- exec(ctx, job)
				}
			}
			return nil
		})
	}
	_ = g.Wait()
}

func cancelledResult(job core.Job) core.JobResult {
	return core.JobResult{
		Job:          job,
		Status:       core.JobStatusError,
		ErrorMessage: CancelledMessage,
	}
}
