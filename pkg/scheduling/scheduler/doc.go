/*
Package scheduler runs recurring tasks on a fixed interval or a cron schedule.

It is the refill engine behind a token bucket: the bucket schedules one task
that adds tokens every interval, and stops the scheduler when it is closed.

Basic Usage:

	s := scheduler.NewWithConfig(scheduler.Config{Name: "refill", Logger: logger})
	defer func() { <-s.Stop() }()

	_ = s.ScheduleRepeating("bucket-refill", scheduler.TaskFunc(func(ctx context.Context) error {
		return refill(ctx)
	}), 10*time.Second)

	if err := s.Start(); err != nil {
		return err
	}

Cron schedules use six fields (seconds first) or descriptors:

	s.ScheduleCron("nightly", "0 0 3 * * *", task)
	s.ScheduleCron("frequent", "@every 30s", task)

Lifecycle:

A scheduler moves from idle to running on Start and to stopped on Stop;
stopped is terminal. Stop cancels the context passed to in-flight runs and
returns a channel that closes once they have returned, so a caller that
receives from it knows no run is still executing:

	<-s.Stop() // cancel, then join
	<-s.Stop() // no-op, already closed

Failure Handling:

A run that returns an error or panics is logged, counted in metrics and
handed to Config.OnError as a *TaskError. The task keeps its schedule; one
bad run never cancels later ones. A run that ends with a context error
because the scheduler was stopped is not treated as a failure.

Runs of the same task never overlap: if a run outlasts the interval, the
ticks that fired meanwhile are dropped rather than queued.
*/
package scheduler
