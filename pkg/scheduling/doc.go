/*
Package scheduling provides task scheduling for tokova.

  - scheduler: runs tasks on a fixed interval or a cron schedule

The token bucket uses one scheduler per limiter to run its refill:

	s := scheduler.NewWithConfig(scheduler.Config{Name: "api"})
	_ = s.ScheduleRepeating("bucket-refill", refill, 10*time.Second)
	_ = s.Start()
	defer func() { <-s.Stop() }()

A failed run is reported and the schedule continues. Stop cancels in-flight
runs and the returned channel closes once they have returned.
*/
package scheduling
