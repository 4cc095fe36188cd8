// Package sched provides the single cancellable interval timers behind
// scheduled sync runs and scheduled deletion execution.
package sched
