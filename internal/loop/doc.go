// Package loop runs the goal agent on a fixed cadence.
//
// A Controller owns at most one run at a time. Starting a run publishes the
// initial snapshot, waits a settle delay, then repeatedly waits the step
// delay, advances the agent by one step and publishes the result until the
// agent completes, stalls, reaches the iteration ceiling, or a stop is
// requested.
//
// Stop is cooperative: the flag is read only between iterations, so the
// iteration in flight when Stop is called still runs to completion and
// publishes its snapshot. Context cancellation is reserved for process
// shutdown and cuts delays short.
package loop
