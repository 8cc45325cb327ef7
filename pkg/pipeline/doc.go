// Package pipeline provides a pipeline for processing jobs.
//
// A pipeline starts with a root step emitting jobs, passes them through steps
// and ends in a sink. Each step reads the output channel of its parent, so the
// flow of jobs is managed with channels rather than explicit synchronisation.
// A step can run several goroutines at once, which turns it into a bounded
// worker pool.
//
// The pipeline stops on the first error returned by any step: the shared
// context is cancelled, the root stops emitting, and Run returns that error
// once every goroutine has exited. Jobs that must not stop their siblings
// report their failure in their output value instead of returning an error.
//
// Pipeline options observe every step. The measure option records durations
// and the drawer option writes the graph of steps once the pipeline finishes.
package pipeline
