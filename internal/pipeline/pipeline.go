// Package pipeline runs the fixed set of enrichment pipelines. Each pipeline
// pulls a read-only snapshot from its source, threads it through ordered
// stages, and fans the result out to named destinations. Stage and
// destination failures are isolated per tick; a broken consumer never blocks
// its siblings and a failed tick is simply superseded by the next one.
package pipeline

import (
	"context"
	"time"
)

// SourceFunc produces the tick's input snapshot.
type SourceFunc func(ctx context.Context) (interface{}, error)

// StageFunc transforms the previous stage's output into this stage's output.
// Stages must treat their input as read-only shared data.
type StageFunc func(ctx context.Context, data interface{}) (interface{}, error)

// Stage is one named step in a pipeline.
type Stage struct {
	Name string
	Run  StageFunc
}

// Destination consumes a pipeline's final output. Implementations must not
// mutate the data they receive; the same value goes to every destination.
type Destination interface {
	Deliver(ctx context.Context, pipeline string, data interface{}) error
}

// DestinationFunc adapts a plain function to Destination.
type DestinationFunc func(ctx context.Context, pipeline string, data interface{}) error

func (f DestinationFunc) Deliver(ctx context.Context, pipeline string, data interface{}) error {
	return f(ctx, pipeline, data)
}

// Pipeline is a static configuration: defined once per process lifetime,
// never persisted.
type Pipeline struct {
	Name         string
	Source       SourceFunc
	Stages       []Stage
	Destinations []string
	Interval     time.Duration
}
