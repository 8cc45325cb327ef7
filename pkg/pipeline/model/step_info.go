package model

// StepType is the role of a step in a pipeline.
type StepType string

const (
	RootStepType   StepType = "root"
	NormalStepType StepType = "step"
	SinkStepType   StepType = "sink"
)

// StepInfo describes a step to pipeline options.
type StepInfo struct {
	Type       StepType
	Name       string
	Concurrent int
}

// StartStep and EndStep are the virtual steps every pipeline begins and ends with.
var (
	StartStep = &StepInfo{Type: RootStepType, Name: "start"}
	EndStep   = &StepInfo{Type: SinkStepType, Name: "end"}
)

// Step is a step whose results are read from Output.
type Step[O any] struct {
	Output  chan O
	Details *StepInfo
}
