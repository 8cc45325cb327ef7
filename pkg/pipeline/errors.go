package pipeline

import (
	"sync"

	"github.com/pkg/errors"
)

var (
	ErrPipelineMustBeSet = errors.New("pipeline must be set")
	ErrInputMustBeSet    = errors.New("input must be set")
	ErrAlreadyRun        = errors.New("pipeline already run")
)

// StepError is the error a step returned, labelled with the step name.
// Errors raised by pipeline options are never StepErrors.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return e.Step + ": " + e.Err.Error()
}

func (e *StepError) Unwrap() error { return e.Err }

// StepOf returns the name of the step that failed with err, if any.
func StepOf(err error) (string, bool) {
	var se *StepError
	if errors.As(err, &se) {
		return se.Step, true
	}

	return "", false
}

// errorChans collects the error channel of every step added to a pipeline.
type errorChans struct {
	mu   sync.Mutex
	list []*errorChan
}

func (ec *errorChans) add(errChan *errorChan) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.list = append(ec.list, errChan)
}

func (ec *errorChans) snapshot() []*errorChan {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	return append([]*errorChan(nil), ec.list...)
}

type errorChan struct {
	c    <-chan error
	step string
}

func newErrorChan(step string, c <-chan error) *errorChan {
	return &errorChan{
		c:    c,
		step: step,
	}
}

// mergeErrors fans the step channels into one, labelling each error with its
// step. The output is buffered with one slot per step and closed once every
// step channel is closed.
func mergeErrors(cs ...*errorChan) <-chan error {
	var wg sync.WaitGroup
	out := make(chan error, len(cs))

	wg.Add(len(cs))
	for _, c := range cs {
		go func(c *errorChan) {
			defer wg.Done()
			if c.c == nil {
				return
			}
			for err := range c.c {
				if err == nil {
					continue
				}
				out <- &StepError{Step: c.step, Err: err}
			}
		}(c)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}
