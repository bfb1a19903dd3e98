package settlement

import (
	"context"
	"fmt"
	"log"
)

// Step is one unit of a saga. Compensate, if set, is called with the error
// that stopped the saga, both when this step fails and when a later one
// does.
type Step struct {
	Name       string
	Do         func(ctx context.Context) error
	Compensate func(ctx context.Context, cause error)
}

// Saga runs steps in order and, on the first failure, compensates the
// failed step and every completed step in reverse order.
type Saga struct {
	name  string
	steps []Step
}

func NewSaga(name string, steps ...Step) *Saga {
	return &Saga{name: name, steps: steps}
}

// Run returns the error of the failed step, annotated with its name.
// Compensations run on a context that outlives ctx's cancellation.
func (s *Saga) Run(ctx context.Context) error {
	for i, step := range s.steps {
		err := step.Do(ctx)
		if err == nil {
			continue
		}

		log.Printf("[saga] %s: step %q failed: %v", s.name, step.Name, err)
		cctx := context.WithoutCancel(ctx)
		for j := i; j >= 0; j-- {
			if c := s.steps[j].Compensate; c != nil {
				c(cctx, err)
			}
		}
		return fmt.Errorf("%s: %s: %w", s.name, step.Name, err)
	}
	return nil
}
