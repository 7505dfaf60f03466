package fsm

import (
	"context"
	"errors"

	loopfsm "github.com/looplab/fsm"

	"github.com/neomorfeo/tenantbill/internal/domain"
)

// Compile-time check: Machine implements domain.StateMachine.
var _ domain.StateMachine = (*Machine)(nil)

// events converts domain.DispatchTransitions into looplab/fsm EventDesc format.
// Transitions sharing an event and destination are merged into one EventDesc
// with several sources (EventSkip is valid from every pre-compose state).
var events = buildEvents()

func buildEvents() []loopfsm.EventDesc {
	type key struct {
		event string
		dst   string
	}
	grouped := make(map[key][]string)
	order := make([]key, 0)

	for _, t := range domain.DispatchTransitions {
		k := key{event: string(t.Event), dst: string(t.Dst)}
		if _, exists := grouped[k]; !exists {
			order = append(order, k)
		}
		grouped[k] = append(grouped[k], string(t.Src))
	}

	out := make([]loopfsm.EventDesc, 0, len(order))
	for _, k := range order {
		out = append(out, loopfsm.EventDesc{
			Name: k.event,
			Src:  grouped[k],
			Dst:  k.dst,
		})
	}
	return out
}

// Machine implements domain.StateMachine using looplab/fsm.
// looplab/fsm instances carry their current state, so a short-lived instance
// seeded with the pipeline's state is built for every Apply call.
type Machine struct{}

// New creates a new FSM-backed dispatch state machine.
func New() *Machine {
	return &Machine{}
}

// Apply validates event from current and returns the destination state,
// or a *domain.TransitionError when the step is not allowed.
func (m *Machine) Apply(ctx context.Context, current domain.State, event domain.Event) (domain.State, error) {
	machine := loopfsm.NewFSM(string(current), events, nil)

	if err := machine.Event(ctx, string(event)); err != nil {
		var invalidEvent loopfsm.InvalidEventError
		var unknownEvent loopfsm.UnknownEventError
		var noTransition loopfsm.NoTransitionError
		if errors.As(err, &invalidEvent) || errors.As(err, &unknownEvent) || errors.As(err, &noTransition) {
			return "", &domain.TransitionError{
				Event:   event,
				Current: current,
			}
		}
		return "", err
	}

	return domain.State(machine.Current()), nil
}
