package sm

import "fmt"

// State is a name of a single state machine node.
type State string

type stateObj struct {
	name State
	to   map[State]struct{}
}

var invalidTransition = func(from, to State) error {
	return fmt.Errorf("invalid transition: %v --> %v", from, to)
}

var stateNotFound = func(name State) error {
	return fmt.Errorf("state not found: %v", name)
}

// StateMachine is a set of named states with an explicit list
// of allowed transitions between them.
type StateMachine struct {
	current State
	states  map[State]stateObj
}

func NewStateMachine() StateMachine {
	return StateMachine{
		current: "",
		states:  map[State]stateObj{},
	}
}

func (sm *StateMachine) State() State {
	return sm.current
}

// SetState forces the machine into `state` without a transition check,
// registering the state if it is not known yet.
func (sm *StateMachine) SetState(state State) {
	stateObj := sm.getState(state)
	sm.states[state] = stateObj

	sm.current = stateObj.name
}

func (sm *StateMachine) getState(name State) stateObj {
	state, ok := sm.states[name]
	if !ok {
		state = stateObj{
			name: name,
			to:   map[State]struct{}{},
		}
	}
	return state
}

// AddTransitions allows the transition from `from` to each of `to`.
func (sm *StateMachine) AddTransitions(from State, to ...State) error {
	for _, name := range to {
		err := sm.AddTransition(from, name)
		if err != nil {
			return err
		}

	}
	return nil
}

func (sm *StateMachine) AddTransition(from, to State) error {
	if from == to {
		return invalidTransition(from, to)
	}

	fromState := sm.getState(from)
	fromState.to[to] = struct{}{}
	sm.states[from] = fromState

	sm.states[to] = sm.getState(to)

	return nil
}

// DoTransition moves the machine into the state `name`,
// if such a transition is allowed from the current state.
// A transition into the current state is a no-op.
func (sm *StateMachine) DoTransition(name State) error {
	_, ok := sm.states[name]
	if !ok {
		return stateNotFound(name)
	}
	if sm.current == name {
		return nil
	}

	state := sm.states[sm.current]
	_, ok = state.to[name]
	if !ok {
		return invalidTransition(sm.current, name)
	}

	sm.current = name
	return nil
}
