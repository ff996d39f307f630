package race

import "fmt"

// Phase is the position of a lot in its race pipeline.
type Phase int

const (
	PhasePending Phase = iota
	PhaseDispatched
	PhaseClassifying
	PhaseResolved
)

func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseDispatched:
		return "dispatched"
	case PhaseClassifying:
		return "classifying"
	case PhaseResolved:
		return "resolved"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// A cancelled lot goes straight from pending to resolved.
var phaseTransitions = map[Phase][]Phase{
	PhasePending:     {PhaseDispatched, PhaseResolved},
	PhaseDispatched:  {PhaseClassifying},
	PhaseClassifying: {PhaseResolved},
}

// lotTracker enforces forward-only phase transitions for one lot.
type lotTracker struct {
	lotID int64
	phase Phase
	obs   Observer
}

func newLotTracker(lotID int64, obs Observer) *lotTracker {
	t := &lotTracker{lotID: lotID, phase: PhasePending, obs: obs}
	obs.PhaseChanged(lotID, PhasePending, PhasePending)
	return t
}

func (t *lotTracker) advance(to Phase) error {
	for _, next := range phaseTransitions[t.phase] {
		if next == to {
			from := t.phase
			t.phase = to
			t.obs.PhaseChanged(t.lotID, from, to)
			return nil
		}
	}
	return fmt.Errorf("race: lot %d cannot move from %s to %s", t.lotID, t.phase, to)
}
