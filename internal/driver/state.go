package driver

import (
	"time"

	"github.com/dominikbraun/graph"
	"github.com/pkg/errors"

	"github.com/askiada/sherlock/internal/ledger"
)

// State is a step of a run.
type State string

const (
	Init           State = "Init"
	ManifestParsed State = "ManifestParsed"
	ReadyChecked   State = "ReadyChecked"
	Quantified     State = "Quantified"
	QuantSkipped   State = "QuantSkipped"
	DESetupDone    State = "DESetupDone"
	DEExecuted     State = "DEExecuted"
	DESkipped      State = "DESkipped"
	Consolidated   State = "Consolidated"
	Compared       State = "Compared"
	Done           State = "Done"
	Aborted        State = "Aborted"
)

var transitions = map[State][]State{
	Init:           {ManifestParsed},
	ManifestParsed: {ReadyChecked},
	ReadyChecked:   {Quantified, QuantSkipped},
	Quantified:     {DESetupDone},
	QuantSkipped:   {DESetupDone},
	DESetupDone:    {DEExecuted, DESkipped},
	DEExecuted:     {Consolidated},
	DESkipped:      {Consolidated},
	Consolidated:   {Compared},
	Compared:       {Done},
}

// ErrIllegalTransition is returned for a transition missing from the state graph.
var ErrIllegalTransition = errors.New("illegal transition")

// machine follows the legal transitions of a run. Every state but Done and
// Aborted can move to Aborted.
type machine struct {
	graph   graph.Graph[string, string]
	state   State
	history []ledger.Transition
	now     func() time.Time
}

func newMachine() (*machine, error) {
	g := graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles())
	for _, s := range []State{Init, ManifestParsed, ReadyChecked, Quantified, QuantSkipped, DESetupDone, DEExecuted, DESkipped, Consolidated, Compared, Done, Aborted} {
		err := g.AddVertex(string(s))
		if err != nil {
			return nil, errors.Wrapf(err, "unable to add state %s", s)
		}
	}
	for from, targets := range transitions {
		for _, to := range append(targets, Aborted) {
			err := g.AddEdge(string(from), string(to))
			if err != nil && !errors.Is(err, graph.ErrEdgeAlreadyExists) {
				return nil, errors.Wrapf(err, "unable to add transition %s -> %s", from, to)
			}
		}
	}

	return &machine{graph: g, state: Init, now: time.Now}, nil
}

func (m *machine) transition(to State) (ledger.Transition, error) {
	_, err := m.graph.Edge(string(m.state), string(to))
	if err != nil {
		return ledger.Transition{}, errors.Wrapf(ErrIllegalTransition, "%s -> %s", m.state, to)
	}
	tr := ledger.Transition{From: string(m.state), To: string(to), At: m.now()}
	m.state = to
	m.history = append(m.history, tr)

	return tr, nil
}

// terminal reports whether the machine cannot move anymore.
func (m *machine) terminal() bool {
	return m.state == Done || m.state == Aborted
}
