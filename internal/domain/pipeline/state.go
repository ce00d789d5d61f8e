package pipeline

import "fmt"

// State is a rank's position in a run.
type State uint8

const (
	Idle State = iota
	Loaded
	MetadataBroadcast
	Partitioned
	Scattered
	Computed
	Gathered
	Persisted
	Aborted
)

var stateNames = [...]string{
	Idle:              "idle",
	Loaded:            "loaded",
	MetadataBroadcast: "metadata_broadcast",
	Partitioned:       "partitioned",
	Scattered:         "scattered",
	Computed:          "computed",
	Gathered:          "gathered",
	Persisted:         "persisted",
	Aborted:           "aborted",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Terminal reports whether no further transition can follow s.
func (s State) Terminal() bool {
	return s == Persisted || s == Aborted
}

// Transition is one state change observed on one rank.
type Transition struct {
	Rank int
	From State
	To   State
}

// Observer is notified of every transition. It runs on the rank's own
// goroutine and must not block.
type Observer func(Transition)
