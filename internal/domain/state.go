package domain

// State is a step in the lifecycle of one unit of work
type State int

const (
	StateIdle State = iota
	StateAcquiring
	StateBegan
	StateExecuting
	StateCommitting
	StateCommitted
	StateRollingBack
	StateRolledBack
	StateReleased
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:        "idle",
	StateAcquiring:   "acquiring",
	StateBegan:       "began",
	StateExecuting:   "executing",
	StateCommitting:  "committing",
	StateCommitted:   "committed",
	StateRollingBack: "rolling_back",
	StateRolledBack:  "rolled_back",
	StateReleased:    "released",
	StateFailed:      "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Phase names the step of a unit of work where a failure happened
type Phase string

const (
	PhaseAcquire  Phase = "acquire"
	PhaseBegin    Phase = "begin"
	PhaseExecute  Phase = "execute"
	PhaseCallback Phase = "callback"
	PhaseCommit   Phase = "commit"
	PhaseRollback Phase = "rollback"
)
