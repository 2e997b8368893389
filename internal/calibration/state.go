package calibration

// State is the calibration lifecycle. Done and Failed are terminal.
type State int

const (
	Idle State = iota
	MeasuringBaseline
	Converging
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case MeasuringBaseline:
		return "measuring_baseline"
	case Converging:
		return "converging"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == Done || s == Failed
}
