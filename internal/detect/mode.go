package detect

// Mode is the operating mode of the decision engine
type Mode int

const (
	// ModeInit is the startup mode before the pipeline is running
	ModeInit Mode = iota
	// ModeScan is the normal armed mode: detect, direction-find, alert
	ModeScan
	// ModeAlert is entered while a confirmed detection is active
	ModeAlert
	// ModeMonitor runs the full pipeline but suppresses alert output
	ModeMonitor
	// ModeCalibrate captures a new ambient noise floor
	ModeCalibrate
	// ModeLowBattery suspends detection until the pack recovers
	ModeLowBattery
	// ModeError is terminal; the pipeline could not keep running
	ModeError
)

func (m Mode) String() string {
	switch m {
	case ModeInit:
		return "INIT"
	case ModeScan:
		return "SCAN"
	case ModeAlert:
		return "ALERT"
	case ModeMonitor:
		return "MONITOR"
	case ModeCalibrate:
		return "CALIBRATE"
	case ModeLowBattery:
		return "LOW_BATTERY"
	case ModeError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// validTransitions is the explicit mode transition table. A transition
// absent from the table is a programming error and is refused at
// runtime. ModeError has no exits; recovery is a process restart.
var validTransitions = map[Mode][]Mode{
	ModeInit:       {ModeScan, ModeError},
	ModeScan:       {ModeAlert, ModeMonitor, ModeCalibrate, ModeLowBattery, ModeError},
	ModeAlert:      {ModeScan, ModeMonitor, ModeCalibrate, ModeLowBattery, ModeError},
	ModeMonitor:    {ModeScan, ModeCalibrate, ModeLowBattery, ModeError},
	ModeCalibrate:  {ModeScan, ModeLowBattery, ModeError},
	ModeLowBattery: {ModeScan, ModeError},
	ModeError:      {},
}

func canTransition(from, to Mode) bool {
	for _, m := range validTransitions[from] {
		if m == to {
			return true
		}
	}
	return false
}
