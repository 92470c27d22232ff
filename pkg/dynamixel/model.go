package dynamixel

// Entry locates a register in the control table.
type Entry struct {
	Addr int
	Size int
}

// ControlTable lists the registers used to configure and drive a servo.
type ControlTable struct {
	DriveMode       Entry
	OperatingMode   Entry
	HomingOffset    Entry
	TorqueEnable    Entry
	GoalPosition    Entry
	PresentPosition Entry
}

// XSeries is the control table shared by the X-series servos.
var XSeries = ControlTable{
	DriveMode:       Entry{Addr: 10, Size: 1},
	OperatingMode:   Entry{Addr: 11, Size: 1},
	HomingOffset:    Entry{Addr: 20, Size: 4},
	TorqueEnable:    Entry{Addr: 64, Size: 1},
	GoalPosition:    Entry{Addr: 116, Size: 4},
	PresentPosition: Entry{Addr: 132, Size: 4},
}

// Operating mode values.
const (
	OperatingModeVelocity         = 1
	OperatingModePosition         = 3
	OperatingModeExtendedPosition = 4
)

// Model describes a servo model.
type Model struct {
	Number uint16
	Name   string
	Table  ControlTable
}

var (
	XL330M077 = Model{Number: 1190, Name: "XL330-M077", Table: XSeries}
	XL330M288 = Model{Number: 1200, Name: "XL330-M288", Table: XSeries}
	XL430W250 = Model{Number: 1060, Name: "XL430-W250", Table: XSeries}
)

var models = []Model{XL330M077, XL330M288, XL430W250}

// ModelByNumber looks up a model by the number a servo reports on ping.
func ModelByNumber(n uint16) (Model, bool) {
	for _, m := range models {
		if m.Number == n {
			return m, true
		}
	}
	return Model{}, false
}
