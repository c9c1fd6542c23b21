package server

type SrvStatus int32

const (
	Idle SrvStatus = iota
	Running
	Stopping
	Stopped
)

var stateName = map[SrvStatus]string{
	Idle:     "idle",
	Running:  "running",
	Stopping: "stopping",
	Stopped:  "stopped",
}

func (s SrvStatus) String() string {
	return stateName[s]
}
