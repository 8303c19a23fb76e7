package bt

// Result is the final result of a connection attempt.
type Result int

const (
	Success Result = iota
	Failure
)

func (r Result) String() string {
	if r == Success {
		return "success"
	}
	return "failure"
}

// Outcome is delivered exactly once per StartConnect call.
type Outcome struct {
	AttemptID string
	Device    Device
	Result    Result
	Kind      Kind  // KindNone on success
	Err       error // nil on success
}

// OK reports whether the attempt succeeded.
func (o Outcome) OK() bool { return o.Result == Success }

func succeeded(id string, dev Device) Outcome {
	return Outcome{AttemptID: id, Device: dev, Result: Success}
}

func failed(id string, dev Device, err error) Outcome {
	kind := KindOf(err)
	if kind == KindNone {
		kind = KindPlatformCallFault
		err = newError(kind, err)
	}
	return Outcome{AttemptID: id, Device: dev, Result: Failure, Kind: kind, Err: err}
}
