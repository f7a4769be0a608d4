package core

// StopReason labels why the daemon is shutting down, for the final log line.
type StopReason string

const (
	StopReasonSignal StopReason = "signal"
	StopReasonFatal  StopReason = "fatal"
)
