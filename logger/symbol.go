package logger

import "go.uber.org/zap"

// Subsystem markers attached as a structured field, not in the message,
// so logs stay queryable by subsystem.
const (
	FieldSubsystem = "subsystem"

	SubsystemAutomation = "automation"
	SubsystemMonitor    = "monitor"
	SubsystemPulse      = "pulse"
)

// AddSubsystem returns a child logger that tags every entry with the subsystem.
func AddSubsystem(log *zap.SugaredLogger, subsystem string) *zap.SugaredLogger {
	if log == nil {
		log = Logger
	}
	return log.With(FieldSubsystem, subsystem)
}

// AutomationInfow logs an info message tagged with the automation subsystem
func AutomationInfow(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSubsystem, SubsystemAutomation}, keysAndValues...)
		Logger.Infow(msg, fields...)
	}
}

// MonitorWarnw logs a warning tagged with the monitor subsystem
func MonitorWarnw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSubsystem, SubsystemMonitor}, keysAndValues...)
		Logger.Warnw(msg, fields...)
	}
}

// PulseInfow logs an info message tagged with the pulse subsystem
func PulseInfow(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSubsystem, SubsystemPulse}, keysAndValues...)
		Logger.Infow(msg, fields...)
	}
}
