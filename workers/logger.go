package workers

import (
	"job_scrooper/logging"
	"job_scrooper/models"
)

// LogFunc receives worker events. Tests swap it to observe a batch.
type LogFunc func(level models.LogLevel, component, message string)

// StdLogger routes worker events through the process log.
var StdLogger LogFunc = func(level models.LogLevel, component, message string) {
	logging.Logf(level, component, "%s", message)
}
