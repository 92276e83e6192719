package apify

import (
	"fmt"
	"time"
)

// ActorStartError is returned when the actor host refuses to start a run.
type ActorStartError struct {
	Actor      string
	StatusCode int
	Body       string
}

func (e *ActorStartError) Error() string {
	return fmt.Sprintf("apify start run %s failed %d: %s", e.Actor, e.StatusCode, e.Body)
}

// ActorRunFailedError is returned when a run reaches a terminal state other
// than SUCCEEDED.
type ActorRunFailedError struct {
	RunID  string
	Status string
}

func (e *ActorRunFailedError) Error() string {
	return fmt.Sprintf("apify run %s ended with status %s", e.RunID, e.Status)
}

// ActorTimeoutError is returned when a run does not finish within the poll
// budget.
type ActorTimeoutError struct {
	RunID  string
	Budget time.Duration
}

func (e *ActorTimeoutError) Error() string {
	return fmt.Sprintf("timeout waiting for apify run %s after %s", e.RunID, e.Budget)
}
