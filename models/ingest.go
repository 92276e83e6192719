package models

const DefaultMaxResults = 50

// IngestRequest is the trigger input for one ingestion batch.
type IngestRequest struct {
	Queries      []string `json:"queries" binding:"required,min=1,dive,required"`
	Sources      []string `json:"sources" binding:"required,min=1,dive,required"`
	Location     string   `json:"location"`
	MaxResults   int      `json:"max_results" binding:"gte=0,lte=500"`
	SkipMatching bool     `json:"skip_matching"`
}

// Limit returns MaxResults or the default cap when unset.
func (r *IngestRequest) Limit() int {
	if r.MaxResults <= 0 {
		return DefaultMaxResults
	}
	return r.MaxResults
}

// PairResult is the outcome of one (query, source) pair.
type PairResult struct {
	Query         string    `json:"query"`
	Source        string    `json:"source"`
	RunID         int64     `json:"run_id,omitempty"`
	Status        RunStatus `json:"status"`
	JobsFound     int       `json:"jobs_found"`
	JobsNew       int       `json:"jobs_new"`
	JobsDuplicate int       `json:"jobs_duplicate"`
	Error         string    `json:"error,omitempty"`
}

const (
	MatchingStarted = "started"
	MatchingSkipped = "skipped"

	SkipReasonRequested = "skip_matching=true"
	SkipReasonNoNewJobs = "no new jobs"
)

type MatchingStatus struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

type IngestResponse struct {
	Results  []PairResult   `json:"results"`
	TotalNew int            `json:"total_new"`
	Matching MatchingStatus `json:"matching"`
}
