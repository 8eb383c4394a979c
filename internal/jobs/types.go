package jobs

import "time"

type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition can leave s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Checkpoint progress values, in emission order.
const (
	ProgressStarted     = 0
	ProgressAcquired    = 25
	ProgressTranscribed = 50
	ProgressSelected    = 75
	ProgressCompleted   = 100
)

const (
	StepQueued       = "Queued"
	StepDownloading  = "Downloading video"
	StepTranscribing = "Transcribing audio"
	StepSelecting    = "Selecting segments"
	StepRendering    = "Rendering clips"
	StepCompleted    = "Completed"
	StepFailed       = "Failed"
)

type SubmitRequest struct {
	SourceURL   string
	Instruction string
	Owner       string
}

// TimeRange is a [Start, End) span of the source in seconds, as proposed by
// the selector. It may be out of bounds or inverted.
type TimeRange struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Segment describes one rendered range of the final artifact.
type Segment struct {
	Index     int     `json:"id"`
	Label     string  `json:"title"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	Duration  string  `json:"duration"`
	Timeframe string  `json:"timeframe"`
}

type Job struct {
	ID          string    `json:"id"`
	SourceURL   string    `json:"source_url"`
	Instruction string    `json:"instruction"`
	Owner       string    `json:"user_id"`
	Status      Status    `json:"status"`
	Progress    int       `json:"progress"`
	CurrentStep string    `json:"current_step"`
	ResultRef   string    `json:"result_ref,omitempty"`
	Error       string    `json:"error,omitempty"`
	Segments    []Segment `json:"segments"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Outcome is what a successful run hands back to the queue.
type Outcome struct {
	ResultRef string
	Segments  []Segment
}

type Stats struct {
	Total      int `json:"total_jobs"`
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}
