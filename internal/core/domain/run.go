package domain

import "time"

type RunStatus string

const (
	StatusUploaded        RunStatus = "UPLOADED"
	StatusExtracting      RunStatus = "EXTRACTING"
	StatusExtracted       RunStatus = "EXTRACTED"
	StatusAnalyzing       RunStatus = "ANALYZING"
	StatusProcessingAsync RunStatus = "PROCESSING_ASYNC"
	StatusCompleted       RunStatus = "COMPLETED"
	StatusFailed          RunStatus = "FAILED"
)

func (s RunStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether a run may move from one status to another.
// Transitions only go forward; terminal states accept nothing.
func CanTransition(from, to RunStatus) bool {
	if from.Terminal() {
		return false
	}
	if to == StatusFailed {
		return true
	}
	switch from {
	case StatusUploaded:
		return to == StatusExtracting || to == StatusExtracted || to == StatusProcessingAsync
	case StatusExtracting:
		return to == StatusExtracted || to == StatusProcessingAsync
	case StatusExtracted:
		return to == StatusAnalyzing || to == StatusProcessingAsync
	case StatusAnalyzing:
		return to == StatusProcessingAsync || to == StatusCompleted
	case StatusProcessingAsync:
		return to == StatusExtracted || to == StatusCompleted
	default:
		return false
	}
}

type ModelVariant string

const (
	ModelVariantA ModelVariant = "A"
	ModelVariantB ModelVariant = "B"
)

// Run is one document's end-to-end processing record. The run store owns
// persisted state; coordinators re-read the record before every mutation.
type Run struct {
	UserID   string       `json:"userId"`
	RunID    string       `json:"runId"`
	Status   RunStatus    `json:"status"`
	Model    ModelVariant `json:"model,omitempty"`
	FileKey  string       `json:"fileKey"`
	FileName string       `json:"fileName"`

	ExtractedTextKey    string `json:"extractedTextKey,omitempty"`
	ExtractedTextLength int    `json:"extractedTextLength,omitempty"`
	ExtractionMethod    string `json:"extractionMethod,omitempty"`

	AnalysisResult string `json:"analysisResult,omitempty"`
	ErrorMessage   string `json:"errorMessage,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	ExtractedAt *time.Time `json:"extractedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// RunMutation carries the fields a conditional update may set. Nil pointers
// leave the stored value untouched.
type RunMutation struct {
	Status RunStatus

	Model               *ModelVariant
	ExtractedTextKey    *string
	ExtractedTextLength *int
	ExtractionMethod    *string
	AnalysisResult      *string
	ErrorMessage        *string
	ExtractedAt         *time.Time
	CompletedAt         *time.Time
}

type ExtractionOutcome string

const (
	ExtractionImmediate ExtractionOutcome = "immediate"
	ExtractionDeferred  ExtractionOutcome = "deferred"
	ExtractionFailedOut ExtractionOutcome = "failed"
)

// Extraction is the tagged result of one extraction attempt: the text is
// available now, the run was handed off to the fallback path, or it failed.
type Extraction struct {
	Outcome ExtractionOutcome
	Text    string
	Method  string
	Reason  string
}

type AnalysisOutcome string

const (
	AnalysisImmediate AnalysisOutcome = "immediate"
	AnalysisDeferred  AnalysisOutcome = "deferred"
)

// Analysis is the result of an analysis trigger: a synchronous result or a
// deferred hand-off acknowledged with the run id.
type Analysis struct {
	Outcome AnalysisOutcome
	Result  string
}
