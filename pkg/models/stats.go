package models

import "time"

// IngestParams are the caller-supplied parameters of one ingestion run.
type IngestParams struct {
	Keyword    string `json:"keyword"`
	Days       int    `json:"days"`
	MaxResults int    `json:"max_results"`
	UseLLM     bool   `json:"use_llm"`
}

// IngestEcho echoes the effective search parameters back to the caller.
type IngestEcho struct {
	IngestParams
	From     time.Time `json:"from"`
	To       time.Time `json:"to"`
	Provider string    `json:"provider"`
	Scorer   string    `json:"scorer"`
}

// LabelCounts counts articles per sentiment label.
type LabelCounts struct {
	Positive int `json:"positive"`
	Neutral  int `json:"neutral"`
	Negative int `json:"negative"`
}

// Add increments the counter for label.
func (c *LabelCounts) Add(label SentimentLabel) {
	switch label {
	case SentimentPositive:
		c.Positive++
	case SentimentNegative:
		c.Negative++
	default:
		c.Neutral++
	}
}

// IngestResult is returned by an ingestion run. NewlySaved is zero when
// persistence was handed off to the background queue.
type IngestResult struct {
	Total      int         `json:"total"`
	NewlySaved int         `json:"newly_saved"`
	Articles   []Article   `json:"articles"`
	Stats      LabelCounts `json:"stats"`
	MeanScore  float64     `json:"mean_score"`
	Params     IngestEcho  `json:"params"`
}

// LabelAggregate is one GROUP BY row from the store.
type LabelAggregate struct {
	Label    SentimentLabel
	Count    int
	AvgScore float64
}

// LabelStat is the per-label entry of SentimentStats.
type LabelStat struct {
	Count    int     `json:"count"`
	AvgScore float64 `json:"avg_score"`
}

// SentimentStats summarizes stored sentiment over a window.
type SentimentStats struct {
	Keyword         *string                      `json:"keyword"`
	DaysBack        int                          `json:"days_back"`
	PerLabel        map[SentimentLabel]LabelStat `json:"per_label"`
	Total           int                          `json:"total"`
	OverallAvgScore float64                      `json:"overall_avg_score"`
}

// Reanalysis job states.
const (
	AnalysisProcessing = "processing"
	AnalysisNoNews     = "no_news"
)

// AnalysisStatus is returned when a reanalysis is requested.
type AnalysisStatus struct {
	Status         string `json:"status"`
	Message        string `json:"message"`
	ProcessedCount int    `json:"processed_count"`
	JobID          string `json:"job_id,omitempty"`
}
