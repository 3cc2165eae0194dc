package models

import "time"

// TrainedModel is the frozen output of one training run. Prototypes and
// their labels seed the latent-source predictor.
type TrainedModel struct {
	Product      string      `json:"product"`
	Granularity  int         `json:"granularity"`
	WindowSize   int         `json:"window_size"`
	Policy       string      `json:"policy"`
	Normalizer   string      `json:"normalizer"`
	Weight       float64     `json:"weight"`
	Prototypes   [][]float64 `json:"prototypes"`
	Confidence   []float64   `json:"confidence"`
	Labels       []float64   `json:"labels"`
	VolumeScores []float64   `json:"volume_scores,omitempty"`
	Iterations   int         `json:"iterations"`
	Samples      int         `json:"samples"`
	TrainedAt    time.Time   `json:"trained_at"`
}

// TrainParams selects the timeline a training run consumes.
type TrainParams struct {
	Product     string    `json:"product"`
	From        time.Time `json:"from"`
	To          time.Time `json:"to"`
	Granularity int       `json:"granularity"`
}

// K returns the number of prototypes.
func (m *TrainedModel) K() int { return len(m.Prototypes) }

// BacktestSample pairs the predictions for one held-out window with its label.
type BacktestSample struct {
	Score    float64 `json:"score"`
	Estimate float64 `json:"estimate"`
	Label    float64 `json:"label"`
}

// BacktestReport summarizes an out-of-sample evaluation.
type BacktestReport struct {
	Product      string           `json:"product"`
	TrainSamples int              `json:"train_samples"`
	TestSamples  int              `json:"test_samples"`
	HitRate      float64          `json:"hit_rate"`
	MAE          float64          `json:"mae"`
	Samples      []BacktestSample `json:"samples,omitempty"`
}
