package models

// Requests for engine HTTP endpoints.

type PredictRequest struct {
	Window []float64 `json:"window" validate:"required,min=2"`
}

type TrainRequest struct {
	Product     string `json:"product" validate:"required"`
	From        string `json:"from"`
	To          string `json:"to"`
	Granularity int    `json:"granularity" default:"60" validate:"oneof=60 300 900 3600 21600 86400"`
}

type BacktestRequest struct {
	Product     string `json:"product" validate:"required"`
	From        string `json:"from"`
	To          string `json:"to"`
	Granularity int    `json:"granularity" default:"60" validate:"oneof=60 300 900 3600 21600 86400"`
	Samples     bool   `json:"samples"`
}

type PredictResponse struct {
	Estimate     float64 `json:"estimate"`
	PatternCount int     `json:"pattern_count"`
}

type PositionResponse struct {
	Position  Position `json:"position"`
	LastPrice float64  `json:"last_price"`
	Valuation float64  `json:"valuation"`
}

type TrainAccepted struct {
	JobID  string      `json:"job_id"`
	Params TrainParams `json:"params"`
}
