// Package models defines the core domain entities: predictions, grounding
// sources, cache entries, and application state.
package models

import (
	"errors"
	"fmt"
)

// MaxPredictions is the number of picks a result set may hold. Longer sets
// from the model are truncated; shorter sets are kept as-is.
const MaxPredictions = 5

// Prediction is a single recommended bet parsed from the model output.
// JSON tags mirror the external response contract and must not change.
type Prediction struct {
	Match             string             `json:"match"`
	League            string             `json:"league"`
	KickoffTime       string             `json:"kickoffTime"`
	Analysis          PredictionAnalysis `json:"analysis"`
	BetRecommendation string             `json:"betRecommendation"`
	Confidence        int                `json:"confidence"`
	MarketOption      string             `json:"marketOption"`
}

// PredictionAnalysis holds the narrative reasoning behind a pick.
// All fields are free text and may be empty.
type PredictionAnalysis struct {
	Form       string `json:"form"`
	KeyPlayers string `json:"keyPlayers"`
	Last5Games string `json:"last5Games"`
	Conditions string `json:"conditions"`
}

// Validate checks the schema constraints on a prediction received from the
// model. Kickoff time and the analysis fields stay unvalidated free text.
func (p *Prediction) Validate() error {
	if p.Match == "" {
		return errors.New("match must not be empty")
	}
	if p.League == "" {
		return errors.New("league must not be empty")
	}
	if p.BetRecommendation == "" {
		return errors.New("bet recommendation must not be empty")
	}
	if p.MarketOption == "" {
		return errors.New("market option must not be empty")
	}
	if p.Confidence < 0 || p.Confidence > 100 {
		return fmt.Errorf("confidence must be between 0 and 100, got %d", p.Confidence)
	}
	return nil
}

// GroundingSource is a supporting web citation attached by search grounding.
type GroundingSource struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}
