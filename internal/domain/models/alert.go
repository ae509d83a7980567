package models

import "time"

// AlertState is the per-pair threshold state.
type AlertState string

const (
	AlertInactive AlertState = "INACTIVE"
	AlertActive   AlertState = "ACTIVE"
	AlertCleared  AlertState = "CLEARED"
)

// Direction tells which side of the threshold the z-score crossed.
type Direction string

const (
	DirectionAbove Direction = "above"
	DirectionBelow Direction = "below"
)

// Alert is emitted once per transition into AlertActive. Never mutated after creation.
type Alert struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Pair      string    `json:"pair"`
	ZScore    float64   `json:"zscore"`
	Spread    float64   `json:"spread"`
	Threshold float64   `json:"threshold"`
	Direction Direction `json:"direction"`
}

// AlertTransition records a state change of a pair.
type AlertTransition struct {
	Pair   string     `json:"pair"`
	From   AlertState `json:"from"`
	To     AlertState `json:"to"`
	At     time.Time  `json:"at"`
	ZScore float64    `json:"zscore"`
	Alert  *Alert     `json:"alert,omitempty"`
}
