package models

import (
	"encoding/json"
	"time"
)

// PackageEvent is the append-only record of one package state transition.
type PackageEvent struct {
	ID        string          `json:"id"`
	PackageID string          `json:"package_id"`
	From      PackageStatus   `json:"from,omitempty"`
	To        PackageStatus   `json:"to"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}
