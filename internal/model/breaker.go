package model

import "time"

type BreakerState string

const (
	BreakerClosed   BreakerState = "CLOSED"
	BreakerOpen     BreakerState = "OPEN"
	BreakerHalfOpen BreakerState = "HALF_OPEN"
)

type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// BreakerStatus 熔断器状态快照
type BreakerStatus struct {
	AccountID           string       `json:"accountId"`
	State               BreakerState `json:"state"`
	TripReason          string       `json:"tripReason,omitempty"`
	Severity            Severity     `json:"severity,omitempty"`
	TrippedAt           *time.Time   `json:"trippedAt,omitempty"`
	ConsecutiveFailures int          `json:"consecutiveFailures"`
	HalfOpenSuccesses   int          `json:"halfOpenSuccesses"`
	CanPlaceOrder       bool         `json:"canPlaceOrder"`
}

// BreakerEvent 状态迁移事件
type BreakerEvent struct {
	AccountID string       `json:"accountId"`
	From      BreakerState `json:"from"`
	To        BreakerState `json:"to"`
	Reason    string       `json:"reason"`
	Severity  Severity     `json:"severity"`
	At        time.Time    `json:"at"`
}
