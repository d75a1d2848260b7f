package amqp

import (
	"encoding/json"
	"time"
)

// BudgetAlertMessage carries one budget alert from a client to the alert
// worker.
type BudgetAlertMessage struct {
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

// NewBudgetAlertMessage creates a message stamped with the current time.
func NewBudgetAlertMessage(title, body string) *BudgetAlertMessage {
	return &BudgetAlertMessage{
		Title:     title,
		Body:      body,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *BudgetAlertMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// BudgetAlertMessageFromJSON creates a message from JSON bytes
func BudgetAlertMessageFromJSON(data []byte) (*BudgetAlertMessage, error) {
	var msg BudgetAlertMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
