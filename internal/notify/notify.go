// Package notify carries commit outcomes to the receipt/display channel.
// One event is emitted per commit attempt, success or failure.
package notify

import "log"

type CommitEvent struct {
	SessionKey    string
	StoreID       string
	CashierID     string
	InvoiceNumber string
	TotalCents    int64
	Success       bool
	FailureReason string
}

// Notifier is implemented by receipt printers, customer displays, and the
// like. Implementations must not block the commit path.
type Notifier interface {
	CommitAttempted(event CommitEvent)
}

// LogNotifier writes commit events to the process log. It is the default
// sink when no printer bridge is configured.
type LogNotifier struct{}

func (LogNotifier) CommitAttempted(event CommitEvent) {
	if event.Success {
		log.Printf("[notify] commit ok invoice=%s store=%s total=%d", event.InvoiceNumber, event.StoreID, event.TotalCents)
		return
	}
	log.Printf("[notify] commit failed session=%s store=%s reason=%s", event.SessionKey, event.StoreID, event.FailureReason)
}
