package notify

import (
	"context"
	"log"
	"time"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

type Notification struct {
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Severity  Severity  `json:"severity"`
	Link      string    `json:"link,omitempty"`
	UserID    string    `json:"userId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Notifier delivers lifecycle notifications. Delivery is fire-and-forget:
// implementations log failures and never return them, so a missed
// notification can never fail or roll back an order transition.
type Notifier interface {
	NotifyUser(ctx context.Context, userID, title, body string, severity Severity, link string)
	NotifyAdmins(ctx context.Context, title, body string, severity Severity, link string)
}

// LogNotifier writes notifications to the process log. It is the fallback
// sink and doubles as a delivery audit trail in front of the real channels.
type LogNotifier struct{}

func (LogNotifier) NotifyUser(ctx context.Context, userID, title, body string, severity Severity, link string) {
	log.Printf("notify user=%s severity=%s title=%q body=%q", userID, severity, title, body)
}

func (LogNotifier) NotifyAdmins(ctx context.Context, title, body string, severity Severity, link string) {
	log.Printf("notify admins severity=%s title=%q body=%q", severity, title, body)
}

// Dispatcher fans a notification out to every configured sink and streams
// admin notifications to the connected dashboard feed.
type Dispatcher struct {
	Sinks []Notifier
	Hub   *Hub
}

func (d *Dispatcher) NotifyUser(ctx context.Context, userID, title, body string, severity Severity, link string) {
	for _, s := range d.Sinks {
		s.NotifyUser(ctx, userID, title, body, severity, link)
	}
}

func (d *Dispatcher) NotifyAdmins(ctx context.Context, title, body string, severity Severity, link string) {
	for _, s := range d.Sinks {
		s.NotifyAdmins(ctx, title, body, severity, link)
	}
	if d.Hub != nil {
		d.Hub.Broadcast(Notification{
			Title:     title,
			Body:      body,
			Severity:  severity,
			Link:      link,
			CreatedAt: time.Now().UTC(),
		})
	}
}
