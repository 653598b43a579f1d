package notifications

import (
	"context"
	"fmt"
	"html"
	"log"
	"time"

	"github.com/anjiri1684/course_market/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Kind string

const (
	KindOrderPaid            Kind = "ORDER_PAID"
	KindWithdrawalRequested  Kind = "WITHDRAWAL_REQUESTED"
	KindWithdrawalProcessing Kind = "WITHDRAWAL_PROCESSING"
	KindWithdrawalCompleted  Kind = "WITHDRAWAL_COMPLETED"
	KindWithdrawalFailed     Kind = "WITHDRAWAL_FAILED"
	KindWithdrawalRejected   Kind = "WITHDRAWAL_REJECTED"
)

type Notification struct {
	UserID    uuid.UUID      `json:"user_id"`
	Kind      Kind           `json:"kind"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Pusher delivers a payload to a user's open connections and reports whether any received it.
type Pusher interface {
	Push(userID uuid.UUID, payload any) bool
}

type Mailer interface {
	Send(ctx context.Context, toEmail, toName, subject, htmlContent string) error
}

// Dispatcher fans a notification out to the websocket hub and to email.
type Dispatcher struct {
	db     *gorm.DB
	mailer Mailer
	pusher Pusher
}

func NewDispatcher(db *gorm.DB, mailer Mailer, pusher Pusher) *Dispatcher {
	return &Dispatcher{db: db, mailer: mailer, pusher: pusher}
}

func (d *Dispatcher) Notify(ctx context.Context, n Notification) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	if d.pusher != nil {
		d.pusher.Push(n.UserID, n)
	}
	if d.mailer == nil {
		return
	}

	var user models.User
	if err := d.db.WithContext(ctx).Select("full_name", "email").First(&user, "id = ?", n.UserID).Error; err != nil {
		log.Printf("🔥 No email recipient for notification %s to %s: %v", n.Kind, n.UserID, err)
		return
	}

	body := fmt.Sprintf("<p>Hi %s,</p><p>%s</p>", html.EscapeString(user.FullName), html.EscapeString(n.Message))
	if err := d.mailer.Send(ctx, user.Email, user.FullName, n.Title, body); err != nil {
		log.Printf("🔥 Failed to send email to %s: %v", user.Email, err)
		return
	}
	log.Printf("✅ Email sent successfully to %s", user.Email)
}
