package notifications

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/anjiri1684/course_market/database"
	"github.com/anjiri1684/course_market/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPusher struct {
	mu   sync.Mutex
	sent []uuid.UUID
}

func (p *recordingPusher) Push(userID uuid.UUID, _ any) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, userID)
	return true
}

type recordingMailer struct {
	to, subject, body string
	err               error
}

func (m *recordingMailer) Send(_ context.Context, toEmail, _, subject, htmlContent string) error {
	m.to, m.subject, m.body = toEmail, subject, htmlContent
	return m.err
}

func TestDispatcherPushesAndMails(t *testing.T) {
	db, err := database.OpenInMemory()
	require.NoError(t, err)
	user := models.User{FullName: "Linh <Nguyen>", Email: "linh@example.com", Role: models.RoleInstructor}
	require.NoError(t, db.Create(&user).Error)

	pusher := &recordingPusher{}
	mailer := &recordingMailer{}
	NewDispatcher(db, mailer, pusher).Notify(context.Background(), Notification{
		UserID:  user.ID,
		Kind:    KindWithdrawalCompleted,
		Title:   "Withdrawal completed",
		Message: "Your withdrawal of 10.00 USD was paid.",
	})

	assert.Equal(t, []uuid.UUID{user.ID}, pusher.sent)
	assert.Equal(t, "linh@example.com", mailer.to)
	assert.Equal(t, "Withdrawal completed", mailer.subject)
	assert.Contains(t, mailer.body, "Linh &lt;Nguyen&gt;")
}

func TestDispatcherToleratesMissingRecipients(t *testing.T) {
	db, err := database.OpenInMemory()
	require.NoError(t, err)

	mailer := &recordingMailer{err: errors.New("unreachable")}
	assert.NotPanics(t, func() {
		NewDispatcher(db, mailer, nil).Notify(context.Background(), Notification{UserID: uuid.New(), Kind: KindOrderPaid})
	})
	assert.Empty(t, mailer.to)

	assert.NotPanics(t, func() {
		NewDispatcher(db, nil, nil).Notify(context.Background(), Notification{UserID: uuid.New()})
	})
}

func TestBrevoSend(t *testing.T) {
	var apiKey, body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey = r.Header.Get("api-key")
		buf := new(strings.Builder)
		_, _ = io.Copy(buf, r.Body)
		body = buf.String()
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	assert.Nil(t, NewBrevoService("", "noreply@example.com", "Course Market"))

	brevo := NewBrevoService("key-1", "noreply@example.com", "Course Market")
	brevo.url = srv.URL
	require.NoError(t, brevo.Send(context.Background(), "buyer@example.com", "", "Receipt", "<p>hi</p>"))
	assert.Equal(t, "key-1", apiKey)
	assert.Contains(t, body, `"name":"buyer"`)

	assert.Error(t, brevo.Send(context.Background(), "not-an-email", "", "x", "y"))
}
