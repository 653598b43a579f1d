package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/anjiri1684/course_market/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeRenderer struct {
	html string
	err  error
}

func (r *fakeRenderer) RenderPDF(_ context.Context, html string) ([]byte, error) {
	r.html = html
	return []byte("%PDF-1.4"), r.err
}

type fakeUploader struct {
	publicID string
}

func (u *fakeUploader) Upload(_ context.Context, _ []byte, publicID string) (string, error) {
	u.publicID = publicID
	return "https://res.cloudinary.com/demo/raw/upload/" + publicID + ".pdf", nil
}

func TestInvoiceIssueAndDeliver(t *testing.T) {
	f := newFixture(t, "USD")
	buyer := f.user(t, models.RoleStudent)
	order := f.order(t, buyer, "", f.course(t, f.user(t, models.RoleInstructor), 125000, "USD"))

	renderer, uploader := &fakeRenderer{}, &fakeUploader{}
	invoices := NewInvoiceService(f.db, renderer, uploader)
	invoices.now = func() time.Time { return time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC) }

	var issued *models.Invoice
	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		issued, err = invoices.Issue(tx, order)
		return err
	}))
	assert.Regexp(t, `^INV-20260309-[A-Z0-9]{6}$`, issued.Number)
	assert.Equal(t, int64(125000), issued.Total)

	var again *models.Invoice
	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		again, err = invoices.Issue(tx, order)
		return err
	}))
	assert.Equal(t, issued.ID, again.ID)

	invoices.Deliver(context.Background(), issued)
	assert.Contains(t, renderer.html, issued.Number)
	assert.Contains(t, renderer.html, "1,250.00 USD")
	assert.Equal(t, "invoices/"+issued.Number, uploader.publicID)

	var stored models.Invoice
	require.NoError(t, f.db.First(&stored, "id = ?", issued.ID).Error)
	require.NotNil(t, stored.PDFURL)
	assert.Equal(t, *issued.PDFURL, *stored.PDFURL)
}

func TestInvoiceDeliverFailureKeepsRecord(t *testing.T) {
	f := newFixture(t, "USD")
	buyer := f.user(t, models.RoleStudent)
	order := f.order(t, buyer, "", f.course(t, f.user(t, models.RoleInstructor), 1000, "USD"))
	invoices := NewInvoiceService(f.db, &fakeRenderer{err: errors.New("chrome not found")}, &fakeUploader{})

	var issued *models.Invoice
	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		issued, err = invoices.Issue(tx, order)
		return err
	}))
	invoices.Deliver(context.Background(), issued)
	assert.Nil(t, issued.PDFURL)
}

func TestEnrollBundleAndSubscription(t *testing.T) {
	f := newFixture(t, "USD")
	buyer := f.user(t, models.RoleStudent)
	instructor := f.user(t, models.RoleInstructor)
	a, b := f.course(t, instructor, 1000, "USD"), f.course(t, instructor, 1000, "USD")
	bundle := models.Bundle{Name: "Starter pack", Price: 1500, Currency: "USD", IsActive: true, Courses: []models.Course{a, b}}
	require.NoError(t, f.db.Create(&bundle).Error)
	plan := models.SubscriptionPlan{Name: "Monthly", Price: 900, Currency: "USD", DurationDays: 30, IsActive: true}
	require.NoError(t, f.db.Create(&plan).Error)

	order, err := f.orders.CreateOrder(context.Background(), buyer, CreateOrderInput{Items: []OrderItemInput{
		{EntityType: models.EntityBundle, EntityID: bundle.ID, Quantity: 1},
		{EntityType: models.EntitySubscription, EntityID: plan.ID, Quantity: 2},
	}})
	require.NoError(t, err)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sink := &GormEnrollmentSink{now: func() time.Time { return now }}
	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error { return sink.Enroll(tx, order) }))
	// Enrolling twice is harmless.
	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error { return sink.Enroll(tx, order) }))

	var enrollments []models.Enrollment
	require.NoError(t, f.db.Where("user_id = ?", buyer.UserID).Find(&enrollments).Error)
	assert.Len(t, enrollments, 4)
	for _, e := range enrollments {
		if e.EntityType == models.EntitySubscription {
			require.NotNil(t, e.ExpiresAt)
			assert.True(t, e.ExpiresAt.Equal(now.AddDate(0, 0, 60)))
		}
	}
}
