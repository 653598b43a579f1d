package services

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"html/template"
	"log"
	"time"

	"github.com/anjiri1684/course_market/models"
	"github.com/anjiri1684/course_market/money"
	"github.com/anjiri1684/course_market/utils"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"gorm.io/gorm"
)

//go:embed templates/invoice.html
var invoiceTemplateSource string

var invoiceTemplate = template.Must(template.New("invoice").Parse(invoiceTemplateSource))

type PDFRenderer interface {
	RenderPDF(ctx context.Context, html string) ([]byte, error)
}

type FileUploader interface {
	Upload(ctx context.Context, data []byte, publicID string) (string, error)
}

// InvoiceService issues invoices inside the settlement transaction and renders
// their PDFs afterwards. Without a renderer and uploader only the record is kept.
type InvoiceService struct {
	db       *gorm.DB
	renderer PDFRenderer
	uploader FileUploader
	now      func() time.Time
}

func NewInvoiceService(db *gorm.DB, renderer PDFRenderer, uploader FileUploader) *InvoiceService {
	return &InvoiceService{db: db, renderer: renderer, uploader: uploader, now: time.Now}
}

// Issue returns the order's existing invoice or creates one.
func (s *InvoiceService) Issue(tx *gorm.DB, order *models.Order) (*models.Invoice, error) {
	var existing models.Invoice
	err := tx.Where("order_id = ?", order.ID).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var buyer models.User
	if err := tx.Select("full_name", "email").First(&buyer, "id = ?", order.UserID).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	issuedAt := s.now()
	number, err := utils.GenerateUniqueInvoiceNumber(tx, "invoices", issuedAt)
	if err != nil {
		return nil, err
	}

	lines := make([]models.InvoiceLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, models.InvoiceLine{
			Title:     item.Title,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Discount:  item.DiscountAmount,
			Total:     item.NetTotal(),
		})
	}

	invoice := models.Invoice{
		Number:       number,
		OrderID:      order.ID,
		UserID:       order.UserID,
		BillingName:  buyer.FullName,
		BillingEmail: buyer.Email,
		Currency:     order.Currency,
		Subtotal:     order.SubtotalAmount,
		Discount:     order.DiscountAmount,
		Total:        order.TotalAmount,
		Lines:        lines,
		IssuedAt:     issuedAt,
	}
	if err := tx.Create(&invoice).Error; err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}
	return &invoice, nil
}

// Deliver renders and uploads the PDF, then stores its URL. Failures are logged only.
func (s *InvoiceService) Deliver(ctx context.Context, invoice *models.Invoice) {
	if s.renderer == nil || s.uploader == nil || invoice.PDFURL != nil {
		return
	}

	html, err := RenderInvoiceHTML(invoice)
	if err != nil {
		log.Printf("🔥 Failed to generate invoice HTML: %v", err)
		return
	}
	pdf, err := s.renderer.RenderPDF(ctx, html)
	if err != nil {
		log.Printf("🔥 Failed to generate PDF: %v", err)
		return
	}
	url, err := s.uploader.Upload(ctx, pdf, "invoices/"+invoice.Number)
	if err != nil {
		log.Printf("🔥 Failed to upload invoice to Cloudinary: %v", err)
		return
	}
	if err := s.db.WithContext(ctx).Model(&models.Invoice{}).Where("id = ?", invoice.ID).Update("pdf_url", url).Error; err != nil {
		log.Printf("🔥 Failed to store PDF URL for invoice %s: %v", invoice.Number, err)
		return
	}
	invoice.PDFURL = &url
	log.Printf("✅ Generated and uploaded invoice %s.", invoice.Number)
}

func RenderInvoiceHTML(invoice *models.Invoice) (string, error) {
	type line struct {
		Title                      string
		Quantity                   int
		UnitPrice, Discount, Total string
	}
	data := struct {
		Number, IssuedAt, BillingName, BillingEmail, OrderID string
		Subtotal, Discount, Total                            string
		Lines                                                []line
	}{
		Number:       invoice.Number,
		IssuedAt:     invoice.IssuedAt.Format("January 2, 2006"),
		BillingName:  invoice.BillingName,
		BillingEmail: invoice.BillingEmail,
		OrderID:      invoice.OrderID.String(),
		Subtotal:     money.Format(invoice.Subtotal, invoice.Currency),
		Discount:     money.Format(invoice.Discount, invoice.Currency),
		Total:        money.Format(invoice.Total, invoice.Currency),
	}
	for _, l := range invoice.Lines {
		data.Lines = append(data.Lines, line{
			Title:     l.Title,
			Quantity:  l.Quantity,
			UnitPrice: money.Format(l.UnitPrice, invoice.Currency),
			Discount:  money.Format(l.Discount, invoice.Currency),
			Total:     money.Format(l.Total, invoice.Currency),
		})
	}

	var rendered bytes.Buffer
	if err := invoiceTemplate.Execute(&rendered, data); err != nil {
		return "", err
	}
	return rendered.String(), nil
}

// ChromeRenderer prints HTML to PDF with a headless Chrome.
type ChromeRenderer struct{}

func (ChromeRenderer) RenderPDF(ctx context.Context, htmlContent string) ([]byte, error) {
	ctx, cancel := chromedp.NewContext(ctx)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, 30*time.Second)
	defer cancelTimeout()

	var pdfBuffer []byte
	err := chromedp.Run(ctx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frameTree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(frameTree.Frame.ID, htmlContent).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			pdf, _, err := page.PrintToPDF().WithPrintBackground(true).Do(ctx)
			if err != nil {
				return err
			}
			pdfBuffer = pdf
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}
	return pdfBuffer, nil
}

type CloudinaryUploader struct {
	cld    *cloudinary.Cloudinary
	folder string
}

func NewCloudinaryUploader(cloudinaryURL, folder string) (*CloudinaryUploader, error) {
	cld, err := cloudinary.NewFromURL(cloudinaryURL)
	if err != nil {
		return nil, err
	}
	return &CloudinaryUploader{cld: cld, folder: folder}, nil
}

func (u *CloudinaryUploader) Upload(ctx context.Context, data []byte, publicID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	uploadResult, err := u.cld.Upload.Upload(ctx, bytes.NewReader(data), uploader.UploadParams{
		PublicID:     publicID,
		Folder:       u.folder,
		ResourceType: "raw",
	})
	if err != nil {
		return "", err
	}
	return uploadResult.SecureURL, nil
}
