package utils

import (
	"fmt"
	"math/rand"
	"time"

	"gorm.io/gorm"
)

const invoiceSuffixLength = 6
const letterBytes = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateUniqueInvoiceNumber returns INV-YYYYMMDD-XXXXXX not yet present in table.column.
func GenerateUniqueInvoiceNumber(tx *gorm.DB, table string, issuedAt time.Time) (string, error) {
	seededRand := rand.New(rand.NewSource(time.Now().UnixNano()))

	for attempt := 0; attempt < 10; attempt++ {
		b := make([]byte, invoiceSuffixLength)
		for i := range b {
			b[i] = letterBytes[seededRand.Intn(len(letterBytes))]
		}
		number := fmt.Sprintf("INV-%s-%s", issuedAt.Format("20060102"), string(b))

		var count int64
		if err := tx.Table(table).Where("number = ?", number).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return number, nil
		}
	}
	return "", fmt.Errorf("could not allocate a unique invoice number")
}
