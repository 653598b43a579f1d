package jobs

import (
	"context"
	"log"
	"time"

	"github.com/anjiri1684/course_market/services"
)

func RefreshRates(rates *services.ExchangeRateService) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		table, err := rates.Refresh(ctx)
		if err != nil {
			log.Printf("Error refreshing exchange rates: %v", err)
			return
		}
		log.Printf("✅ Exchange rates refreshed (%d currencies)", len(table))
	}
}
