package jobs

import (
	"context"
	"log"
	"time"

	"github.com/anjiri1684/course_market/services"
)

type OrderExpirer interface {
	ExpireStale(ctx context.Context, olderThan time.Duration) (int, error)
}

// ExpireStaleOrders returns a cron func that cancels or fails PENDING orders
// older than ttl with no payment still in flight.
func ExpireStaleOrders(orders OrderExpirer, ttl time.Duration) func() {
	return func() {
		log.Println("Running job: ExpireStaleOrders...")

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		n, err := orders.ExpireStale(ctx, ttl)
		if err != nil {
			log.Printf("Error expiring stale orders: %v", err)
			return
		}
		if n == 0 {
			log.Println("No stale orders found.")
			return
		}
		log.Printf("Expired %d stale order(s).", n)
	}
}

var _ OrderExpirer = (*services.OrderService)(nil)
