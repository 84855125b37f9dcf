package migration

import (
	eventdomain "github.com/fortimind/subscriptions/internal/billingevent/domain"
	subscriptiondomain "github.com/fortimind/subscriptions/internal/subscription/domain"
)

// migratedModels lists every table AutoMigrate keeps in sync on non-postgres
// databases. Postgres uses the embedded SQL migrations instead.
func migratedModels() []any {
	return []any{
		&subscriptiondomain.UserFlag{},
		&subscriptiondomain.Subscription{},
		&eventdomain.EventRecord{},
	}
}
