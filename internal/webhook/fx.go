package webhook

import (
	eventdomain "github.com/fortimind/subscriptions/internal/billingevent/domain"
	eventrepo "github.com/fortimind/subscriptions/internal/billingevent/repository"
	"github.com/fortimind/subscriptions/internal/config"
	"github.com/fortimind/subscriptions/internal/paypal"
	"go.uber.org/fx"
)

var Module = fx.Module("webhook",
	fx.Provide(eventrepo.Provide),
	fx.Provide(func(cfg config.Config) *paypal.Client {
		return paypal.NewClient(cfg.PayPal)
	}),
	fx.Provide(func(client *paypal.Client, cfg config.Config) eventdomain.Adapter {
		return paypal.NewAdapter(client, cfg.PayPal.WebhookID)
	}),
	fx.Provide(NewService),
)
