package subscription

import (
	"github.com/fortimind/subscriptions/internal/subscription/repository"
	"github.com/fortimind/subscriptions/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
