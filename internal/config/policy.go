package config

import (
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ReconcilerPolicy controls how the hourly sweep judges premium users.
type ReconcilerPolicy struct {
	// PaymentOverdueDays is one billing cycle plus grace. Past it a
	// premium user is flagged for review, never auto-deactivated.
	PaymentOverdueDays int `mapstructure:"paymentOverdueDays"`
	BatchSize          int `mapstructure:"batchSize"`
}

func DefaultReconcilerPolicy() ReconcilerPolicy {
	return ReconcilerPolicy{
		PaymentOverdueDays: 35,
		BatchSize:          100,
	}
}

// PolicyHolder exposes the current reconciler policy and hot-reloads it
// when the backing file changes.
type PolicyHolder struct {
	current atomic.Value // holds ReconcilerPolicy
}

func NewPolicyHolder() (*PolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("reconciler")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/fortimind/config")
	v.AddConfigPath("/etc/fortimind")
	v.AddConfigPath(".")

	v.SetEnvPrefix("FORTIMIND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultReconcilerPolicy()
	v.SetDefault("reconciler.paymentOverdueDays", defaults.PaymentOverdueDays)
	v.SetDefault("reconciler.batchSize", defaults.BatchSize)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	holder := &PolicyHolder{}
	holder.store(loadPolicy(v))

	v.OnConfigChange(func(_ fsnotify.Event) {
		holder.store(loadPolicy(v))
		log.Println("reconciler policy reloaded")
	})
	v.WatchConfig()

	return holder, nil
}

// NewStaticPolicyHolder returns a holder pinned to the given policy,
// with no file watching. Intended for tests and one-shot tools.
func NewStaticPolicyHolder(policy ReconcilerPolicy) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.store(policy)
	return holder
}

// Current returns the active policy.
func (h *PolicyHolder) Current() ReconcilerPolicy {
	value := h.current.Load()
	policy, ok := value.(ReconcilerPolicy)
	if !ok {
		return DefaultReconcilerPolicy()
	}
	return policy
}

func (h *PolicyHolder) store(policy ReconcilerPolicy) {
	h.current.Store(policy.withDefaults())
}

func loadPolicy(v *viper.Viper) ReconcilerPolicy {
	var policy ReconcilerPolicy
	if err := v.UnmarshalKey("reconciler", &policy); err != nil {
		return DefaultReconcilerPolicy()
	}
	return policy
}

func (p ReconcilerPolicy) withDefaults() ReconcilerPolicy {
	defaults := DefaultReconcilerPolicy()
	if p.PaymentOverdueDays <= 0 {
		p.PaymentOverdueDays = defaults.PaymentOverdueDays
	}
	if p.BatchSize <= 0 {
		p.BatchSize = defaults.BatchSize
	}
	return p
}
