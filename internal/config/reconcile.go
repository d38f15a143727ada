package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const defaultMinorUnitsPerMajor = 100

// ReconcilePolicy tunes the amount reconciler.
type ReconcilePolicy struct {
	ToleranceMinor int64            `mapstructure:"tolerance_minor"`
	MinorUnits     map[string]int64 `mapstructure:"minor_units_per_major"`
}

func DefaultReconcilePolicy() ReconcilePolicy {
	return ReconcilePolicy{
		ToleranceMinor: 1,
		MinorUnits: map[string]int64{
			"INR": 100,
			"USD": 100,
			"EUR": 100,
			"JPY": 1,
		},
	}
}

// MinorPerMajor returns how many minor units make up one major unit of currency.
func (p ReconcilePolicy) MinorPerMajor(currency string) int64 {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	for code, units := range p.MinorUnits {
		if strings.EqualFold(code, currency) && units > 0 {
			return units
		}
	}
	return defaultMinorUnitsPerMajor
}

type ReconcileConfigHolder struct {
	current atomic.Value // holds ReconcilePolicy
	v       *viper.Viper
}

var reconcileConfigPaths = []string{"/var/lib/paysync/config", "/etc/paysync", "."}

// NewStaticReconcileConfigHolder returns a holder that never reloads.
func NewStaticReconcileConfigHolder(policy ReconcilePolicy) *ReconcileConfigHolder {
	holder := &ReconcileConfigHolder{}
	holder.current.Store(policy)
	return holder
}

func NewReconcileConfigHolder() (*ReconcileConfigHolder, error) {
	return newReconcileConfigHolder(reconcileConfigPaths...)
}

func newReconcileViper(paths ...string) *viper.Viper {
	v := viper.New()

	v.SetConfigName("reconcile")
	v.SetConfigType("yml")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	v.SetEnvPrefix("PAYSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("reconcile.tolerance_minor", DefaultReconcilePolicy().ToleranceMinor)
	return v
}

func newReconcileConfigHolder(paths ...string) (*ReconcileConfigHolder, error) {
	v := newReconcileViper(paths...)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	cfg, err := decodeReconcilePolicy(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticReconcileConfigHolder(cfg)
	holder.v = v
	if !fileLoaded {
		return holder, nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if err := holder.reload(); err != nil {
			log.Printf("[reconcile-config] invalid config ignored: %v", err)
			return
		}
		log.Printf("[reconcile-config] reloaded from %s", e.Name)
	})
	v.WatchConfig()

	return holder, nil
}

// reload decodes the values viper currently holds and swaps them in only when
// they validate.
func (h *ReconcileConfigHolder) reload() error {
	if h == nil || h.v == nil {
		return errors.New("reconcile config is not file backed")
	}
	updated, err := decodeReconcilePolicy(h.v)
	if err != nil {
		return err
	}
	h.current.Store(updated)
	return nil
}

// decodeReconcilePolicy layers the file onto the defaults. Currencies missing
// from the file keep their default minor units.
func decodeReconcilePolicy(v *viper.Viper) (ReconcilePolicy, error) {
	var raw struct {
		MinorUnits map[string]int64 `mapstructure:"minor_units_per_major"`
	}
	if err := v.UnmarshalKey("reconcile", &raw); err != nil {
		return ReconcilePolicy{}, err
	}

	policy := DefaultReconcilePolicy()
	policy.ToleranceMinor = v.GetInt64("reconcile.tolerance_minor")
	for code, units := range raw.MinorUnits {
		policy.MinorUnits[strings.ToUpper(strings.TrimSpace(code))] = units
	}

	if err := validateReconcilePolicy(policy); err != nil {
		return ReconcilePolicy{}, err
	}
	return policy, nil
}

func (h *ReconcileConfigHolder) Get() ReconcilePolicy {
	if h == nil {
		return DefaultReconcilePolicy()
	}
	policy, ok := h.current.Load().(ReconcilePolicy)
	if !ok {
		return DefaultReconcilePolicy()
	}
	return policy
}

func validateReconcilePolicy(cfg ReconcilePolicy) error {
	if cfg.ToleranceMinor < 0 {
		return errors.New("reconcile.tolerance_minor cannot be negative")
	}
	for code, units := range cfg.MinorUnits {
		if units <= 0 {
			return errors.New("reconcile.minor_units_per_major." + code + " must be positive")
		}
	}
	return nil
}
