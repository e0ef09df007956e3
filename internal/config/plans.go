package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// PlanDefinition is one tier of the plan catalog file.
type PlanDefinition struct {
	Name        string   `mapstructure:"name"`
	DisplayName string   `mapstructure:"display_name"`
	Price       int64    `mapstructure:"price"`
	Currency    string   `mapstructure:"currency"`
	MaxPatients int      `mapstructure:"max_patients"`
	Features    []string `mapstructure:"features"`
	Active      *bool    `mapstructure:"active"`
}

func (d PlanDefinition) IsActive() bool {
	return d.Active == nil || *d.Active
}

type PlanCatalog struct {
	Plans []PlanDefinition `mapstructure:"plans"`
}

func DefaultPlanCatalog() PlanCatalog {
	return PlanCatalog{
		Plans: []PlanDefinition{
			{Name: "starter", DisplayName: "Starter", Price: 2900, Currency: "eur", MaxPatients: 100, Features: []string{"patients", "appointments"}},
			{Name: "professional", DisplayName: "Professional", Price: 5900, Currency: "eur", MaxPatients: 500, Features: []string{"patients", "appointments", "medical_records", "export"}},
			{Name: "enterprise", DisplayName: "Enterprise", Price: 14900, Currency: "eur", MaxPatients: -1, Features: []string{"patients", "appointments", "medical_records", "export", "multi_practitioner"}},
		},
	}
}

type PlanCatalogHolder struct {
	current atomic.Value // holds PlanCatalog

	mu        sync.Mutex
	listeners []func(PlanCatalog)
}

// NewPlanCatalogHolder reads plans.yml and keeps it current on file changes.
// When no file is found the built-in catalog is used and nothing is watched.
func NewPlanCatalogHolder(cfg Config, log *zap.Logger) (*PlanCatalogHolder, error) {
	log = log.Named("config.plans")
	v := viper.New()

	if cfg.PlanCatalogPath != "" {
		v.SetConfigFile(cfg.PlanCatalogPath)
	} else {
		v.SetConfigName("plans")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/cabinet")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("CABINET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	holder := &PlanCatalogHolder{}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read plan catalog: %w", err)
		}
		holder.current.Store(DefaultPlanCatalog())
		log.Info("plan catalog file not found, using defaults")
		return holder, nil
	}

	catalog, err := decodeCatalog(v)
	if err != nil {
		return nil, err
	}
	holder.current.Store(catalog)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeCatalog(v)
		if err != nil {
			log.Warn("plan catalog reload rejected", zap.String("file", filepath.Base(e.Name)), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("plan catalog reloaded", zap.String("file", filepath.Base(e.Name)), zap.Int("plans", len(updated.Plans)))
		holder.notify(updated)
	})

	return holder, nil
}

// NewStaticPlanCatalogHolder pins a catalog, mostly for tests and CLI use.
func NewStaticPlanCatalogHolder(catalog PlanCatalog) *PlanCatalogHolder {
	holder := &PlanCatalogHolder{}
	holder.current.Store(catalog)
	return holder
}

func (h *PlanCatalogHolder) Get() PlanCatalog {
	return h.current.Load().(PlanCatalog)
}

// OnChange registers fn to run after every accepted reload.
func (h *PlanCatalogHolder) OnChange(fn func(PlanCatalog)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, fn)
}

func (h *PlanCatalogHolder) notify(catalog PlanCatalog) {
	h.mu.Lock()
	listeners := append([]func(PlanCatalog){}, h.listeners...)
	h.mu.Unlock()
	for _, fn := range listeners {
		fn(catalog)
	}
}

func decodeCatalog(v *viper.Viper) (PlanCatalog, error) {
	var catalog PlanCatalog
	if err := v.Unmarshal(&catalog); err != nil {
		return PlanCatalog{}, fmt.Errorf("decode plan catalog: %w", err)
	}
	if err := ValidatePlanCatalog(catalog); err != nil {
		return PlanCatalog{}, err
	}
	return catalog, nil
}

func ValidatePlanCatalog(catalog PlanCatalog) error {
	if len(catalog.Plans) == 0 {
		return errors.New("plans cannot be empty")
	}
	seen := make(map[string]struct{}, len(catalog.Plans))
	for _, p := range catalog.Plans {
		name := strings.ToLower(strings.TrimSpace(p.Name))
		if name == "" {
			return errors.New("plan name is required")
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("duplicate plan %q", name)
		}
		seen[name] = struct{}{}
		if p.MaxPatients < -1 {
			return fmt.Errorf("plan %q: max_patients must be -1 or positive", name)
		}
		if p.Price < 0 {
			return fmt.Errorf("plan %q: price cannot be negative", name)
		}
	}
	return nil
}
