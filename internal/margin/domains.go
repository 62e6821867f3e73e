package margin

import (
	"MarginFlow/internal/domain/models"
	domrepo "MarginFlow/internal/domain/repository"
	"MarginFlow/pkg/config"
	"MarginFlow/pkg/logger"
)

// The five domain constructors translate config baselines into the generic
// manager. Sizing rules differ per domain; the lifecycle contract does not.

func NewTimeManager(cfg config.TimeDomain, l *logger.Logger, metrics domrepo.Metrics) *Manager {
	c := baseConfig(cfg.Domain, "time", models.MarginTime)
	c.Capacity = cfg.DefaultBufferTime
	if c.SeverityUnit == 0 {
		c.SeverityUnit = 15 // minutes
	}
	return NewManager(c, l, metrics)
}

func NewCapacityManager(cfg config.CapacityDomain, l *logger.Logger, metrics domrepo.Metrics) *Manager {
	c := baseConfig(cfg.Domain, "capacity", models.MarginCapacity)
	c.Capacity = cfg.DefaultBufferPercentage
	if c.SeverityUnit == 0 {
		c.SeverityUnit = 2.5 // percent of fleet capacity
	}
	return NewManager(c, l, metrics)
}

func NewMaterialManager(cfg config.MaterialDomain, l *logger.Logger, metrics domrepo.Metrics) *Manager {
	c := baseConfig(cfg.Domain, "material", models.MarginMaterial)
	c.Capacity = cfg.DefaultStockUnits
	if c.SeverityUnit == 0 {
		c.SeverityUnit = 5 // stock units
	}
	return NewManager(c, l, metrics)
}

func NewFinancialManager(cfg config.FinancialDomain, l *logger.Logger, metrics domrepo.Metrics) *Manager {
	c := baseConfig(cfg.Domain, "financial", models.MarginFinancial)
	c.Capacity = cfg.DefaultContingencyPercentage
	c.Currency = cfg.Currency
	if c.Currency == "" {
		c.Currency = "USD"
	}
	if c.SeverityUnit == 0 {
		c.SeverityUnit = 1 // percent of contingency budget
	}
	return NewManager(c, l, metrics)
}

func NewSurgeManager(cfg config.SurgeDomain, l *logger.Logger, metrics domrepo.Metrics) *Manager {
	c := baseConfig(cfg.Domain, "surge", models.MarginCapacity)
	c.Capacity = cfg.DefaultSurgeCapacity
	c.SurgeThreshold = cfg.SurgeThreshold
	if c.SurgeThreshold == 0 {
		c.SurgeThreshold = 1.5
	}
	if c.SeverityUnit == 0 {
		c.SeverityUnit = 5 // surge crew slots
	}
	return NewManager(c, l, metrics)
}

// NewAll builds the five domain managers from configuration.
func NewAll(cfg *config.Config, l *logger.Logger, metrics domrepo.Metrics) []*Manager {
	return []*Manager{
		NewTimeManager(cfg.Domains.Time, l, metrics),
		NewCapacityManager(cfg.Domains.Capacity, l, metrics),
		NewMaterialManager(cfg.Domains.Material, l, metrics),
		NewFinancialManager(cfg.Domains.Financial, l, metrics),
		NewSurgeManager(cfg.Domains.Surge, l, metrics),
	}
}

func baseConfig(d config.Domain, name string, mt models.MarginType) Config {
	return Config{
		Domain:                   name,
		Type:                     mt,
		Enabled:                  d.Enabled,
		EmergencyReserve:         d.EmergencyReserve,
		SeverityUnit:             d.SeverityUnit,
		MaxConcurrentAllocations: d.MaxConcurrentAllocations,
		UpdateInterval:           d.UpdateInterval,
		AllocationTTL:            d.AllocationTTL,
		RecentEventsSize:         d.RecentEvents,
	}
}
