package safety

import (
	"context"
	"fmt"

	"github.com/nethalo/indexadvisor/internal/catalog"
)

// StorageBudget enforces the total/per-tenant index storage ceilings
// described in spec §4.5, grounded on original_source/src/
// storage_budget.py's check_storage_budget and get_index_storage_usage.
// Per-tenant attribution is approximate: Postgres has no native notion
// of tenant-owned relations, so current usage is always the schema-wide
// index total and a non-empty tenant only selects the per-tenant cap.
// config.StorageBudgetConfig.TenantAttributionStrategy is not read here.
type StorageBudget struct {
	catalog               *catalog.Catalog
	enabled               bool
	maxPerTenantMB        float64
	maxTotalMB            float64
	warnThresholdPct      float64
}

func NewStorageBudget(cat *catalog.Catalog, enabled bool, maxPerTenantMB, maxTotalMB, warnThresholdPct float64) *StorageBudget {
	return &StorageBudget{
		catalog:          cat,
		enabled:          enabled,
		maxPerTenantMB:   maxPerTenantMB,
		maxTotalMB:       maxTotalMB,
		warnThresholdPct: warnThresholdPct,
	}
}

// BudgetCheck is the outcome of evaluating a prospective index against
// the storage budget.
type BudgetCheck struct {
	Allowed       bool
	Warning       bool
	BudgetType    string // "per_tenant" | "total"
	CurrentMB     float64
	EstimatedMB   float64
	MaxMB         float64
	WarnAtMB      float64
	UsagePct      float64
	Reason        string
}

// Check reports whether creating an index estimated at estimatedNewMB
// would exceed the budget. When tenant is "" the total budget applies;
// otherwise the per-tenant budget applies (current usage is still read
// from the schema-wide total, since Postgres does not natively
// partition relation storage by tenant).
func (b *StorageBudget) Check(ctx context.Context, schema, tenant string, estimatedNewMB float64) (BudgetCheck, error) {
	if !b.enabled {
		return BudgetCheck{Allowed: true, Reason: "storage_budget_disabled"}, nil
	}

	currentBytes, err := b.catalog.TotalIndexSizeBytes(ctx, schema)
	if err != nil {
		return BudgetCheck{Allowed: true, Reason: "could_not_check_budget"}, err
	}
	currentMB := float64(currentBytes) / (1024.0 * 1024.0)
	newMB := currentMB + estimatedNewMB

	maxMB := b.maxTotalMB
	budgetType := "total"
	if tenant != "" {
		maxMB = b.maxPerTenantMB
		budgetType = "per_tenant"
	}

	warnAt := maxMB * (b.warnThresholdPct / 100.0)
	allowed := newMB <= maxMB
	warning := newMB > warnAt

	var usagePct float64
	if maxMB > 0 {
		usagePct = newMB / maxMB * 100.0
	}

	reason := "Within storage budget"
	if !allowed {
		reason = fmt.Sprintf("would exceed %s storage budget (%.1fMB > %.1fMB)", budgetType, newMB, maxMB)
	} else if warning {
		reason = fmt.Sprintf("approaching %s storage budget (%.1fMB > %.1fMB threshold)", budgetType, newMB, warnAt)
	}

	return BudgetCheck{
		Allowed:     allowed,
		Warning:     warning,
		BudgetType:  budgetType,
		CurrentMB:   currentMB,
		EstimatedMB: newMB,
		MaxMB:       maxMB,
		WarnAtMB:    warnAt,
		UsagePct:    usagePct,
		Reason:      reason,
	}, nil
}

// Status reports the schema's overall storage-budget standing, used by
// the status CLI command.
type BudgetStatus struct {
	Enabled          bool
	TotalMB          float64
	MaxMB            float64
	UsagePct         float64
	WithinBudget     bool
	ApproachingLimit bool
}

func (b *StorageBudget) Status(ctx context.Context, schema string) (BudgetStatus, error) {
	if !b.enabled {
		return BudgetStatus{Enabled: false}, nil
	}
	currentBytes, err := b.catalog.TotalIndexSizeBytes(ctx, schema)
	if err != nil {
		return BudgetStatus{}, err
	}
	totalMB := float64(currentBytes) / (1024.0 * 1024.0)
	warnAt := b.maxTotalMB * (b.warnThresholdPct / 100.0)
	var usagePct float64
	if b.maxTotalMB > 0 {
		usagePct = totalMB / b.maxTotalMB * 100.0
	}
	return BudgetStatus{
		Enabled:          true,
		TotalMB:          totalMB,
		MaxMB:            b.maxTotalMB,
		UsagePct:         usagePct,
		WithinBudget:     totalMB <= b.maxTotalMB,
		ApproachingLimit: totalMB > warnAt,
	}, nil
}
