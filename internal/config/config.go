// Package config wires the advisor's hierarchical configuration through
// viper: a YAML file, environment overrides, and code-level defaults so a
// missing key never panics.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config is a typed snapshot of the advisor's configuration. It is
// re-derived from viper on load and on every hot-reload.
type Config struct {
	DSN string

	Bypass BypassConfig

	Interceptor   InterceptorConfig
	AutoIndexer   AutoIndexerConfig
	CPUThrottle   CPUThrottleConfig
	RateLimiter   RateLimiterGroup
	CERT          CERTConfig
	QPG           QPGConfig
	Cortex        CortexConfig
	Predictive    PredictiveConfig
	IndexRetry    IndexRetryConfig
	StorageBudget StorageBudgetConfig

	MaintenanceWindow MaintenanceWindowConfig
	WritePerformance  WritePerformanceConfig
}

type BypassConfig struct {
	SystemEnabled             bool
	AutoIndexingEnabled       bool
	StatsCollectionEnabled    bool
	ExpressionChecksEnabled   bool
	MutationLoggingEnabled    bool
	SchemaEvolutionEnabled    bool
	ReportingEnabled          bool
	HealthChecksEnabled       bool
	InterceptorEnabled        bool
	RetryEnabled              bool
	SkipStartupInitialization bool
}

type InterceptorConfig struct {
	MaxQueryCost         float64
	MaxSeqScanCost       float64
	MaxPlanningTimeMs    float64
	EnableBlocking       bool
	EnableRateLimiting   bool
	EnablePlanCache      bool
	PlanCacheTTL         time.Duration
	PlanCacheMaxSize     int
	SafetyScoreWarnAt    float64
	SafetyScoreUnsafeAt  float64
	QueryPreviewLength   int
}

type AutoIndexerConfig struct {
	BuildCostPer1000Rows           float64
	QueryCostPer10000Rows          float64
	MinSelectivityForIndex         float64
	MinImprovementPct              float64
	SampleQueryRuns                int
	UseRealQueryPlans              bool
	SmallTableRowCount             int64
	MediumTableRowCount            int64
	SmallTableMinQueriesPerHour    int
	LargeTableCostReductionFactor  float64
	MaxWaitForMaintenanceWindow    time.Duration
	MinQueryThreshold              int
	WindowDuration                 time.Duration
	MLWeight                       float64
}

type CPUThrottleConfig struct {
	CPUThreshold           float64
	CPUCooldown            time.Duration
	MaxCPUDuringCreation   float64
	MinDelayBetweenIndexes time.Duration
	CPUMonitoringWindow    time.Duration
	MaxCooldownWait        time.Duration
}

type RateLimiterGroup struct {
	Query         RateLimitConfig
	IndexCreation RateLimitConfig
	Connection    RateLimitConfig
}

type RateLimitConfig struct {
	MaxRequests       int
	TimeWindowSeconds float64
}

type CERTConfig struct {
	MaxErrorPct float64
}

type QPGConfig struct {
	Enabled                 bool
	DiversePlanGeneration   bool
	BottleneckAnalysisDepth int
	IdentifyLogicBugs       bool
}

type CortexConfig struct {
	Enabled                bool
	CorrelationThreshold   float64
	MinCorrelationSamples  int
	SampleSize             int
}

type PredictiveConfig struct {
	Enabled            bool
	UseMLModel         bool
	UseHistoricalData  bool
}

type IndexRetryConfig struct {
	Enabled              bool
	MaxRetries           int
	InitialDelay         time.Duration
	MaxDelay             time.Duration
	BackoffMultiplier    float64
	RetryableErrorWords  []string
}

type StorageBudgetConfig struct {
	Enabled                   bool
	MaxStoragePerTenantMB     float64
	MaxStorageTotalMB         float64
	WarnThresholdPct          float64
	TenantAttributionStrategy string // "global_catalog" | "naming_convention"
}

type MaintenanceWindowConfig struct {
	Enabled    bool
	StartHour  int
	EndHour    int
	DaysOfWeek []int
}

type WritePerformanceConfig struct {
	Enabled                bool
	MaxIndexesPerTable     int
	WarnIndexesPerTable    int
	WriteOverheadThreshold float64
}

// Load reads the config file (if any), applies defaults, and binds env
// overrides under the given prefix. It never returns an error for a
// missing file — only for a malformed one.
func Load(envPrefix, cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(home + "/.indexadvisor")
		}
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	return fromViper(v), nil
}

// Watch starts a file-change watcher that invokes cb with a freshly
// derived Config whenever the underlying file changes. It is a thin
// wrapper over viper.WatchConfig/fsnotify, matching the spec's
// requirement for live threshold tuning without a restart.
func Watch(v *viper.Viper, logger *zap.Logger, cb func(*Config)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		logger.Info("config changed, reloading", zap.String("file", e.Name))
		cb(fromViper(v))
	})
	v.WatchConfig()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bypass.system.enabled", false)
	v.SetDefault("bypass.features.auto_indexing.enabled", true)
	v.SetDefault("bypass.features.stats_collection.enabled", true)
	v.SetDefault("bypass.features.expression_checks.enabled", true)
	v.SetDefault("bypass.features.mutation_logging.enabled", true)
	v.SetDefault("bypass.features.schema_evolution.enabled", true)
	v.SetDefault("bypass.features.reporting.enabled", true)
	v.SetDefault("bypass.features.health_checks.enabled", true)
	v.SetDefault("bypass.features.interceptor.enabled", true)
	v.SetDefault("bypass.features.retry.enabled", true)
	v.SetDefault("bypass.startup.skip_initialization", false)

	v.SetDefault("features.query_interceptor.max_query_cost", 10000.0)
	v.SetDefault("features.query_interceptor.max_seq_scan_cost", 1000.0)
	v.SetDefault("features.query_interceptor.max_planning_time_ms", 500.0)
	v.SetDefault("features.query_interceptor.enable_blocking", true)
	v.SetDefault("features.query_interceptor.enable_rate_limiting", true)
	v.SetDefault("features.query_interceptor.enable_plan_cache", true)
	v.SetDefault("features.query_interceptor.plan_cache_ttl_seconds", 300)
	v.SetDefault("features.query_interceptor.plan_cache_max_size", 1000)
	v.SetDefault("features.query_interceptor.safety_score_warn_at", 0.7)
	v.SetDefault("features.query_interceptor.safety_score_unsafe_at", 0.4)
	v.SetDefault("features.query_interceptor.query_preview_length", 200)

	v.SetDefault("features.auto_indexer.build_cost_per_1000_rows", 1.0)
	v.SetDefault("features.auto_indexer.query_cost_per_10000_rows", 1.0)
	v.SetDefault("features.auto_indexer.min_selectivity_for_index", 0.05)
	v.SetDefault("features.auto_indexer.min_improvement_pct", 20.0)
	v.SetDefault("features.auto_indexer.sample_query_runs", 5)
	v.SetDefault("features.auto_indexer.use_real_query_plans", true)
	v.SetDefault("features.auto_indexer.small_table_row_count", 10000)
	v.SetDefault("features.auto_indexer.medium_table_row_count", 1000000)
	v.SetDefault("features.auto_indexer.small_table_min_queries_per_hour", 10)
	v.SetDefault("features.auto_indexer.large_table_cost_reduction_factor", 0.8)
	v.SetDefault("features.auto_indexer.max_wait_for_maintenance_window_seconds", 3600)
	v.SetDefault("features.auto_indexer.min_query_threshold", 100)
	v.SetDefault("features.auto_indexer.window_duration_seconds", 3600)
	v.SetDefault("features.auto_indexer.ml_weight", 0.3)

	v.SetDefault("features.cpu_throttle.cpu_threshold", 80.0)
	v.SetDefault("features.cpu_throttle.cpu_cooldown_seconds", 30)
	v.SetDefault("features.cpu_throttle.max_cpu_during_creation", 90.0)
	v.SetDefault("features.cpu_throttle.min_delay_between_indexes_seconds", 5)
	v.SetDefault("features.cpu_throttle.cpu_monitoring_window_seconds", 10)
	v.SetDefault("features.cpu_throttle.max_cooldown_wait_seconds", 300)

	v.SetDefault("features.rate_limiter.query.max_requests", 1000)
	v.SetDefault("features.rate_limiter.query.time_window_seconds", 60.0)
	v.SetDefault("features.rate_limiter.index_creation.max_requests", 10)
	v.SetDefault("features.rate_limiter.index_creation.time_window_seconds", 3600.0)
	v.SetDefault("features.rate_limiter.connection.max_requests", 100)
	v.SetDefault("features.rate_limiter.connection.time_window_seconds", 60.0)

	v.SetDefault("features.cert.max_error_pct", 50.0)

	v.SetDefault("features.qpg.enabled", true)
	v.SetDefault("features.qpg.diverse_plan_generation", true)
	v.SetDefault("features.qpg.bottleneck_analysis_depth", 3)
	v.SetDefault("features.qpg.identify_logic_bugs", true)

	v.SetDefault("features.cortex.enabled", true)
	v.SetDefault("features.cortex.correlation_threshold", 0.7)
	v.SetDefault("features.cortex.min_correlation_samples", 100)
	v.SetDefault("features.cortex.sample_size", 10000)

	v.SetDefault("features.predictive_indexing.enabled", true)
	v.SetDefault("features.predictive_indexing.use_ml_model", true)
	v.SetDefault("features.predictive_indexing.use_historical_data", true)

	v.SetDefault("features.index_retry.enabled", true)
	v.SetDefault("features.index_retry.max_retries", 3)
	v.SetDefault("features.index_retry.initial_delay_seconds", 5.0)
	v.SetDefault("features.index_retry.max_delay_seconds", 60.0)
	v.SetDefault("features.index_retry.backoff_multiplier", 2.0)
	v.SetDefault("features.index_retry.retryable_errors", []string{
		"timeout", "connection", "lock", "deadlock", "temporary", "resource",
	})

	v.SetDefault("features.storage_budget.enabled", true)
	v.SetDefault("features.storage_budget.max_storage_per_tenant_mb", 1000.0)
	v.SetDefault("features.storage_budget.max_storage_total_mb", 10000.0)
	v.SetDefault("features.storage_budget.warn_threshold_pct", 80.0)
	v.SetDefault("features.storage_budget.tenant_attribution_strategy", "global_catalog")

	v.SetDefault("production_safeguards.maintenance_window.enabled", true)
	v.SetDefault("production_safeguards.maintenance_window.start_hour", 2)
	v.SetDefault("production_safeguards.maintenance_window.end_hour", 6)
	v.SetDefault("production_safeguards.maintenance_window.days_of_week", []int{0, 1, 2, 3, 4, 5, 6})

	v.SetDefault("production_safeguards.write_performance.enabled", true)
	v.SetDefault("production_safeguards.write_performance.max_indexes_per_table", 10)
	v.SetDefault("production_safeguards.write_performance.warn_indexes_per_table", 7)
	v.SetDefault("production_safeguards.write_performance.write_overhead_threshold", 0.2)
}

func fromViper(v *viper.Viper) *Config {
	days := v.GetIntSlice("production_safeguards.maintenance_window.days_of_week")
	if len(days) == 0 {
		days = []int{0, 1, 2, 3, 4, 5, 6}
	}

	return &Config{
		DSN: v.GetString("dsn"),
		Bypass: BypassConfig{
			SystemEnabled:             v.GetBool("bypass.system.enabled"),
			AutoIndexingEnabled:       v.GetBool("bypass.features.auto_indexing.enabled"),
			StatsCollectionEnabled:    v.GetBool("bypass.features.stats_collection.enabled"),
			ExpressionChecksEnabled:   v.GetBool("bypass.features.expression_checks.enabled"),
			MutationLoggingEnabled:    v.GetBool("bypass.features.mutation_logging.enabled"),
			SchemaEvolutionEnabled:    v.GetBool("bypass.features.schema_evolution.enabled"),
			ReportingEnabled:          v.GetBool("bypass.features.reporting.enabled"),
			HealthChecksEnabled:       v.GetBool("bypass.features.health_checks.enabled"),
			InterceptorEnabled:        v.GetBool("bypass.features.interceptor.enabled"),
			RetryEnabled:              v.GetBool("bypass.features.retry.enabled"),
			SkipStartupInitialization: v.GetBool("bypass.startup.skip_initialization"),
		},
		Interceptor: InterceptorConfig{
			MaxQueryCost:        v.GetFloat64("features.query_interceptor.max_query_cost"),
			MaxSeqScanCost:      v.GetFloat64("features.query_interceptor.max_seq_scan_cost"),
			MaxPlanningTimeMs:   v.GetFloat64("features.query_interceptor.max_planning_time_ms"),
			EnableBlocking:      v.GetBool("features.query_interceptor.enable_blocking"),
			EnableRateLimiting:  v.GetBool("features.query_interceptor.enable_rate_limiting"),
			EnablePlanCache:     v.GetBool("features.query_interceptor.enable_plan_cache"),
			PlanCacheTTL:        time.Duration(v.GetInt64("features.query_interceptor.plan_cache_ttl_seconds")) * time.Second,
			PlanCacheMaxSize:    v.GetInt("features.query_interceptor.plan_cache_max_size"),
			SafetyScoreWarnAt:   v.GetFloat64("features.query_interceptor.safety_score_warn_at"),
			SafetyScoreUnsafeAt: v.GetFloat64("features.query_interceptor.safety_score_unsafe_at"),
			QueryPreviewLength:  v.GetInt("features.query_interceptor.query_preview_length"),
		},
		AutoIndexer: AutoIndexerConfig{
			BuildCostPer1000Rows:          v.GetFloat64("features.auto_indexer.build_cost_per_1000_rows"),
			QueryCostPer10000Rows:         v.GetFloat64("features.auto_indexer.query_cost_per_10000_rows"),
			MinSelectivityForIndex:        v.GetFloat64("features.auto_indexer.min_selectivity_for_index"),
			MinImprovementPct:             v.GetFloat64("features.auto_indexer.min_improvement_pct"),
			SampleQueryRuns:               v.GetInt("features.auto_indexer.sample_query_runs"),
			UseRealQueryPlans:             v.GetBool("features.auto_indexer.use_real_query_plans"),
			SmallTableRowCount:            v.GetInt64("features.auto_indexer.small_table_row_count"),
			MediumTableRowCount:           v.GetInt64("features.auto_indexer.medium_table_row_count"),
			SmallTableMinQueriesPerHour:   v.GetInt("features.auto_indexer.small_table_min_queries_per_hour"),
			LargeTableCostReductionFactor: v.GetFloat64("features.auto_indexer.large_table_cost_reduction_factor"),
			MaxWaitForMaintenanceWindow:   time.Duration(v.GetInt64("features.auto_indexer.max_wait_for_maintenance_window_seconds")) * time.Second,
			MinQueryThreshold:             v.GetInt("features.auto_indexer.min_query_threshold"),
			WindowDuration:                time.Duration(v.GetInt64("features.auto_indexer.window_duration_seconds")) * time.Second,
			MLWeight:                      v.GetFloat64("features.auto_indexer.ml_weight"),
		},
		CPUThrottle: CPUThrottleConfig{
			CPUThreshold:           v.GetFloat64("features.cpu_throttle.cpu_threshold"),
			CPUCooldown:            time.Duration(v.GetInt64("features.cpu_throttle.cpu_cooldown_seconds")) * time.Second,
			MaxCPUDuringCreation:   v.GetFloat64("features.cpu_throttle.max_cpu_during_creation"),
			MinDelayBetweenIndexes: time.Duration(v.GetInt64("features.cpu_throttle.min_delay_between_indexes_seconds")) * time.Second,
			CPUMonitoringWindow:    time.Duration(v.GetInt64("features.cpu_throttle.cpu_monitoring_window_seconds")) * time.Second,
			MaxCooldownWait:        time.Duration(v.GetInt64("features.cpu_throttle.max_cooldown_wait_seconds")) * time.Second,
		},
		RateLimiter: RateLimiterGroup{
			Query: RateLimitConfig{
				MaxRequests:       v.GetInt("features.rate_limiter.query.max_requests"),
				TimeWindowSeconds: v.GetFloat64("features.rate_limiter.query.time_window_seconds"),
			},
			IndexCreation: RateLimitConfig{
				MaxRequests:       v.GetInt("features.rate_limiter.index_creation.max_requests"),
				TimeWindowSeconds: v.GetFloat64("features.rate_limiter.index_creation.time_window_seconds"),
			},
			Connection: RateLimitConfig{
				MaxRequests:       v.GetInt("features.rate_limiter.connection.max_requests"),
				TimeWindowSeconds: v.GetFloat64("features.rate_limiter.connection.time_window_seconds"),
			},
		},
		CERT: CERTConfig{
			MaxErrorPct: v.GetFloat64("features.cert.max_error_pct"),
		},
		QPG: QPGConfig{
			Enabled:                 v.GetBool("features.qpg.enabled"),
			DiversePlanGeneration:   v.GetBool("features.qpg.diverse_plan_generation"),
			BottleneckAnalysisDepth: v.GetInt("features.qpg.bottleneck_analysis_depth"),
			IdentifyLogicBugs:       v.GetBool("features.qpg.identify_logic_bugs"),
		},
		Cortex: CortexConfig{
			Enabled:               v.GetBool("features.cortex.enabled"),
			CorrelationThreshold:  v.GetFloat64("features.cortex.correlation_threshold"),
			MinCorrelationSamples: v.GetInt("features.cortex.min_correlation_samples"),
			SampleSize:            v.GetInt("features.cortex.sample_size"),
		},
		Predictive: PredictiveConfig{
			Enabled:           v.GetBool("features.predictive_indexing.enabled"),
			UseMLModel:        v.GetBool("features.predictive_indexing.use_ml_model"),
			UseHistoricalData: v.GetBool("features.predictive_indexing.use_historical_data"),
		},
		IndexRetry: IndexRetryConfig{
			Enabled:             v.GetBool("features.index_retry.enabled"),
			MaxRetries:          v.GetInt("features.index_retry.max_retries"),
			InitialDelay:        time.Duration(v.GetFloat64("features.index_retry.initial_delay_seconds") * float64(time.Second)),
			MaxDelay:            time.Duration(v.GetFloat64("features.index_retry.max_delay_seconds") * float64(time.Second)),
			BackoffMultiplier:   v.GetFloat64("features.index_retry.backoff_multiplier"),
			RetryableErrorWords: v.GetStringSlice("features.index_retry.retryable_errors"),
		},
		StorageBudget: StorageBudgetConfig{
			Enabled:                   v.GetBool("features.storage_budget.enabled"),
			MaxStoragePerTenantMB:     v.GetFloat64("features.storage_budget.max_storage_per_tenant_mb"),
			MaxStorageTotalMB:         v.GetFloat64("features.storage_budget.max_storage_total_mb"),
			WarnThresholdPct:          v.GetFloat64("features.storage_budget.warn_threshold_pct"),
			TenantAttributionStrategy: v.GetString("features.storage_budget.tenant_attribution_strategy"),
		},
		MaintenanceWindow: MaintenanceWindowConfig{
			Enabled:    v.GetBool("production_safeguards.maintenance_window.enabled"),
			StartHour:  v.GetInt("production_safeguards.maintenance_window.start_hour"),
			EndHour:    v.GetInt("production_safeguards.maintenance_window.end_hour"),
			DaysOfWeek: days,
		},
		WritePerformance: WritePerformanceConfig{
			Enabled:                v.GetBool("production_safeguards.write_performance.enabled"),
			MaxIndexesPerTable:     v.GetInt("production_safeguards.write_performance.max_indexes_per_table"),
			WarnIndexesPerTable:    v.GetInt("production_safeguards.write_performance.warn_indexes_per_table"),
			WriteOverheadThreshold: v.GetFloat64("production_safeguards.write_performance.write_overhead_threshold"),
		},
	}
}
