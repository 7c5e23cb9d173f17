package health

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/krishnakrish0052/payment-router/internal/providers"
	"github.com/krishnakrish0052/payment-router/internal/registry"
	"github.com/krishnakrish0052/payment-router/internal/stores"
	"github.com/krishnakrish0052/payment-router/internal/types"
)

// HealthProbeError wraps a single provider probe failure. It is recorded as
// a fail result and never aborts the rest of a run.
type HealthProbeError struct {
	ProviderID string
	CheckType  types.CheckType
	Err        error
}

func (e *HealthProbeError) Error() string {
	return fmt.Sprintf("health probe %s failed for provider %s: %v", e.CheckType, e.ProviderID, e.Err)
}

func (e *HealthProbeError) Unwrap() error { return e.Err }

// RunnerConfig tunes the periodic health-check runner.
type RunnerConfig struct {
	Interval        time.Duration
	ProbeTimeout    time.Duration
	InterProbeDelay time.Duration
	// WarnLatency marks a passing probe as warn when the provider responds
	// slower than this.
	WarnLatency time.Duration
}

const (
	DefaultInterval        = 15 * time.Minute
	DefaultProbeTimeout    = 10 * time.Second
	DefaultInterProbeDelay = time.Second
	DefaultWarnLatency     = 2 * time.Second
)

func (c RunnerConfig) withDefaults() RunnerConfig {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	if c.InterProbeDelay < 0 {
		c.InterProbeDelay = DefaultInterProbeDelay
	}
	if c.WarnLatency <= 0 {
		c.WarnLatency = DefaultWarnLatency
	}
	return c
}

// Runner probes all active providers on a fixed schedule, appending each
// result to the health store and updating the registry's cached health
// state. One unresponsive provider never delays or aborts the rest of the
// run: every probe carries its own timeout.
type Runner struct {
	registry *registry.Registry
	store    stores.HealthCheckStore
	clients  *providers.Registry
	clock    stores.Clock
	logger   *logrus.Logger
	cfg      RunnerConfig
	cron     *cron.Cron
}

// NewRunner creates a health-check runner.
func NewRunner(reg *registry.Registry, store stores.HealthCheckStore, clients *providers.Registry, clock stores.Clock, logger *logrus.Logger, cfg RunnerConfig) *Runner {
	return &Runner{
		registry: reg,
		store:    store,
		clients:  clients,
		clock:    clock,
		logger:   logger,
		cfg:      cfg.withDefaults(),
	}
}

// Start schedules periodic runs. The first run happens after one interval;
// callers wanting an immediate baseline call RunAll themselves.
func (r *Runner) Start() error {
	if r.cron != nil {
		return fmt.Errorf("health-check runner already started")
	}
	r.cron = cron.New()
	_, err := r.cron.AddFunc(fmt.Sprintf("@every %s", r.cfg.Interval), func() {
		r.RunAll(context.Background())
	})
	if err != nil {
		return fmt.Errorf("failed to schedule health checks: %w", err)
	}
	r.cron.Start()
	r.logger.WithField("interval", r.cfg.Interval.String()).Info("Health-check runner started")
	return nil
}

// Stop cancels the schedule and waits for an in-flight run to finish.
func (r *Runner) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
	r.logger.Info("Health-check runner stopped")
}

// RunAll probes every active provider once. Probe failures are recorded and
// logged; the run always proceeds to the next provider.
func (r *Runner) RunAll(ctx context.Context) {
	active := r.registry.ListActive()
	r.logger.WithField("providers", len(active)).Debug("Health-check run starting")

	for i, p := range active {
		if ctx.Err() != nil {
			r.logger.WithError(ctx.Err()).Warn("Health-check run aborted")
			return
		}
		// A small delay between probes keeps a bulk run from hammering
		// the providers.
		if i > 0 && r.cfg.InterProbeDelay > 0 {
			select {
			case <-time.After(r.cfg.InterProbeDelay):
			case <-ctx.Done():
				return
			}
		}

		result, err := r.RunCheck(ctx, p, types.CheckConnectivity)
		if err != nil {
			r.logger.WithError(err).WithField("provider", p.ID).Warn("Health probe failed")
		}
		r.record(ctx, p, result)
	}
}

// RunCheck executes one probe of the given type against the provider and
// returns the result. The result is returned even when the probe fails; the
// error then is a HealthProbeError describing the failure.
func (r *Runner) RunCheck(ctx context.Context, p types.ProviderConfig, checkType types.CheckType) (types.HealthCheckResult, error) {
	result := types.HealthCheckResult{
		ID:         uuid.NewString(),
		ProviderID: p.ID,
		CheckType:  checkType,
		CheckedAt:  r.clock.Now(),
	}

	client, ok := r.clients.Lookup(p.Type)
	if !ok {
		err := &HealthProbeError{ProviderID: p.ID, CheckType: checkType, Err: fmt.Errorf("no client registered for provider type %q", p.Type)}
		result.Status = types.CheckFail
		result.Error = err.Error()
		return result, err
	}

	probeCtx, cancel := context.WithTimeout(ctx, r.cfg.ProbeTimeout)
	defer cancel()

	start := time.Now()
	err := r.probe(probeCtx, client, p, checkType)
	result.ResponseTime = time.Since(start)

	switch {
	case err != nil:
		result.Status = types.CheckFail
		result.Error = err.Error()
		return result, &HealthProbeError{ProviderID: p.ID, CheckType: checkType, Err: err}
	case result.ResponseTime > r.cfg.WarnLatency:
		result.Status = types.CheckWarn
		result.Error = fmt.Sprintf("degraded latency: %s", result.ResponseTime)
	default:
		result.Status = types.CheckPass
	}
	return result, nil
}

func (r *Runner) probe(ctx context.Context, client providers.Client, p types.ProviderConfig, checkType types.CheckType) error {
	switch checkType {
	case types.CheckConnectivity, types.CheckAPILimits, types.CheckWebhook:
		// api_limits and webhook probes stop at reachability; deeper
		// inspection would need provider dashboard APIs.
		return client.Connect(ctx)
	case types.CheckAuthentication:
		return client.Authenticate(ctx)
	case types.CheckFullTransaction:
		if !p.TestMode {
			return fmt.Errorf("full transaction checks require test mode")
		}
		if err := client.Authenticate(ctx); err != nil {
			return err
		}
		_, err := client.CreateOrder(ctx, providers.OrderRequest{
			Amount:    decimal.NewFromInt(1),
			Currency:  firstOr(p.Currencies, "USD"),
			Reference: "healthcheck-" + uuid.NewString(),
		})
		return err
	default:
		return fmt.Errorf("unknown check type %q", checkType)
	}
}

// record appends the result and updates the cached health state, both best
// effort.
func (r *Runner) record(ctx context.Context, p types.ProviderConfig, result types.HealthCheckResult) {
	if err := r.store.Append(ctx, result); err != nil {
		r.logger.WithError(err).WithField("provider", p.ID).Warn("Failed to persist health-check result")
	}

	state := types.HealthHealthy
	if result.Status == types.CheckFail {
		state = types.HealthUnhealthy
	}
	r.registry.UpdateHealthState(p.ID, state)

	r.logger.WithFields(logrus.Fields{
		"provider":    p.ID,
		"check_type":  result.CheckType,
		"status":      result.Status,
		"duration_ms": result.ResponseTime.Milliseconds(),
	}).Debug("Health check recorded")
}

func firstOr(values []string, fallback string) string {
	if len(values) > 0 {
		return values[0]
	}
	return fallback
}
