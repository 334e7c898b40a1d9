// Package health reports the state of the service's dependencies for the
// root /health endpoint.
package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// State is the health of one component or of the whole service
type State string

const (
	StateHealthy       State = "healthy"
	StateUnhealthy     State = "unhealthy"
	StateWarning       State = "warning"
	StateNotConfigured State = "not_configured"
)

// ComponentHealth is the result of a single check
type ComponentHealth struct {
	Name        string                 `json:"name"`
	Status      State                  `json:"status"`
	Message     string                 `json:"message"`
	LastChecked time.Time              `json:"last_checked"`
	DurationMS  float64                `json:"duration_ms"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

// Status is the aggregated report
type Status struct {
	Overall    State                      `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version"`
	Uptime     string                     `json:"uptime"`
	Components map[string]ComponentHealth `json:"components"`
}

// Check probes one dependency
type Check interface {
	Name() string
	Check(ctx context.Context) ComponentHealth
}

// Config tunes the checker
type Config struct {
	Timeout  time.Duration
	CacheTTL time.Duration
	Version  string
}

// Checker runs registered checks in parallel and caches the report briefly
type Checker struct {
	config  Config
	logger  *logrus.Logger
	started time.Time
	now     func() time.Time

	mu     sync.Mutex
	checks []Check
	last   *Status
}

// NewChecker creates a checker with no checks registered
func NewChecker(cfg Config, logger *logrus.Logger) *Checker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Checker{config: cfg, logger: logger, started: time.Now(), now: time.Now}
}

// Register adds a check
func (h *Checker) Register(check Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, check)
	h.last = nil
}

// Run returns the current report, reusing a cached one within CacheTTL
func (h *Checker) Run(ctx context.Context) *Status {
	h.mu.Lock()
	if h.last != nil && h.config.CacheTTL > 0 && h.now().Sub(h.last.Timestamp) < h.config.CacheTTL {
		status := *h.last
		h.mu.Unlock()
		return &status
	}
	checks := append([]Check(nil), h.checks...)
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	results := make([]ComponentHealth, len(checks))
	var wg sync.WaitGroup
	for i, c := range checks {
		wg.Add(1)
		go func(i int, c Check) {
			defer wg.Done()
			results[i] = c.Check(ctx)
		}(i, c)
	}
	wg.Wait()

	status := &Status{
		Overall:    StateHealthy,
		Timestamp:  h.now(),
		Version:    h.config.Version,
		Uptime:     time.Since(h.started).Round(time.Second).String(),
		Components: make(map[string]ComponentHealth, len(results)),
	}
	var failing []string
	for _, r := range results {
		status.Components[r.Name] = r
		switch r.Status {
		case StateUnhealthy:
			status.Overall = StateUnhealthy
			failing = append(failing, r.Name)
		case StateWarning:
			if status.Overall == StateHealthy {
				status.Overall = StateWarning
			}
		}
	}

	if len(failing) > 0 {
		sort.Strings(failing)
		h.logger.WithFields(logrus.Fields{
			"overall_status":       status.Overall,
			"unhealthy_components": failing,
		}).Warn("Health check completed with issues")
	}

	h.mu.Lock()
	h.last = status
	h.mu.Unlock()

	out := *status
	return &out
}

func result(name string, start time.Time, state State, msg string) ComponentHealth {
	return ComponentHealth{
		Name:        name,
		Status:      state,
		Message:     msg,
		LastChecked: time.Now(),
		DurationMS:  float64(time.Since(start).Microseconds()) / 1000,
	}
}

// Pinger is satisfied by the database pool
type Pinger interface {
	Ping(ctx context.Context) error
}

// DatabaseCheck pings Postgres. A nil pinger reports not_configured.
type DatabaseCheck struct {
	DB Pinger
}

func (d *DatabaseCheck) Name() string { return "database" }

func (d *DatabaseCheck) Check(ctx context.Context) ComponentHealth {
	start := time.Now()
	if d.DB == nil {
		return result(d.Name(), start, StateNotConfigured, "Database not configured")
	}
	if err := d.DB.Ping(ctx); err != nil {
		r := result(d.Name(), start, StateUnhealthy, "Database connection failed")
		r.Error = err.Error()
		return r
	}
	return result(d.Name(), start, StateHealthy, "Database connection healthy")
}

// RedisCheck pings the explanation cache's Redis. Redis is optional, so a
// failed ping is a warning and the service keeps serving from memory.
type RedisCheck struct {
	Client *redis.Client
}

// NewRedisCheck builds a probe client from a redis:// URL. An empty URL
// yields a check that reports not_configured.
func NewRedisCheck(redisURL string) (*RedisCheck, error) {
	if redisURL == "" {
		return &RedisCheck{}, nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	opts.PoolSize = 1
	opts.MaxRetries = 0
	return &RedisCheck{Client: redis.NewClient(opts)}, nil
}

func (r *RedisCheck) Name() string { return "redis" }

func (r *RedisCheck) Check(ctx context.Context) ComponentHealth {
	start := time.Now()
	if r.Client == nil {
		return result(r.Name(), start, StateNotConfigured, "Redis not configured")
	}
	if err := r.Client.Ping(ctx).Err(); err != nil {
		res := result(r.Name(), start, StateWarning, "Redis unreachable, explanation cache is memory-only")
		res.Error = err.Error()
		return res
	}
	res := result(r.Name(), start, StateHealthy, "Redis connection healthy")
	stats := r.Client.PoolStats()
	res.Metadata = map[string]interface{}{
		"total_conns": stats.TotalConns,
		"idle_conns":  stats.IdleConns,
	}
	return res
}

// Close releases the probe client
func (r *RedisCheck) Close() error {
	if r.Client == nil {
		return nil
	}
	return r.Client.Close()
}

// ModelState is satisfied by the model wrapper
type ModelState interface {
	IsLoaded() bool
}

// ModelCheck reports whether the model artifact is loaded. A missing model
// leaves the API up but prediction routes answer 503.
type ModelCheck struct {
	Model ModelState
}

func (m *ModelCheck) Name() string { return "model" }

func (m *ModelCheck) Check(ctx context.Context) ComponentHealth {
	start := time.Now()
	if m.Model == nil || !m.Model.IsLoaded() {
		return result(m.Name(), start, StateWarning, "Model not loaded")
	}
	return result(m.Name(), start, StateHealthy, "Model loaded")
}
