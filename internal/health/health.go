package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Status — агрегированное состояние компонента или сервиса целиком.
type Status string

const (
	StatusUp       Status = "up"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

// ErrDegraded помечает проблему, с которой сервис продолжает обслуживать
// запросы (например, подросший backlog outbox). Probe возвращает ошибку,
// обёрнутую вокруг ErrDegraded, чтобы понизить статус без отказа readiness.
var ErrDegraded = errors.New("degraded")

// Probe проверяет один компонент. Контекст несёт таймаут проверки.
type Probe func(ctx context.Context) error

// Check — результат одной проверки в отчёте.
type Check struct {
	Component string `json:"component"`
	Status    Status `json:"status"`
	Detail    string `json:"detail,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

// Report — полный ответ /health.
type Report struct {
	Status        Status    `json:"status"`
	Version       string    `json:"version,omitempty"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	CheckedAt     time.Time `json:"checked_at"`
	Checks        []Check   `json:"checks,omitempty"`
}

const defaultProbeTimeout = 2 * time.Second

// Registry хранит пробы компонентов и строит сводный отчёт.
type Registry struct {
	mu      sync.RWMutex
	probes  map[string]Probe
	version string
	started time.Time
	timeout time.Duration
}

// NewRegistry создаёт реестр проверок. version попадает в отчёт как есть.
func NewRegistry(version string) *Registry {
	return &Registry{
		probes:  make(map[string]Probe),
		version: version,
		started: time.Now(),
		timeout: defaultProbeTimeout,
	}
}

// Register добавляет или заменяет пробу компонента.
func (r *Registry) Register(component string, probe Probe) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.probes[component] = probe
}

func (r *Registry) snapshot() map[string]Probe {
	r.mu.RLock()
	defer r.mu.RUnlock()

	probes := make(map[string]Probe, len(r.probes))
	for name, probe := range r.probes {
		probes[name] = probe
	}
	return probes
}

func (r *Registry) runProbe(ctx context.Context, component string, probe Probe) Check {
	probeCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	err := probe(probeCtx)
	check := Check{
		Component: component,
		Status:    StatusUp,
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		check.Detail = err.Error()
		check.Status = StatusDown
		if errors.Is(err, ErrDegraded) {
			check.Status = StatusDegraded
		}
	}
	return check
}

// Report прогоняет все пробы и агрегирует статус: down побеждает degraded,
// degraded побеждает up. Проверки в отчёте отсортированы по имени компонента.
func (r *Registry) Report(ctx context.Context) Report {
	report := Report{
		Status:        StatusUp,
		Version:       r.version,
		UptimeSeconds: int64(time.Since(r.started).Seconds()),
		CheckedAt:     time.Now().UTC(),
	}

	for component, probe := range r.snapshot() {
		check := r.runProbe(ctx, component, probe)
		report.Checks = append(report.Checks, check)

		switch check.Status {
		case StatusDown:
			report.Status = StatusDown
		case StatusDegraded:
			if report.Status == StatusUp {
				report.Status = StatusDegraded
			}
		}
	}

	sort.Slice(report.Checks, func(i, j int) bool {
		return report.Checks[i].Component < report.Checks[j].Component
	})
	return report
}

// ServeHTTP отдаёт полный отчёт; 503 только при StatusDown.
func (r *Registry) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	report := r.Report(req.Context())

	code := http.StatusOK
	if report.Status == StatusDown {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(report)
}

// Readiness — readiness probe: готов, пока ни одна проверка не в StatusDown.
// Degraded-компоненты не снимают инстанс с трафика.
func (r *Registry) Readiness(w http.ResponseWriter, req *http.Request) {
	if r.Report(req.Context()).Status == StatusDown {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Liveness — liveness probe: процесс жив, значит 200.
func Liveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
