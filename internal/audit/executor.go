package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"lumen/internal/domain"
)

// Browser is one exclusively owned render-engine instance. It is never
// shared between concurrent audits.
type Browser interface {
	Port() int
	Close(ctx context.Context) error
}

// Launcher acquires browser instances.
type Launcher interface {
	Launch(ctx context.Context) (Browser, error)
}

// Options configure a single engine invocation. Only the performance
// category is requested, to bound execution cost.
type Options struct {
	Port       int
	FormFactor domain.Device
	Throttling ThrottlingProfile
	Categories []string
}

// Engine runs one audit against a URL through an already-launched browser
// and returns the raw serialized report.
type Engine interface {
	Audit(ctx context.Context, targetURL string, opts Options) (json.RawMessage, error)
}

// Executor runs performance audits with a guaranteed browser lifetime: one
// exclusive instance per run, released on every exit path.
type Executor struct {
	launcher Launcher
	engine   Engine
	timeout  time.Duration
	logger   *slog.Logger
}

func NewExecutor(launcher Launcher, engine Engine, timeout time.Duration, logger *slog.Logger) *Executor {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Executor{launcher: launcher, engine: engine, timeout: timeout, logger: logger}
}

// ValidateTarget checks url and device without touching any resource.
// Shared with the registry so submission and execution reject the same
// inputs.
func ValidateTarget(rawurl string, device string) (domain.Device, error) {
	trimmed := strings.TrimSpace(rawurl)
	if trimmed == "" {
		return "", &domain.ValidationError{Msg: "URL cannot be empty"}
	}
	u, err := url.Parse(trimmed)
	if err != nil || !u.IsAbs() || u.Hostname() == "" {
		return "", &domain.ValidationError{Msg: fmt.Sprintf("the provided URL is not valid: %q", rawurl)}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", &domain.ValidationError{Msg: "only HTTP and HTTPS protocols are supported"}
	}
	switch domain.Device(strings.ToLower(device)) {
	case domain.DeviceMobile:
		return domain.DeviceMobile, nil
	case domain.DeviceDesktop:
		return domain.DeviceDesktop, nil
	default:
		return "", &domain.ValidationError{Msg: "the 'device' parameter must be either 'mobile' or 'desktop'"}
	}
}

// Run performs one audit: validate, launch, configure, execute, validate
// the report, extract metrics. The browser is released before Run returns,
// whatever the outcome; release failures are logged and never take
// precedence over the primary result.
func (e *Executor) Run(ctx context.Context, rawurl string, device string, network string) (domain.AuditResult, error) {
	var zero domain.AuditResult

	dev, err := ValidateTarget(rawurl, device)
	if err != nil {
		return zero, err
	}
	profile, err := Profile(network)
	if err != nil {
		return zero, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	browser, err := e.launcher.Launch(ctx)
	if err != nil {
		return zero, &domain.ResourceLaunchError{Err: err}
	}
	defer func() {
		// Release must not inherit the (possibly expired) audit deadline.
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		if cerr := browser.Close(closeCtx); cerr != nil {
			e.logger.Warn("failed to close browser cleanly", "error", cerr)
		}
	}()

	opts := Options{
		Port:       browser.Port(),
		FormFactor: dev,
		Throttling: profile,
		Categories: []string{"performance"},
	}

	raw, err := e.engine.Audit(ctx, rawurl, opts)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return zero, &domain.AuditExecutionError{Err: err, Timeout: true}
		}
		return zero, &domain.AuditExecutionError{Err: err}
	}
	if len(raw) == 0 {
		return zero, &domain.AuditExecutionError{Err: errors.New("engine completed but returned no report")}
	}

	report, err := parseReport(raw)
	if err != nil {
		return zero, err
	}

	result := domain.AuditResult{
		PerformanceScore: scoreOutOf100(report.PerformanceScore),
		FCP:              report.FCP,
		LCP:              report.LCP,
		TBT:              report.TBT,
		CLS:              report.CLS,
		FullReport:       report.Raw,
	}
	e.logger.Info("audit completed",
		"url", rawurl,
		"device", string(dev),
		"performance_score", result.PerformanceScore,
	)
	return result, nil
}
