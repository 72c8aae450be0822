// Package enforcer drives an intercepted install from classification to
// terminal outcome: scan the would-install set, aggregate verdicts, then
// forward, warn, or abort. One Engine handles one invocation.
package enforcer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/Salta1414/sapo-cli/internal/auditlog"
	"github.com/Salta1414/sapo-cli/internal/colorutil"
	"github.com/Salta1414/sapo-cli/internal/config"
	"github.com/Salta1414/sapo-cli/internal/detector"
	"github.com/Salta1414/sapo-cli/internal/interceptor"
	"github.com/Salta1414/sapo-cli/internal/resolver"
	"github.com/Salta1414/sapo-cli/internal/risk"
	"github.com/Salta1414/sapo-cli/internal/store"
)

// Exit codes for the terminal states. A forwarded command exits with the
// real manager's code instead.
const (
	ExitAllow    = 0
	ExitBlocked  = 2
	ExitInternal = 3
)

// State tracks the linear per-invocation lifecycle
type State string

const (
	StateIdle      State = "idle"
	StateScanning  State = "scanning"
	StateDecided   State = "decided"
	StateForwarded State = "forwarded"
	StateAborted   State = "aborted"
)

// Store is the slice of the local state store the engine needs
type Store interface {
	Enabled() (bool, error)
	IsTrusted(name, version string) (bool, error)
	GetVerdict(ref risk.PackageRef, ttl time.Duration) (*risk.PackageVerdict, error)
	PutVerdict(v risk.PackageVerdict) error
}

// Resolver computes the would-install set for an invocation
type Resolver interface {
	ResolveInstallSet(ctx context.Context, projectPath string, specifiers []string, includeDevDeps bool) (*resolver.InstallSet, error)
}

// Forwarder re-invokes the real package manager
type Forwarder interface {
	Forward(manager string, args []string) (int, error)
}

// Engine wires the scan pipeline together for one invocation
type Engine struct {
	cfg       *config.Config
	store     Store
	detectors []detector.Detector
	resolver  Resolver
	forwarder Forwarder
	log       *auditlog.Logger

	stdin  io.Reader
	stdout io.Writer

	state State
}

// New creates an Engine. store may be nil when the state store failed to
// open; the engine then fails open with a loud warning instead of enforcing.
func New(cfg *config.Config, st Store, detectors []detector.Detector, res Resolver, fwd Forwarder, log *auditlog.Logger) *Engine {
	return &Engine{
		cfg:       cfg,
		store:     st,
		detectors: detectors,
		resolver:  res,
		forwarder: fwd,
		log:       log,
		stdin:     os.Stdin,
		stdout:    os.Stdout,
		state:     StateIdle,
	}
}

// State returns the lifecycle state reached so far
func (e *Engine) State() State {
	return e.state
}

// Run takes a classified invocation to its terminal state and returns the
// process exit code.
func (e *Engine) Run(ctx context.Context, cl interceptor.Classification, projectDir string, args []string) int {
	if cl.Kind == interceptor.PassThrough {
		return e.forward(cl.Manager, args, risk.DecisionAllow, 0)
	}

	// Toggle off: straight to Terminal(Forwarded), no scanning
	if !e.scanningEnabled() {
		return e.forward(cl.Manager, args, risk.DecisionAllow, 0)
	}

	e.state = StateScanning

	// Bare installs pull devDependencies too; explicit adds do not
	includeDev := len(cl.Specifiers) == 0
	set, err := e.resolver.ResolveInstallSet(ctx, projectDir, cl.Specifiers, includeDev)
	if err != nil {
		var resErr *resolver.ResolutionError
		if errors.As(err, &resErr) {
			// Manifest or lockfile unreadable: fail open, never silently block
			colorutil.PrintWarning(fmt.Sprintf("could not resolve install set (%v); forwarding unscanned", err))
			e.log.Warn("resolution_failed", err.Error(), nil)
			return e.forward(cl.Manager, args, risk.DecisionAllow, 0)
		}
		if ctx.Err() != nil {
			return e.interrupted(cl.Manager, args)
		}
		colorutil.PrintWarning(fmt.Sprintf("resolution failed (%v); forwarding unscanned", err))
		e.log.Warn("resolution_failed", err.Error(), nil)
		return e.forward(cl.Manager, args, risk.DecisionAllow, 0)
	}

	for _, w := range set.Warnings {
		colorutil.PrintWarning(w)
	}

	if len(set.Packages) == 0 {
		colorutil.PrintInfo("no new packages to scan")
		return e.forward(cl.Manager, args, risk.DecisionAllow, 0)
	}

	verdict, err := e.ScanSet(ctx, set)
	if err != nil {
		if store.IsCorrupt(err) {
			// Enforcing on corrupted trust data is worse than a missed scan
			colorutil.PrintWarning(fmt.Sprintf("local state store is corrupt (%v); forwarding unscanned", err))
			e.log.Error("state_store_corrupt", err.Error(), nil)
			return e.forward(cl.Manager, args, risk.DecisionAllow, len(set.Packages))
		}
		if ctx.Err() != nil {
			return e.interrupted(cl.Manager, args)
		}
		colorutil.PrintWarning(fmt.Sprintf("scan failed (%v); forwarding unscanned", err))
		e.log.Error("scan_failed", err.Error(), nil)
		return e.forward(cl.Manager, args, risk.DecisionAllow, len(set.Packages))
	}

	if ctx.Err() != nil {
		return e.interrupted(cl.Manager, args)
	}

	e.state = StateDecided

	switch verdict.Decision {
	case risk.DecisionAllow:
		return e.forward(cl.Manager, args, risk.DecisionAllow, len(set.Packages))

	case risk.DecisionWarn:
		fmt.Fprint(e.stdout, verdict.FormatReport())
		if e.cfg.ConfirmWarn && e.stdinIsTTY() {
			if !e.confirm() {
				colorutil.PrintBlocked("install cancelled")
				return e.abort(cl.Manager, risk.DecisionWarn, len(set.Packages))
			}
		}
		return e.forward(cl.Manager, args, risk.DecisionWarn, len(set.Packages))

	default: // Block
		fmt.Fprint(e.stdout, verdict.FormatReport())
		colorutil.PrintBlocked("install blocked; use `sapo trust <package>` to override")
		return e.abort(cl.Manager, risk.DecisionBlock, len(set.Packages))
	}
}

// ScanSet runs the full detector pipeline over an install set and folds the
// results into one operation verdict. Packages fan out across a bounded
// worker pool; cache and audit writes stay serialized on the collector.
func (e *Engine) ScanSet(ctx context.Context, set *resolver.InstallSet) (risk.OperationVerdict, error) {
	type scanJob struct {
		ref  risk.PackageRef
		meta *detector.Metadata
	}
	type scanResult struct {
		verdict risk.PackageVerdict
		cached  bool
		err     error
	}

	jobs := make(chan scanJob, len(set.Packages))
	resultsCh := make(chan scanResult, len(set.Packages))

	workers := e.cfg.ScanWorkers
	if workers <= 0 {
		workers = 4
	}
	if workers > len(set.Packages) {
		workers = len(set.Packages)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				if ctx.Err() != nil {
					resultsCh <- scanResult{err: ctx.Err()}
					continue
				}
				verdict, cached, err := e.ScanPackage(ctx, job.ref, job.meta)
				resultsCh <- scanResult{verdict: verdict, cached: cached, err: err}
			}
		}()
	}

	for _, ref := range set.Packages {
		jobs <- scanJob{ref: ref, meta: set.Metadata[ref.String()]}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(resultsCh)
	}()

	var verdicts []risk.PackageVerdict
	var firstErr error
	for r := range resultsCh {
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}

		if !r.cached && !r.verdict.Trusted && e.store != nil {
			if err := e.store.PutVerdict(r.verdict); err != nil && !store.IsCorrupt(err) {
				e.log.Warn("cache_write_failed", err.Error(), map[string]interface{}{
					"package": r.verdict.Package.String(),
				})
			}
		}
		e.log.LogVerdict(r.verdict, r.cached)
		verdicts = append(verdicts, r.verdict)
	}

	if firstErr != nil {
		return risk.OperationVerdict{}, firstErr
	}

	return risk.Fold(verdicts), nil
}

// ScanPackage evaluates one package: trust first, then cache, then a fresh
// detector run. Trust wins over everything, including a cached Block.
func (e *Engine) ScanPackage(ctx context.Context, ref risk.PackageRef, meta *detector.Metadata) (risk.PackageVerdict, bool, error) {
	if e.store != nil {
		trusted, err := e.store.IsTrusted(ref.Name, ref.Version)
		if err != nil {
			return risk.PackageVerdict{}, false, err
		}
		if trusted {
			return risk.TrustedVerdict(ref), false, nil
		}

		cached, err := e.store.GetVerdict(ref, time.Duration(e.cfg.CacheTTLHours)*time.Hour)
		if err != nil {
			return risk.PackageVerdict{}, false, err
		}
		if cached != nil {
			return *cached, true, nil
		}
	}

	signals := e.runDetectors(ctx, ref, meta)
	verdict := risk.Aggregate(ref, signals, e.cfg.Thresholds())
	return verdict, false, nil
}

// runDetectors fans the detector set out in parallel; detectors have no
// ordering dependency on each other.
func (e *Engine) runDetectors(ctx context.Context, ref risk.PackageRef, meta *detector.Metadata) []risk.Signal {
	signals := make([]risk.Signal, len(e.detectors))

	var wg sync.WaitGroup
	for i, d := range e.detectors {
		wg.Add(1)
		go func(i int, d detector.Detector) {
			defer wg.Done()
			signals[i] = d.Evaluate(ctx, ref, meta)
		}(i, d)
	}
	wg.Wait()

	return signals
}

func (e *Engine) scanningEnabled() bool {
	if e.store == nil {
		// No usable state store: scanning still runs, enforcement degrades
		// separately on corrupt reads
		return true
	}
	enabled, err := e.store.Enabled()
	if err != nil {
		colorutil.PrintWarning(fmt.Sprintf("could not read toggle state (%v); scanning anyway", err))
		return true
	}
	return enabled
}

// interrupted handles a cancelled scan. The default is to abort rather than
// risk proceeding unscanned; fail_open_on_interrupt flips that.
func (e *Engine) interrupted(manager string, args []string) int {
	if e.cfg.FailOpenOnInterrupt {
		colorutil.PrintWarning("scan interrupted; forwarding unscanned (fail_open_on_interrupt)")
		e.log.Warn("scan_interrupted", "forwarding per configuration", nil)
		return e.forward(manager, args, risk.DecisionAllow, 0)
	}
	colorutil.PrintBlocked("scan interrupted; install aborted")
	e.log.Warn("scan_interrupted", "aborted", nil)
	e.state = StateAborted
	return ExitInternal
}

func (e *Engine) forward(manager string, args []string, decision risk.Decision, packages int) int {
	code, err := e.forwarder.Forward(manager, args)
	if err != nil {
		colorutil.PrintWarning(fmt.Sprintf("failed to run %s: %v", manager, err))
		e.log.Error("forward_failed", err.Error(), map[string]interface{}{"manager": manager})
		e.state = StateAborted
		return ExitInternal
	}
	e.state = StateForwarded
	e.log.LogOperation(manager, decision, true, packages, code)
	return code
}

func (e *Engine) abort(manager string, decision risk.Decision, packages int) int {
	e.state = StateAborted
	e.log.LogOperation(manager, decision, false, packages, ExitBlocked)
	return ExitBlocked
}

func (e *Engine) stdinIsTTY() bool {
	f, ok := e.stdin.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (e *Engine) confirm() bool {
	fmt.Fprint(e.stdout, "Continue anyway? (y/N) ")
	reader := bufio.NewReader(e.stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
