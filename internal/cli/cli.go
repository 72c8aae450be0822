package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Salta1414/sapo-cli/internal/auditlog"
	"github.com/Salta1414/sapo-cli/internal/colorutil"
	"github.com/Salta1414/sapo-cli/internal/config"
	"github.com/Salta1414/sapo-cli/internal/detector"
	"github.com/Salta1414/sapo-cli/internal/enforcer"
	"github.com/Salta1414/sapo-cli/internal/interceptor"
	"github.com/Salta1414/sapo-cli/internal/resolver"
	"github.com/Salta1414/sapo-cli/internal/risk"
	"github.com/Salta1414/sapo-cli/internal/store"
	"github.com/Salta1414/sapo-cli/internal/threatdb"
)

const version = "0.1.0"

// disableEnvVar short-circuits everything when set; the escape hatch for
// broken states and CI jobs that must not be gated.
const disableEnvVar = "SAPO_DISABLED"

var (
	dbPath     string
	noColor    bool
	jsonOutput bool
	maxDepth   int
	lookupSecs int
	rulesPath  string
)

var rootCmd = &cobra.Command{
	Use:   "sapo",
	Short: "SAPO - pre-install gatekeeper for npm, pnpm, yarn and bun",
	Long: `SAPO - pre-install gatekeeper for npm, pnpm, yarn and bun

SAPO sits in front of your package manager. Install-family commands are
resolved to the set of packages that would actually be fetched, every
package is checked against a threat database, a typosquat similarity
index, and static install-script and credential/network rules, and the
install is then forwarded, confirmed, or blocked based on the worst
finding.

Quick Start:
  sapo wrap npm install lodash   Gate one install explicitly
  sapo scan express@4.18.2       Scan a package without installing
  sapo trust lodash              Always allow a package
  sapo status                    Show toggle state and cache size

Shim setup points npm/pnpm/yarn/bun at 'sapo wrap' transparently.

Documentation: https://github.com/Salta1414/sapo-cli`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version number of SAPO.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("SAPO v%s\n", version)
		fmt.Println("Pre-install gatekeeper for npm, pnpm, yarn and bun")
		fmt.Println("https://github.com/Salta1414/sapo-cli")
	},
}

var wrapCmd = &cobra.Command{
	Use:   "wrap <manager> [args...]",
	Short: "Gate a package manager invocation",
	Long: `Run a package manager command through the gatekeeper.

Install-family commands (npm install/i/add, pnpm install/i/add,
yarn [install]/add, bun install/i/add) are scanned before the real
manager runs; everything else is forwarded untouched.

Exit codes:
  0  install allowed and forwarded (or command passed through)
  2  install blocked or declined
  3  internal error or interrupted scan
Forwarded commands exit with the real manager's exit code.

Examples:
  sapo wrap npm install express
  sapo wrap yarn add left-pad@1.3.0
  sapo wrap npm run build            (passes through, no scan)`,
	Args:               cobra.MinimumNArgs(1),
	DisableFlagParsing: true,
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) < 1 {
			cmd.Help()
			os.Exit(enforcer.ExitInternal)
		}
		os.Exit(runWrap(args[0], args[1:]))
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan <package>[@version]",
	Short: "Scan a single package without installing it",
	Long: `Resolve a package specifier against the npm registry and run the
full detector set over it: known-malware lookup, typosquat similarity,
install-script analysis, and credential/network patterns.

Nothing is installed. Trust entries and cached verdicts apply the same
way they do during an intercepted install.

Examples:
  sapo scan lodash                Scan the latest version
  sapo scan express@4.18.2        Scan a specific version
  sapo scan @types/node --json    Output as JSON
  sapo scan pkg --rules my.yaml   Use a custom static-analysis rule file`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runScan(args[0]))
	},
}

var trustCmd = &cobra.Command{
	Use:   "trust <package>[@constraint]",
	Short: "Always allow a package",
	Long: `Add a package to the trust list. Trusted packages skip scanning
entirely and are never cached; trust wins over a cached block.

The constraint is a semver range; omitting it trusts every version.

Examples:
  sapo trust lodash               Trust all versions
  sapo trust lodash@^4.17.0       Trust a range
  sapo trust @myorg/internal-lib  Scoped packages work too`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runTrust(args[0])
	},
}

var untrustCmd = &cobra.Command{
	Use:   "untrust <package>",
	Short: "Remove a package from the trust list",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runUntrust(args[0])
	},
}

var trustedCmd = &cobra.Command{
	Use:   "trusted",
	Short: "List trusted packages",
	Run: func(cmd *cobra.Command, args []string) {
		runTrusted()
	},
}

var enableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Turn scanning on",
	Run: func(cmd *cobra.Command, args []string) {
		runSetEnabled(true)
	},
}

var disableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Turn scanning off (installs forward unscanned)",
	Run: func(cmd *cobra.Command, args []string) {
		runSetEnabled(false)
	},
}

var toggleCmd = &cobra.Command{
	Use:   "toggle",
	Short: "Flip scanning on or off",
	Run: func(cmd *cobra.Command, args []string) {
		runToggle()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show toggle state, cache size and configuration",
	Run: func(cmd *cobra.Command, args []string) {
		runStatus()
	},
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the verdict cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop all cached verdicts",
	Run: func(cmd *cobra.Command, args []string) {
		runCacheClear()
	},
}

// signalContext returns a context cancelled on SIGINT/SIGTERM so an
// in-flight scan can take the interrupt path.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		colorutil.PrintWarning(fmt.Sprintf("could not load config (%v); using defaults", err))
		cfg = config.Default()
	}
	return cfg
}

// buildDetectors assembles the full detector set for one invocation.
// A non-nil rule set replaces the embedded static-analysis rules.
func buildDetectors(cfg *config.Config, rules *detector.RuleSet) []detector.Detector {
	lookupTimeout := time.Duration(cfg.LookupTimeoutSeconds) * time.Second
	if lookupSecs > 0 {
		lookupTimeout = time.Duration(lookupSecs) * time.Second
	}
	threats := threatdb.NewClient(cfg.APIURL, cfg.DeviceID, cfg.APIKey, lookupTimeout)
	if rules != nil {
		return []detector.Detector{
			detector.NewMalwareDetector(threats),
			detector.NewTyposquatDetector(),
			detector.NewScriptDetectorWithRules(rules),
			detector.NewCredNetDetectorWithRules(rules),
		}
	}
	return []detector.Detector{
		detector.NewMalwareDetector(threats),
		detector.NewTyposquatDetector(),
		detector.NewScriptDetector(),
		detector.NewCredNetDetector(),
	}
}

// loadCustomRules honors --rules; nil means use the embedded rule sets
func loadCustomRules() (*detector.RuleSet, error) {
	if rulesPath == "" {
		return nil, nil
	}
	return detector.LoadRulesFromFile(rulesPath)
}

func buildAdapter(cfg *config.Config) *resolver.Adapter {
	depth := cfg.MaxResolveDepth
	if maxDepth > 0 {
		depth = maxDepth
	}
	return resolver.NewAdapter(resolver.NewNPMClient("", 0), depth)
}

// openStore opens the state store, degrading to nil (fail-open) on error
func openStore() *store.Store {
	db, err := store.New(dbPath)
	if err != nil {
		colorutil.PrintWarning(fmt.Sprintf("could not open state store (%v); scanning without trust/cache", err))
		return nil
	}
	return db
}

func openAuditLog() *auditlog.Logger {
	log, err := auditlog.Open(config.DefaultEventLogPath())
	if err != nil {
		colorutil.PrintWarning(fmt.Sprintf("could not open event log (%v); logging to stderr", err))
		return auditlog.New(nil)
	}
	return log
}

func runWrap(manager string, args []string) int {
	if noColor {
		colorutil.ApplyNoColor()
	}

	fwd := enforcer.NewExecForwarder(config.BinDir())

	// Kill switch: forward without touching config, store or network
	if os.Getenv(disableEnvVar) != "" {
		code, err := fwd.Forward(manager, args)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return enforcer.ExitInternal
		}
		return code
	}

	cfg := loadConfig()
	cl := interceptor.Classify(manager, args)

	var st enforcer.Store
	db := openStore()
	if db != nil {
		defer db.Close()
		st = db
	}

	log := openAuditLog()
	defer log.Close()

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}

	ctx, stop := signalContext()
	defer stop()

	engine := enforcer.New(cfg, st, buildDetectors(cfg, nil), buildAdapter(cfg), fwd, log)
	return engine.Run(ctx, cl, cwd, args)
}

func runScan(packageArg string) int {
	if noColor {
		colorutil.ApplyNoColor()
	}

	cfg := loadConfig()

	rules, err := loadCustomRules()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: could not load rules from %s: %v\n", rulesPath, err)
		return enforcer.ExitInternal
	}

	var st enforcer.Store
	db := openStore()
	if db != nil {
		defer db.Close()
		st = db
	}

	log := auditlog.New(nil)
	adapter := buildAdapter(cfg)

	ctx, stop := signalContext()
	defer stop()

	ref, meta, err := adapter.ResolveSpecifier(ctx, packageArg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: could not resolve %s: %v\n", packageArg, err)
		return enforcer.ExitInternal
	}

	engine := enforcer.New(cfg, st, buildDetectors(cfg, rules), nil, nil, log)
	verdict, cached, err := engine.ScanPackage(ctx, ref, meta)
	if err != nil {
		if store.IsCorrupt(err) {
			fmt.Fprintf(os.Stderr, "Error: state store is corrupt: %v\n", err)
			fmt.Fprintln(os.Stderr, "Run 'sapo cache clear' or remove the database file.")
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return enforcer.ExitInternal
	}

	// The scan command feeds the same cache the interceptor reads
	if db != nil && !cached && !verdict.Trusted {
		if err := db.PutVerdict(verdict); err != nil && !store.IsCorrupt(err) {
			colorutil.PrintWarning(fmt.Sprintf("could not cache verdict: %v", err))
		}
	}

	if jsonOutput {
		outputJSON(verdictJSON(verdict, cached))
	} else {
		if cached {
			colorutil.PrintDetail("(cached verdict)")
		}
		fmt.Print(verdict.FormatReport())
	}

	if verdict.Decision == risk.DecisionBlock {
		return enforcer.ExitBlocked
	}
	return enforcer.ExitAllow
}

func runTrust(arg string) {
	name, constraint := parseTrustArg(arg)

	db := mustOpenStore()
	defer db.Close()

	if err := db.AddTrust(name, constraint); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if constraint == "*" {
		colorutil.PrintOK(fmt.Sprintf("trusting %s (all versions)", name))
	} else {
		colorutil.PrintOK(fmt.Sprintf("trusting %s@%s", name, constraint))
	}
}

func runUntrust(name string) {
	db := mustOpenStore()
	defer db.Close()

	removed, err := db.RemoveTrust(name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if !removed {
		fmt.Printf("%s was not on the trust list\n", name)
		return
	}
	colorutil.PrintOK(fmt.Sprintf("removed %s from the trust list", name))
}

func runTrusted() {
	db := mustOpenStore()
	defer db.Close()

	entries, err := db.ListTrust()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if jsonOutput {
		out := make([]TrustEntryJSON, 0, len(entries))
		for _, e := range entries {
			out = append(out, TrustEntryJSON{
				Name:       e.Name,
				Constraint: e.Constraint,
				AddedAt:    e.AddedAt.Format(time.RFC3339),
			})
		}
		outputJSON(out)
		return
	}

	if len(entries) == 0 {
		fmt.Println("Trust list is empty.")
		return
	}
	fmt.Printf("%-40s %-16s %s\n", "PACKAGE", "CONSTRAINT", "ADDED")
	for _, e := range entries {
		fmt.Printf("%-40s %-16s %s\n", e.Name, e.Constraint, e.AddedAt.Format("2006-01-02 15:04"))
	}
}

func runSetEnabled(enabled bool) {
	db := mustOpenStore()
	defer db.Close()

	if err := db.SetEnabled(enabled); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if enabled {
		colorutil.PrintOK("scanning enabled")
	} else {
		colorutil.PrintWarning("scanning disabled; installs will forward unscanned")
	}
}

func runToggle() {
	db := mustOpenStore()
	defer db.Close()

	enabled, err := db.Enabled()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := db.SetEnabled(!enabled); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if !enabled {
		colorutil.PrintOK("scanning enabled")
	} else {
		colorutil.PrintWarning("scanning disabled; installs will forward unscanned")
	}
}

func runStatus() {
	cfg := loadConfig()

	status := StatusJSON{
		Version:  version,
		DeviceID: cfg.DeviceID,
		BlockAt:  cfg.BlockAt,
		WarnAt:   cfg.WarnAt,
		Config:   config.Path(),
		Database: dbPath,
	}

	db, err := store.New(dbPath)
	if err != nil {
		status.StoreError = err.Error()
	} else {
		defer db.Close()
		enabled, err := db.Enabled()
		if err != nil {
			status.StoreError = err.Error()
		} else {
			status.Enabled = enabled
		}
		if n, err := db.CacheSize(); err == nil {
			status.CachedVerdicts = n
		}
		if entries, err := db.ListTrust(); err == nil {
			status.TrustedPackages = len(entries)
		}
	}

	if jsonOutput {
		outputJSON(status)
		return
	}

	fmt.Printf("SAPO v%s\n\n", version)
	if status.StoreError != "" {
		colorutil.PrintWarning(fmt.Sprintf("state store unavailable: %s", status.StoreError))
	} else if status.Enabled {
		colorutil.PrintOK("scanning enabled")
	} else {
		colorutil.PrintWarning("scanning disabled")
	}
	fmt.Printf("  Device ID:        %s\n", status.DeviceID)
	fmt.Printf("  Thresholds:       block >= %d, warn >= %d\n", status.BlockAt, status.WarnAt)
	fmt.Printf("  Cached verdicts:  %d\n", status.CachedVerdicts)
	fmt.Printf("  Trusted packages: %d\n", status.TrustedPackages)
	fmt.Printf("  Config:           %s\n", status.Config)
	fmt.Printf("  Database:         %s\n", status.Database)
}

func runCacheClear() {
	db := mustOpenStore()
	defer db.Close()

	if err := db.ClearCache(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	colorutil.PrintOK("verdict cache cleared")
}

// mustOpenStore is for management commands where a broken store is a hard
// error, unlike the wrap path which fails open.
func mustOpenStore() *store.Store {
	db, err := store.New(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: could not open state store: %v\n", err)
		os.Exit(1)
	}
	return db
}

// parseTrustArg splits name[@constraint]; no constraint means any version
func parseTrustArg(arg string) (name, constraint string) {
	if strings.HasPrefix(arg, "@") {
		parts := strings.SplitN(arg[1:], "@", 2)
		if len(parts) == 2 {
			return "@" + parts[0], parts[1]
		}
		return arg, "*"
	}
	parts := strings.SplitN(arg, "@", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return arg, "*"
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", config.DefaultDBPath(), "Path to the state store database")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	scanCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the verdict as JSON")
	scanCmd.Flags().IntVar(&maxDepth, "depth", 0, "Maximum dependency resolution depth (0 = configured default)")
	scanCmd.Flags().IntVar(&lookupSecs, "timeout", 0, "Threat database lookup timeout in seconds (0 = configured default)")
	scanCmd.Flags().StringVar(&rulesPath, "rules", "", "Path to a custom YAML rule file for the static-analysis detectors")

	trustedCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the trust list as JSON")
	statusCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output status as JSON")

	cacheCmd.AddCommand(cacheClearCmd)

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(wrapCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(trustCmd)
	rootCmd.AddCommand(untrustCmd)
	rootCmd.AddCommand(trustedCmd)
	rootCmd.AddCommand(enableCmd)
	rootCmd.AddCommand(disableCmd)
	rootCmd.AddCommand(toggleCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cacheCmd)
}

func Execute() error {
	return rootCmd.Execute()
}
