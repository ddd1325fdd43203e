package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	httpadapter "github.com/assay-dev/assay/internal/adapter/inbound/http"
	"github.com/assay-dev/assay/internal/adapter/outbound/memory"
	"github.com/assay-dev/assay/internal/adapter/outbound/sqlstore"
	"github.com/assay-dev/assay/internal/config"
	"github.com/assay-dev/assay/internal/domain/policy"
	"github.com/assay-dev/assay/internal/domain/trace"
)

var (
	doctorVerbose bool
	doctorTrace   string
	doctorCacheDB string
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check config/policy/trace/store health (baseline files are not checked)",
	Long: `doctor runs a battery of environment checks: the config parses under the
current strict mode, every trace/policy file a test references exists
and parses, the SQLite cache/quarantine store opens and its schema is
current, the cache directory is writable, and $HOME resolves for cache
sizing. It prints one diagnostic per failed check and exits 1 if any
check failed.`,
	RunE: runDoctor,
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorVerbose, "verbose", false, "also print passing checks")
	doctorCmd.Flags().StringVar(&doctorTrace, "trace", "", "path to a trace file to check, if the suite uses one")
	doctorCmd.Flags().StringVar(&doctorCacheDB, "cache-db", ".assay/cache.db", "path to the SQLite cache/quarantine database")
	rootCmd.AddCommand(doctorCmd)
}

// diagnostic is one doctor check's outcome.
type diagnostic struct {
	Check    string `json:"check"`
	Severity string `json:"severity"` // "error" or "info"
	Message  string `json:"message"`
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	var diags []diagnostic
	ok := func(check, msg string) {
		if doctorVerbose {
			diags = append(diags, diagnostic{Check: check, Severity: "info", Message: msg})
		}
	}
	fail := func(check, msg string) {
		diags = append(diags, diagnostic{Check: check, Severity: "error", Message: msg})
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fail("config", fmt.Sprintf("config does not parse under current strict mode: %s", err))
	} else {
		ok("config", fmt.Sprintf("config %q parses (suite=%q, %d test(s))", config.ConfigFileUsed(), cfg.Suite, len(cfg.Tests)))

		seenPolicies := map[string]bool{}
		for _, tc := range cfg.Tests {
			if tc.Policy == "" {
				continue
			}
			if seenPolicies[tc.Policy] {
				continue
			}
			seenPolicies[tc.Policy] = true
			if _, err := policy.LoadFile(tc.Policy); err != nil {
				fail("policy", fmt.Sprintf("test %q: policy %q: %s", tc.ID, tc.Policy, err))
			} else {
				ok("policy", fmt.Sprintf("policy %q parses", tc.Policy))
			}
		}
	}

	if doctorTrace != "" {
		if _, err := trace.Load(doctorTrace); err != nil {
			fail("trace", fmt.Sprintf("trace %q: %s", doctorTrace, err))
		} else {
			ok("trace", fmt.Sprintf("trace %q parses", doctorTrace))
		}
	}

	cacheDB := doctorCacheDB
	var store *sqlstore.Store
	if err := os.MkdirAll(filepath.Dir(cacheDB), 0o755); err != nil {
		fail("cache-dir", fmt.Sprintf("cache directory %q is not writable: %s", filepath.Dir(cacheDB), err))
	} else {
		store, err = sqlstore.Open(cacheDB, newLogger())
		if err != nil {
			fail("store", fmt.Sprintf("SQLite store %q did not open: %s", cacheDB, err))
		} else {
			defer store.Close()
		}
	}

	// Reuse the same HealthChecker `run --metrics-addr` serves over HTTP, so
	// doctor and a live run's /health endpoint never drift on what "healthy"
	// means for the store/rate-limiter/cache-dir trio.
	rateLimiter := memory.NewRateLimiter()
	defer rateLimiter.Stop()
	var pinger httpadapter.StorePinger
	if store != nil {
		pinger = store
	}
	health := httpadapter.NewHealthChecker(pinger, rateLimiter, filepath.Dir(cacheDB), "assay").Check()
	checkNames := make([]string, 0, len(health.Checks))
	for check := range health.Checks {
		checkNames = append(checkNames, check)
	}
	sort.Strings(checkNames)
	for _, check := range checkNames {
		result := health.Checks[check]
		if strings.HasPrefix(result, "unreachable") || strings.HasPrefix(result, "not writable") {
			fail("health."+check, result)
		} else {
			ok("health."+check, result)
		}
	}

	if home, err := os.UserHomeDir(); err != nil {
		fail("home", fmt.Sprintf("$HOME did not resolve, cache sizing may misbehave: %s", err))
	} else {
		ok("home", fmt.Sprintf("$HOME resolved to %q", home))
	}

	encoded, err := json.MarshalIndent(diags, "", "  ")
	if err != nil {
		return fmt.Errorf("render diagnostics: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(encoded))

	for _, d := range diags {
		if d.Severity == "error" {
			os.Exit(1)
		}
	}
	return nil
}
