package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/assetcache/internal/cli/output"
	"github.com/marmos91/assetcache/internal/logger"
	"github.com/marmos91/assetcache/pkg/assetcache"
	"github.com/marmos91/assetcache/pkg/assetref"
	"github.com/marmos91/assetcache/pkg/fetch"
	"github.com/marmos91/assetcache/pkg/metrics"
	"github.com/marmos91/assetcache/pkg/preload"
	"github.com/marmos91/assetcache/pkg/sweep"

	// Wires the Prometheus metrics implementations.
	_ "github.com/marmos91/assetcache/pkg/metrics/prometheus"
)

var (
	warmManifest    string
	warmConcurrency int
	warmListen      string
	warmFormat      string
)

var warmCmd = &cobra.Command{
	Use:   "warm [locator...]",
	Short: "Warm the asset cache for a set of locators",
	Long: `Warm the asset cache by fetching the given locators ahead of time.

Locators are passed as arguments or read from a YAML manifest. Manifest
entries may carry a fallback locator and size variants:

  assets:
    - primary: https://cdn.example.com/img/hero.webp
      fallback: https://origin.example.com/img/hero.webp
      variants:
        - https://cdn.example.com/img/hero@2x.webp
      priority: true

With --listen the process stays up after the warm-up run and serves cache
diagnostics (/stats and /healthz) until interrupted. When metrics are enabled
a Prometheus endpoint listens on the configured metrics port. The periodic
eviction sweep runs in this mode so long-lived processes stay within the
configured entry cap.

Examples:
  # Warm two locators
  assetwarm warm https://cdn.example.com/a.webp https://cdn.example.com/b.webp

  # Warm from a manifest and keep serving diagnostics
  assetwarm warm --manifest assets.yaml --listen :8484`,
	RunE: runWarm,
}

func init() {
	warmCmd.Flags().StringVarP(&warmManifest, "manifest", "m", "", "YAML manifest of assets to warm")
	warmCmd.Flags().IntVar(&warmConcurrency, "concurrency", 0, "Override preload concurrency")
	warmCmd.Flags().StringVar(&warmListen, "listen", "", "Serve diagnostics on this address after warming")
	warmCmd.Flags().StringVar(&warmFormat, "format", "table", "Report format (table, json or yaml)")
}

// manifest is the on-disk format of a warm-up manifest.
type manifest struct {
	Assets []manifestAsset `yaml:"assets"`
}

type manifestAsset struct {
	Primary  string   `yaml:"primary"`
	Fallback string   `yaml:"fallback,omitempty"`
	Variants []string `yaml:"variants,omitempty"`
	Priority bool     `yaml:"priority,omitempty"`
}

// warmReport is the machine-readable form of a warm-up run.
type warmReport struct {
	Assets  []warmOutcome `json:"assets" yaml:"assets"`
	Summary warmSummary   `json:"summary" yaml:"summary"`
}

type warmOutcome struct {
	Locator string `json:"locator" yaml:"locator"`
	State   string `json:"state" yaml:"state"`
	Detail  string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

type warmSummary struct {
	Warmed   int    `json:"warmed" yaml:"warmed"`
	Failed   int    `json:"failed" yaml:"failed"`
	Entries  int    `json:"entries" yaml:"entries"`
	Timeouts uint64 `json:"timeouts" yaml:"timeouts"`
	Elapsed  string `json:"elapsed" yaml:"elapsed"`
}

func runWarm(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(warmFormat)
	if err != nil {
		return err
	}

	refs, err := collectRefs(args)
	if err != nil {
		return err
	}
	if len(refs) == 0 {
		return errors.New("nothing to warm: pass locators as arguments or use --manifest")
	}

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}

	loader := fetch.NewHTTPLoaderWithOptions(fetch.HTTPOptions{UserAgent: cfg.Fetch.UserAgent})
	scheduler := fetch.NewSchedulerWithOptions(loader, fetch.Options{Timeout: cfg.Fetch.Timeout})
	cache := assetcache.NewWithOptions(scheduler, assetcache.Options{
		Policy:  assetcache.ParsePolicy(cfg.Cache.EvictionPolicy),
		Metrics: metrics.NewAssetCacheMetrics(),
	})
	defer cache.Close() //nolint:errcheck

	concurrency := cfg.Preload.Concurrency
	if warmConcurrency > 0 {
		concurrency = warmConcurrency
	}
	preloader := preload.NewWithConcurrency(cache, concurrency)
	resolver := assetref.NewResolver(cache, preloader, nil)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	outcomes := make([]warmOutcome, 0, len(refs))
	failures := 0
	for _, ref := range refs {
		res, err := resolver.Resolve(ctx, ref)
		switch {
		case err == nil:
			state := "loaded"
			if res.UsedFallback {
				state = "loaded (fallback)"
			}
			outcomes = append(outcomes, warmOutcome{Locator: res.Locator, State: state})
		case errors.Is(err, context.Canceled):
			return err
		default:
			failures++
			outcomes = append(outcomes, warmOutcome{Locator: ref.Primary, State: "failed", Detail: err.Error()})
		}
	}

	stats := cache.Stats()
	report := warmReport{
		Assets: outcomes,
		Summary: warmSummary{
			Warmed:   len(refs) - failures,
			Failed:   failures,
			Entries:  stats.Entries,
			Timeouts: scheduler.Timeouts(),
			Elapsed:  time.Since(start).Round(time.Millisecond).String(),
		},
	}

	out := cmd.OutOrStdout()
	switch format {
	case output.FormatJSON:
		if err := output.PrintJSON(out, report); err != nil {
			return err
		}
	case output.FormatYAML:
		if err := output.PrintYAML(out, report); err != nil {
			return err
		}
	default:
		rows := make([][]string, 0, len(outcomes))
		for _, o := range outcomes {
			rows = append(rows, []string{o.Locator, o.State, o.Detail})
		}
		output.PrintTable(out, []string{"Locator", "State", "Detail"}, rows)

		fmt.Fprintln(out)
		output.SimpleTable(out, [][2]string{
			{"Warmed", fmt.Sprintf("%d", report.Summary.Warmed)},
			{"Failed", fmt.Sprintf("%d", report.Summary.Failed)},
			{"Entries", fmt.Sprintf("%d", report.Summary.Entries)},
			{"Timeouts", fmt.Sprintf("%d", report.Summary.Timeouts)},
			{"Elapsed", report.Summary.Elapsed},
		})
	}

	if warmListen == "" {
		if failures > 0 {
			return fmt.Errorf("%d of %d assets failed to warm", failures, len(refs))
		}
		return nil
	}

	return serveDiagnostics(ctx, cache)
}

// collectRefs merges manifest entries and positional locators.
func collectRefs(args []string) ([]assetref.Ref, error) {
	var refs []assetref.Ref

	if warmManifest != "" {
		data, err := os.ReadFile(warmManifest)
		if err != nil {
			return nil, fmt.Errorf("failed to read manifest: %w", err)
		}
		var m manifest
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to parse manifest: %w", err)
		}
		for i, asset := range m.Assets {
			ref := assetref.Ref{
				Primary:      asset.Primary,
				Fallback:     asset.Fallback,
				SizeVariants: asset.Variants,
				Priority:     asset.Priority,
			}
			if err := ref.Validate(); err != nil {
				return nil, fmt.Errorf("manifest asset %d: %w", i, err)
			}
			refs = append(refs, ref)
		}
	}

	for _, locator := range args {
		refs = append(refs, assetref.Ref{Primary: locator})
	}
	return refs, nil
}

// serveDiagnostics blocks serving cache diagnostics until ctx is cancelled.
func serveDiagnostics(ctx context.Context, cache *assetcache.Cache) error {
	sweeper := sweep.NewWithOptions(cache, sweep.Options{
		Interval: cfg.Cache.SweepInterval,
		Keep:     cfg.Cache.SweepKeep,
	})
	if err := sweeper.Start(ctx); err != nil {
		return err
	}
	defer sweeper.Stop(5 * time.Second) //nolint:errcheck

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/stats", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(cache.Stats())
	})

	if metrics.IsEnabled() {
		go func() {
			logger.Info("metrics server listening", logger.Listen(fmt.Sprintf(":%d", cfg.Metrics.Port)))
			if err := metrics.Serve(ctx, cfg.Metrics.Port); err != nil {
				logger.Error("metrics server failed", logger.Err(err))
			}
		}()
	}

	srv := &http.Server{
		Addr:              warmListen,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("diagnostics server listening", logger.Listen(warmListen))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
