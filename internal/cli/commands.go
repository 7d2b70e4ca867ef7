package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/Adda-Baaj/trendwatch/internal/api"
	"github.com/Adda-Baaj/trendwatch/internal/config"
	"github.com/Adda-Baaj/trendwatch/internal/domain"
	"github.com/Adda-Baaj/trendwatch/internal/scheduler"
	"github.com/Adda-Baaj/trendwatch/pkg/providers"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// drainTimeout bounds how long serve waits for a running cycle on shutdown.
const drainTimeout = 2 * time.Minute

func newServeCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run scrape cycles on a schedule and serve the API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, log, err := loadConfig(flags)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			a, err := newApp(ctx, cfg, log)
			if err != nil {
				return err
			}

			sched := scheduler.New(a.pipeline, cfg.ScrapeInterval, log)
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				if err := sched.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
			if cfg.HTTP.Enabled {
				gin.SetMode(gin.ReleaseMode)
				router := api.NewRouter(a.pipeline, sched, log)
				g.Go(func() error {
					return api.Serve(gctx, cfg.HTTP.Addr, router, log)
				})
			}

			err = g.Wait()

			// A cycle started over the API is detached from ctx; history and
			// publishers are released only once it has finished. If it outlives
			// the drain timeout they are left to process exit instead.
			drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
			if derr := sched.Shutdown(drainCtx); derr != nil {
				log.WarnObj("running cycle did not finish before shutdown", "shutdown_drain_timeout", map[string]any{
					"timeout": drainTimeout.String(),
					"error":   derr,
				})
			} else if cerr := a.Close(); cerr != nil {
				log.WarnObj("shutdown cleanup failed", "shutdown_error", map[string]any{"error": cerr})
			}
			log.InfoObj("trendwatch stopped", "shutdown", nil)
			return err
		},
	}
}

func newRunCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run a single scrape cycle and print its report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, log, err := loadConfig(flags)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			a, err := newApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			rep, err := a.pipeline.RunCycle(ctx)
			if encErr := writeJSON(cmd.OutOrStdout(), rep); encErr != nil {
				return encErr
			}
			return err
		},
	}
}

func newClassifyCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "classify [articles.json]",
		Short: "Score and classify articles from a file or stdin without alerting",
		Long: "classify reads a JSON array of articles, or an object with an \"articles\" array, " +
			"and prints categories, impact and urgency for those not yet alerted. History is only read.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open articles: %w", err)
				}
				defer f.Close()
				in = f
			}
			articles, err := decodeArticles(in)
			if err != nil {
				return err
			}

			cfg, log, err := loadConfig(flags)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			a, err := newClassifierApp(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			results, err := a.classifier.Run(cmd.Context(), articles, a.history)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), api.ClassifyResponse{Results: results})
		},
	}
}

func newProvidersCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List configured news providers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags.config)
			if err != nil {
				return err
			}
			reg, err := providers.LoadRegistry(cfg.ProvidersFile)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTYPE\tENABLED\tURL")
			for _, p := range reg.All() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.ID, p.Type, strconv.FormatBool(p.EnabledValue()), p.SourceURL)
			}
			return tw.Flush()
		},
	}
}

// decodeArticles accepts either a bare array or {"articles": [...]}.
func decodeArticles(r io.Reader) ([]domain.Article, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read articles: %w", err)
	}
	var list []domain.Article
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var wrapped api.ClassifyRequest
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decode articles: %w", err)
	}
	if wrapped.Articles == nil {
		return nil, errors.New("decode articles: no \"articles\" array found")
	}
	return wrapped.Articles, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
