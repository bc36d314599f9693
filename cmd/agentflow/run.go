package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"agentflow/pkg/agent"
	"agentflow/pkg/agent/middleware/metrics"
	"agentflow/pkg/config"
	"agentflow/pkg/engine"
	"agentflow/pkg/eventlog"
	"agentflow/pkg/indexer"
	"agentflow/pkg/logx"
	"agentflow/pkg/persistence"
	"agentflow/pkg/tools"
	"agentflow/pkg/workspace"
)

// errRunFailed is returned after the run already reported its error event.
var errRunFailed = errors.New("run failed")

var (
	autoApprove bool
	noAudit     bool
	metricsAddr string
)

var runCmd = &cobra.Command{
	Use:   "run [request]",
	Short: "Run a request against the workspace",
	Long: `Run routes the request, plans tasks and executes them. Mutating tool
calls ask for approval on the terminal unless --yes is given.

The request is read from the arguments, or from stdin when no arguments
are given.`,
	RunE: runRequest,
}

func init() { //nolint:gochecknoinits // cobra command wiring
	runCmd.Flags().BoolVarP(&autoApprove, "yes", "y", false, "approve every tool call without asking")
	runCmd.Flags().BoolVar(&noAudit, "no-audit", false, "skip the event log and the run journal")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address (overrides config)")
}

func requestText(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := readAllLimited(cmd.InOrStdin(), 1<<20)
	if err != nil {
		return "", fmt.Errorf("read request: %w", err)
	}
	return string(data), nil
}

func runRequest(cmd *cobra.Command, args []string) error {
	request, err := requestText(cmd, args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	agentDir := filepath.Join(workspaceDir, config.ProjectConfigDir)
	if _, err := logx.InitializeLogFile(filepath.Join(agentDir, "logs")); err != nil {
		return fmt.Errorf("initialize log file: %w", err)
	}
	if err := unlockSecrets(cmd); err != nil {
		return err
	}

	if metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = metricsAddr
	}
	var (
		recorder metrics.Recorder
		promReg  *prometheus.Registry
	)
	if cfg.Metrics.Enabled {
		promReg = prometheus.NewRegistry()
		promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		recorder = metrics.NewPrometheusRecorder(promReg)
	}

	opts := engine.Options{
		Clients:     agent.NewLLMClientFactory(cfg, recorder),
		Registry:    tools.NewDefaultRegistry(tools.NewToolbox(workspaceDir)),
		Index:       workspace.NewManager(workspaceDir, indexer.New(cfg.Index.MaxFiles), cfg.Index),
		BaseDir:     workspaceDir,
		Config:      cfg,
		AutoApprove: autoApprove,
	}
	if !noAudit {
		w, err := eventlog.NewWriter(filepath.Join(agentDir, "events"))
		if err != nil {
			return err
		}
		defer w.Close()
		opts.EventLog = w
		if cfg.Journal.Enabled {
			j, err := persistence.Open(filepath.Join(agentDir, "journal.db"))
			if err != nil {
				return err
			}
			defer j.Close()
			opts.Journal = j
		}
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	approver := engine.NewChannelApprover()
	events := engine.New(opts).Run(ctx, request, approver)
	h := newHost(cmd.OutOrStdout(), cmd.ErrOrStderr(), cmd.InOrStdin())

	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})
	g.Go(func() error {
		defer close(done)
		return h.consume(events)
	})
	g.Go(func() error {
		return h.approve(gctx, done, approver)
	})
	if promReg != nil {
		srv := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			// A metrics failure must not abort the run it observes.
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logx.NewLogger("cli").Warn("metrics server: %v", err)
			}
			return nil
		})
		g.Go(func() error {
			select {
			case <-done:
			case <-gctx.Done():
			}
			shutdownCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer stop()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if !h.succeeded {
		return errRunFailed
	}
	return nil
}

// unlockSecrets decrypts the project's secrets file when one exists. The
// password comes from AGENTFLOW_SECRETS_PASSWORD or a terminal prompt.
func unlockSecrets(cmd *cobra.Command) error {
	if !config.SecretsFileExists(workspaceDir) {
		return nil
	}
	password := os.Getenv("AGENTFLOW_SECRETS_PASSWORD")
	if password == "" {
		p, err := promptPassword(cmd.ErrOrStderr(), "Secrets password: ")
		if errors.Is(err, errNoTerminal) {
			logx.NewLogger("cli").Warn("secrets file present but no terminal to unlock it; using environment")
			return nil
		}
		if err != nil {
			return err
		}
		password = p
	}
	m, err := config.DecryptSecretsFile(workspaceDir, password)
	if err != nil {
		return fmt.Errorf("unlock secrets: %w", err)
	}
	config.SetDecryptedSecrets(m)
	return nil
}
