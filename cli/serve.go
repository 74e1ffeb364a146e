package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"idp.evalgo.org/common"
	"idp.evalgo.org/config"
	"idp.evalgo.org/httpserver"
	"idp.evalgo.org/orchestrator"
)

// serveCmd is the parent of the four stage-worker subcommands. It carries
// no Run of its own, matching the teacher's pattern of a bare parent
// command whose children do the work.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run one or more stage workers against the durable queue fabric",
}

func init() {
	serveCmd.AddCommand(
		&cobra.Command{
			Use:   "ocr",
			Short: "consume the ocr queue: recognize, extract, clean, validate, gate",
			RunE:  runServe(common.StageOCR),
		},
		&cobra.Command{
			Use:   "pipeline",
			Short: "consume the pipeline queue: run the rule's bound script",
			RunE:  runServe(common.StagePipeline),
		},
		&cobra.Command{
			Use:   "push",
			Short: "consume the push queue: dispatch extracted data to webhooks",
			RunE:  runServe(common.StagePush),
		},
		&cobra.Command{
			Use:   "all",
			Short: "run the ocr, pipeline, and push workers in one process",
			RunE:  runServe(""),
		},
	)
	RootCmd.AddCommand(serveCmd)
}

// runServe returns a cobra RunE that builds every collaborator, starts
// the named stage worker (or all three when stage is empty), starts the
// health endpoint, and blocks until SIGINT/SIGTERM — the same
// wiring-then-signal.Notify shape as the teacher's runServer in
// cli/root.go, generalized from one monolithic API process to a
// per-stage worker tree.
func runServe(stage common.StageName) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadIDPConfig("IDP")
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		d, err := buildDeps(ctx, cfg)
		if err != nil {
			return err
		}
		defer d.close()

		if err := d.db.AutoMigrate(); err != nil {
			return fmt.Errorf("migrate job store: %w", err)
		}

		var workers []*orchestrator.StageWorker
		if stage == "" || stage == common.StageOCR {
			workers = append(workers, orchestrator.NewStageWorker(common.StageOCR, d.fabric, orchestrator.OCRHandler(orchestrator.OCRDeps{
				Jobs:       d.db.Jobs(),
				Rules:      d.db.Rules(),
				Objects:    d.objs,
				Dispatcher: d.ocrDispatcher,
				Strategies: d.strategies,
				LLM:        d.llmClient,
				Fabric:     d.fabric,
				Dedup:      d.dedup,
				WorkDir:    os.TempDir(),
				Logger:     d.logger,
			}), d.logger))
		}
		if stage == "" || stage == common.StagePipeline {
			workers = append(workers, orchestrator.NewStageWorker(common.StagePipeline, d.fabric, orchestrator.PipelineHandler(orchestrator.PipelineDeps{
				Jobs:      d.db.Jobs(),
				Pipelines: d.db.Pipelines(),
				Runtime:   d.sandboxRuntime,
				Fabric:    d.fabric,
			}), d.logger))
		}
		if stage == "" || stage == common.StagePush {
			workers = append(workers, orchestrator.NewStageWorker(common.StagePush, d.fabric, orchestrator.PushHandler(orchestrator.PushDeps{
				Jobs:       d.db.Jobs(),
				Webhooks:   d.db.Webhooks(),
				PushLogs:   d.db.PushLogs(),
				Objects:    d.objs,
				Dispatcher: d.pushDispatcher,
				Generic:    d.generic,
				ERPSession: d.erp,
				Dedup:      d.dedup,
			}), d.logger))
		}

		var wg sync.WaitGroup
		errCh := make(chan error, len(workers)+1)
		for _, w := range workers {
			wg.Add(1)
			go func(w *orchestrator.StageWorker) {
				defer wg.Done()
				if err := w.Start(ctx); err != nil {
					errCh <- err
				}
			}(w)
		}

		e := httpserver.New(cfg.Server)
		e.GET("/healthz", httpserver.HealthHandler(cfg.Service.Name, cfg.Service.Version, func() map[string]interface{} {
			details := map[string]interface{}{}
			for _, s := range []common.StageName{common.StageOCR, common.StagePipeline, common.StagePush} {
				if depth, err := d.fabric.Depth(s); err == nil {
					details[string(s)+"_depth"] = depth
				}
			}
			return details
		}))
		go func() {
			if err := httpserver.Start(ctx, e, cfg.Server); err != nil {
				errCh <- err
			}
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			d.logger.WithField("signal", sig.String()).Info("shutting down")
			cancel()
		case err := <-errCh:
			cancel()
			wg.Wait()
			return err
		case <-ctx.Done():
		}

		for _, w := range workers {
			w.Stop()
		}
		wg.Wait()
		return nil
	}
}
