package cli

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"idp.evalgo.org/common"
	"idp.evalgo.org/config"
	"idp.evalgo.org/dedup"
	"idp.evalgo.org/extract"
	"idp.evalgo.org/llm"
	"idp.evalgo.org/ocr"
	"idp.evalgo.org/queue"
	"idp.evalgo.org/sandbox"
	"idp.evalgo.org/storage"
	"idp.evalgo.org/store"
	"idp.evalgo.org/webhook"
)

// deps bundles every collaborator a stage worker needs, built once per
// process from the resolved IDPConfig. Stage-specific handlers (see
// serve.go) each take the slice of deps.* fields relevant to their own
// orchestrator.*Deps struct.
type deps struct {
	cfg *config.IDPConfig

	logger *common.ContextLogger

	db     *store.DB
	fabric *queue.Fabric
	dedup  *dedup.Index
	objs   *storage.S3Store

	ocrDispatcher *ocr.Dispatcher
	strategies    map[string]extract.Strategy
	llmClient     *llm.Client

	sandboxRuntime *sandbox.Runtime

	pushDispatcher *webhook.Dispatcher
	generic        *webhook.GenericTarget
	erp            *webhook.ERPSessionTarget
}

// buildDeps wires every IDP collaborator from cfg, in the dependency
// order each constructor requires (queue fabric before webhook
// dispatcher, object store before the presign-capable S3Store, etc).
func buildDeps(ctx context.Context, cfg *config.IDPConfig) (*deps, error) {
	logger := common.NewContextLogger(common.NewLogger(common.LoggerConfig{
		Level:   common.LogLevel(cfg.Service.LogLevel),
		Format:  cfg.Service.LogFormat,
		Service: cfg.Service.Name,
		Version: cfg.Service.Version,
	}), map[string]interface{}{"service": cfg.Service.Name})

	db, err := store.Open(cfg.Postgres.DSN, cfg.Postgres.MaxIdleConns, cfg.Postgres.MaxOpenConns, cfg.Postgres.ConnMaxLifetime)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}

	fabric, err := queue.NewFabric(&queue.RealAMQPDialer{}, common.QueueConfig{
		AMQPURL:       cfg.Queue.AMQPURL,
		OCRQueue:      cfg.Queue.OCRQueue,
		PipelineQueue: cfg.Queue.PipelineQueue,
		PushQueue:     cfg.Queue.PushQueue,
		DeadLetter:    cfg.Queue.DeadLetter,
	})
	if err != nil {
		return nil, fmt.Errorf("open queue fabric: %w", err)
	}

	dedupIdx, err := dedup.NewIndex(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, fmt.Errorf("open dedup index: %w", err)
	}

	objs, err := buildObjectStore(ctx, cfg.ObjectStore)
	if err != nil {
		return nil, fmt.Errorf("open object store: %w", err)
	}

	ocrDispatcher, err := buildOCRDispatcher(cfg.OCR)
	if err != nil {
		return nil, fmt.Errorf("build ocr dispatcher: %w", err)
	}

	llmClient := llm.NewFromConfig(cfg.LLM)

	strategies := map[string]extract.Strategy{
		"regex":  extract.RegexStrategy{},
		"anchor": extract.AnchorStrategy{},
		"table":  extract.TableStrategy{},
	}

	sandboxRuntime := sandbox.NewRuntime(cfg.Sandbox.PythonPath, cfg.Service.Name+"-sandbox-cache", cfg.Sandbox.Timeout)

	pushDispatcher := webhook.NewDispatcher(fabric)
	pushDispatcher.RetryDelays = cfg.PushRetry.Delays

	generic := webhook.NewGenericTarget(cfg.Security.EncryptionKey)
	erp, err := webhook.NewERPSessionTarget(cfg.Security.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("build erp session target: %w", err)
	}

	return &deps{
		cfg:            cfg,
		logger:         logger,
		db:             db,
		fabric:         fabric,
		dedup:          dedupIdx,
		objs:           objs,
		ocrDispatcher:  ocrDispatcher,
		strategies:     strategies,
		llmClient:      llmClient,
		sandboxRuntime: sandboxRuntime,
		pushDispatcher: pushDispatcher,
		generic:        generic,
		erp:            erp,
	}, nil
}

// buildObjectStore constructs an S3Store against cfg, resolving a custom
// endpoint (MinIO, or any other S3-compatible host) when configured,
// falling back to the AWS SDK's standard endpoint resolution otherwise.
func buildObjectStore(ctx context.Context, cfg config.ObjectStoreConfig) (*storage.S3Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(cfg.Region))
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = &cfg.Endpoint
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	presigner := s3.NewPresignClient(client)

	return storage.NewS3Store(client, cfg.Bucket, presigner), nil
}

// buildOCRDispatcher resolves the configured primary/fallback backend
// names into ocr.Backend instances. The "local" backend requires an
// injected Recognizer (a native detector/recognizer binding) that this
// module does not itself embed; selecting "local" without one is a
// configuration error, not a silent no-op.
func buildOCRDispatcher(cfg config.OCRConfig) (*ocr.Dispatcher, error) {
	primary, err := resolveOCRBackend(cfg.PrimaryBackend, cfg)
	if err != nil {
		return nil, fmt.Errorf("primary backend: %w", err)
	}

	var fallback ocr.Backend
	if cfg.FallbackBackend != "" {
		fallback, err = resolveOCRBackend(cfg.FallbackBackend, cfg)
		if err != nil {
			return nil, fmt.Errorf("fallback backend: %w", err)
		}
	}

	return ocr.NewDispatcher(primary, fallback), nil
}

func resolveOCRBackend(name string, cfg config.OCRConfig) (ocr.Backend, error) {
	switch name {
	case "cli":
		return ocr.NewCLIBackend(cfg.CLIPath), nil
	case "http":
		return ocr.NewHTTPBackend(cfg.HTTPEndpoint, cfg.MaxParallel, cfg.Timeout), nil
	case "local":
		return nil, fmt.Errorf("local OCR backend requires a Recognizer binding not provided by this build")
	default:
		return nil, fmt.Errorf("unknown OCR backend %q", name)
	}
}

// close releases every collaborator that owns a live connection, in
// reverse wiring order.
func (d *deps) close() {
	_ = d.dedup.Close()
	_ = d.fabric.Close()
	_ = d.db.Close()
}
