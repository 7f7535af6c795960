package commands

import (
	"context"
	"database/sql"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/de-tools/cloud-sentry/pkg/services/audit"
	"github.com/de-tools/cloud-sentry/pkg/services/config"
	awscontrols "github.com/de-tools/cloud-sentry/pkg/services/controls/aws"
	azurecontrols "github.com/de-tools/cloud-sentry/pkg/services/controls/azure"
	"github.com/de-tools/cloud-sentry/pkg/services/detect"
	"github.com/de-tools/cloud-sentry/pkg/services/evidence"
	"github.com/de-tools/cloud-sentry/pkg/services/provider"
	awsprovider "github.com/de-tools/cloud-sentry/pkg/services/provider/aws"
	azureprovider "github.com/de-tools/cloud-sentry/pkg/services/provider/azure"
	"github.com/de-tools/cloud-sentry/pkg/services/registry"
	"github.com/de-tools/cloud-sentry/pkg/services/remediate"
	auditstore "github.com/de-tools/cloud-sentry/pkg/store/audit"
	"github.com/de-tools/cloud-sentry/pkg/store/duckdb"
	findingstore "github.com/de-tools/cloud-sentry/pkg/store/findings"
	sqlstore "github.com/de-tools/cloud-sentry/pkg/store/sql"
)

// runtime wires the full engine stack from one config file for a single
// CLI invocation.
type runtime struct {
	cfg       *config.Config
	db        *sql.DB
	findings  findingstore.Store
	auditLog  auditstore.Store
	blobs     evidence.Store
	detect    *detect.Engine
	remediate *remediate.Engine
}

func buildRuntime(ctx context.Context, cfgPath string) (*runtime, error) {
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return nil, err
	}

	ctlRegistry, err := registry.NewControlRegistry(awscontrols.Controls(), azurecontrols.Controls())
	if err != nil {
		return nil, fmt.Errorf("failed to build control registry: %w", err)
	}

	providers := registry.NewProviderRegistry(map[string]provider.Factory{
		"aws":   awsprovider.NewProvider,
		"azure": azureprovider.NewProvider,
	})

	db, err := duckdb.NewDB(duckdb.Settings{DbPath: cfg.Storage.DbPath})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	findings, err := sqlstore.NewFindingStore(db)
	if err != nil {
		return nil, err
	}
	auditStore, err := sqlstore.NewAuditStore(db)
	if err != nil {
		return nil, err
	}
	ledger := audit.NewLedger(auditStore)

	blobs, err := newEvidenceStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &runtime{
		cfg:      cfg,
		db:       db,
		findings: findings,
		auditLog: auditStore,
		blobs:    blobs,
		detect: detect.NewEngine(ctlRegistry, providers, findings, ledger, detect.Settings{
			MaxConcurrency: cfg.Engine.MaxConcurrency,
			ControlTimeout: cfg.Engine.ControlTimeout,
		}),
		remediate: remediate.NewEngine(ctlRegistry, providers, findings, ledger, blobs),
	}, nil
}

func (r *runtime) Close() error {
	return r.db.Close()
}

func accountNames(cfg *config.Config) []string {
	names := make([]string, 0, len(cfg.Accounts))
	for _, acc := range cfg.Accounts {
		names = append(names, acc.Name)
	}
	return names
}

// newEvidenceStore picks S3-backed evidence when a bucket is configured
// and falls back to process-local storage otherwise.
func newEvidenceStore(ctx context.Context, cfg *config.Config) (evidence.Store, error) {
	if cfg.Evidence.Bucket == "" {
		return evidence.NewMemoryStore(), nil
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Evidence.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Evidence.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for evidence store: %w", err)
	}
	return evidence.NewS3Store(s3.NewFromConfig(awsCfg), cfg.Evidence.Bucket)
}
