package main

import (
	"fmt"
	"os"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/de-tools/cloud-sentry/pkg/server"
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
	"github.com/de-tools/cloud-sentry/pkg/store/duckdb"
	sqlstore "github.com/de-tools/cloud-sentry/pkg/store/sql"
)

var cfgPath string

func main() {
	var rootCmd = &cobra.Command{
		Use:   "web",
		Short: "Start the Cloud Sentry API server",
		RunE:  runServer,
	}

	rootCmd.Flags().StringVarP(&cfgPath, "config", "c", "sentry.yaml",
		"Path to the configuration file")

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, _ []string) error {
	if err := godotenv.Load(); err != nil {
		fmt.Printf("Error loading .env file: %v\n", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	ctx := logger.WithContext(cmd.Context())

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Info().Msgf("Configuration found at `%s` successfully loaded.", cfgPath)
	for _, acc := range cfg.GetAccounts() {
		logger.Info().Msgf("Account: `%s`, Provider: `%s`", acc.Name, acc.Provider)
	}

	ctlRegistry, err := registry.NewControlRegistry(awscontrols.Controls(), azurecontrols.Controls())
	if err != nil {
		return fmt.Errorf("failed to build control registry: %w", err)
	}

	providers := registry.NewProviderRegistry(map[string]provider.Factory{
		"aws":   awsprovider.NewProvider,
		"azure": azureprovider.NewProvider,
	})

	db, err := duckdb.NewDB(duckdb.Settings{
		DbPath: cfg.Storage.DbPath,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	findings, err := sqlstore.NewFindingStore(db)
	if err != nil {
		return fmt.Errorf("failed to create finding store: %w", err)
	}
	auditStore, err := sqlstore.NewAuditStore(db)
	if err != nil {
		return fmt.Errorf("failed to create audit store: %w", err)
	}
	ledger := audit.NewLedger(auditStore)

	var blobs evidence.Store
	if cfg.Evidence.Bucket != "" {
		opts := []func(*awsconfig.LoadOptions) error{}
		if cfg.Evidence.Region != "" {
			opts = append(opts, awsconfig.WithRegion(cfg.Evidence.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return fmt.Errorf("failed to load AWS config for evidence store: %w", err)
		}
		blobs, err = evidence.NewS3Store(s3.NewFromConfig(awsCfg), cfg.Evidence.Bucket)
		if err != nil {
			return fmt.Errorf("failed to create evidence store: %w", err)
		}
	} else {
		logger.Warn().Msg("No evidence bucket configured, evidence is kept in memory")
		blobs = evidence.NewMemoryStore()
	}

	api := server.NewWebAPI(server.Config{
		Addr: cfg.Server.Addr,
		Dependencies: server.Dependencies{
			Logger:   logger,
			Accounts: cfg,
			Scanner: detect.NewEngine(ctlRegistry, providers, findings, ledger, detect.Settings{
				MaxConcurrency: cfg.Engine.MaxConcurrency,
				ControlTimeout: cfg.Engine.ControlTimeout,
			}),
			Fixer:    remediate.NewEngine(ctlRegistry, providers, findings, ledger, blobs),
			Reporter: evidence.NewReporter(findings, auditStore, blobs),
			Controls: ctlRegistry,
			Findings: findings,
			AuditLog: auditStore,
		},
	})

	return api.Start()
}
