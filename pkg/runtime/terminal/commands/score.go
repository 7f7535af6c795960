package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/de-tools/cloud-sentry/pkg/runtime/terminal/export"
)

type ScoreCmd struct {
	configPath string
	account    string
	logger     zerolog.Logger
	reporter   *export.Reporter
}

func NewScoreCmd(logger zerolog.Logger, reporter *export.Reporter) *cobra.Command {
	sc := &ScoreCmd{logger: logger, reporter: reporter}
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Show the compliance score for an account",
		RunE:  sc.run,
	}

	cmd.Flags().StringVar(&sc.configPath, "config", "", "Path to the configuration file")
	cmd.Flags().StringVar(&sc.account, "account", "", "Account to score")

	_ = cmd.MarkFlagRequired("config")
	_ = cmd.MarkFlagRequired("account")

	return cmd
}

func (sc *ScoreCmd) run(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(sc.logger.WithContext(context.Background()), 60*time.Second)
	defer cancel()

	rt, err := buildRuntime(ctx, sc.configPath)
	if err != nil {
		return err
	}
	defer rt.Close()

	if _, err := rt.cfg.GetAccount(sc.account); err != nil {
		return fmt.Errorf("unknown account %q. Configured accounts: %s",
			sc.account, strings.Join(accountNames(rt.cfg), ", "))
	}

	score, err := rt.detect.Score(ctx, sc.account)
	if err != nil {
		return fmt.Errorf("failed to compute score: %w", err)
	}

	return sc.reporter.HandleScore(score)
}
