package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/de-tools/cloud-sentry/pkg/models/domain"
	"github.com/de-tools/cloud-sentry/pkg/runtime/terminal/export"
	awscontrols "github.com/de-tools/cloud-sentry/pkg/services/controls/aws"
	azurecontrols "github.com/de-tools/cloud-sentry/pkg/services/controls/azure"
	"github.com/de-tools/cloud-sentry/pkg/services/registry"
)

type ControlsCmd struct {
	provider string
	reporter *export.Reporter
}

func NewControlsCmd(reporter *export.Reporter) *cobra.Command {
	cc := &ControlsCmd{reporter: reporter}
	cmd := &cobra.Command{
		Use:   "controls",
		Short: "List the control catalog",
		RunE:  cc.run,
	}

	cmd.Flags().StringVar(&cc.provider, "provider", "", "Only list controls for this provider (aws, azure)")

	return cmd
}

func (cc *ControlsCmd) run(cmd *cobra.Command, args []string) error {
	ctlRegistry, err := registry.NewControlRegistry(awscontrols.Controls(), azurecontrols.Controls())
	if err != nil {
		return fmt.Errorf("failed to build control registry: %w", err)
	}

	catalog := ctlRegistry.All()
	if cc.provider != "" {
		catalog = ctlRegistry.ForProvider(cc.provider)
	}

	metas := make([]domain.ControlMeta, 0, len(catalog))
	for _, ctl := range catalog {
		metas = append(metas, ctl.Meta())
	}

	return cc.reporter.HandleControls(metas)
}
