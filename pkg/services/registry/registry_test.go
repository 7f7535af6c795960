package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/de-tools/cloud-sentry/pkg/models/domain"
	"github.com/de-tools/cloud-sentry/pkg/services/controls"
	"github.com/de-tools/cloud-sentry/pkg/services/provider"
)

type testControl struct {
	meta domain.ControlMeta
}

func (c *testControl) Meta() domain.ControlMeta { return c.meta }
func (c *testControl) Detect(_ context.Context, _ provider.Provider) ([]domain.FindingDraft, error) {
	return nil, nil
}

type remediableControl struct {
	testControl
}

func (c *remediableControl) Remediate(_ context.Context, _ provider.Provider, _ domain.Finding, _ bool) (domain.RemediationOutcome, error) {
	return domain.RemediationOutcome{}, nil
}

func (c *remediableControl) Rollback(_ context.Context, _ provider.Provider, _ domain.Finding, _ map[string]any) (domain.RemediationOutcome, error) {
	return domain.RemediationOutcome{}, nil
}

func namedControl(id, providerName string) *testControl {
	return &testControl{meta: domain.ControlMeta{ID: id, Provider: providerName}}
}

func TestControlRegistry_OrderAndLookup(t *testing.T) {
	registry, err := NewControlRegistry(
		[]controls.Control{namedControl("AWS-S3-001", "aws"), namedControl("AWS-EC2-001", "aws")},
		[]controls.Control{namedControl("AZ-ST-001", "azure")},
	)
	require.NoError(t, err)

	ctl, err := registry.Get("AZ-ST-001")
	require.NoError(t, err)
	assert.Equal(t, "azure", ctl.Meta().Provider)

	_, err = registry.Get("AWS-S3-999")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	ids := make([]string, 0)
	for _, ctl := range registry.All() {
		ids = append(ids, ctl.Meta().ID)
	}
	assert.Equal(t, []string{"AWS-EC2-001", "AWS-S3-001", "AZ-ST-001"}, ids)

	aws := registry.ForProvider("aws")
	require.Len(t, aws, 2)
	assert.Equal(t, "AWS-EC2-001", aws[0].Meta().ID)
}

func TestControlRegistry_DuplicateID(t *testing.T) {
	_, err := NewControlRegistry([]controls.Control{
		namedControl("AWS-S3-001", "aws"),
		namedControl("AWS-S3-001", "aws"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate control identifier")
}

func TestControlRegistry_AutoRemediableNeedsRemediator(t *testing.T) {
	broken := &testControl{meta: domain.ControlMeta{ID: "AWS-S3-002", Provider: "aws", AutoRemediable: true}}
	_, err := NewControlRegistry([]controls.Control{broken})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declares auto-remediation")

	ok := &remediableControl{testControl{meta: domain.ControlMeta{ID: "AWS-S3-002", Provider: "aws", AutoRemediable: true}}}
	_, err = NewControlRegistry([]controls.Control{ok})
	assert.NoError(t, err)
}

func TestProviderRegistry(t *testing.T) {
	created := 0
	registry := NewProviderRegistry(map[string]provider.Factory{
		"aws": func(_ context.Context, _ domain.Account) (provider.Provider, error) {
			created++
			return nil, nil
		},
	})

	_, err := registry.Create(context.Background(), domain.Account{Name: "prod", Provider: "aws"})
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	_, err = registry.Create(context.Background(), domain.Account{Name: "prod", Provider: "gcp"})
	var validationErr *domain.ValidationError
	assert.ErrorAs(t, err, &validationErr)

	err = registry.Register("aws", func(_ context.Context, _ domain.Account) (provider.Provider, error) {
		return nil, nil
	})
	assert.Error(t, err)

	assert.Contains(t, registry.ListProviders(), "aws")
}
