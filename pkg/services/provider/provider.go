package provider

import (
	"context"

	"github.com/de-tools/cloud-sentry/pkg/models/domain"
)

type ResourceType string

const (
	ResourceS3Bucket       ResourceType = "s3_bucket"
	ResourceEC2Instance    ResourceType = "ec2_instance"
	ResourceEBSVolume      ResourceType = "ebs_volume"
	ResourceSecurityGroup  ResourceType = "security_group"
	ResourceRDSInstance    ResourceType = "rds_instance"
	ResourceStorageAccount ResourceType = "storage_account"
	ResourceNSG            ResourceType = "network_security_group"
)

// Resource is an observed snapshot of one cloud resource. State is
// provider-defined and treated as an immutable value once captured.
type Resource struct {
	ID     string
	Type   ResourceType
	Name   string
	Region string
	State  map[string]any
}

// Provider abstracts one cloud vendor for one account. Implementations must
// surface failures as *domain.ProviderError so callers can tell an auth or
// rate-limit failure apart from a compliant resource.
//
// ListResources and DescribeResource are read-only; MutateResource is the
// only mutating entry point and is reached exclusively through the
// remediation engine.
type Provider interface {
	Name() string
	ListResources(ctx context.Context, rt ResourceType) ([]Resource, error)
	DescribeResource(ctx context.Context, rt ResourceType, id string) (Resource, error)
	MutateResource(ctx context.Context, rt ResourceType, id, operation string, params map[string]any) (map[string]any, error)
}

// Factory builds a provider bound to one account.
type Factory func(ctx context.Context, account domain.Account) (Provider, error)
