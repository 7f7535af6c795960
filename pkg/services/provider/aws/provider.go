package aws

import (
	"context"
	"errors"
	"fmt"
	"strings"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/de-tools/cloud-sentry/pkg/models/domain"
	"github.com/de-tools/cloud-sentry/pkg/services/provider"
)

const providerName = "aws"

type awsProvider struct {
	region string
	s3     *s3.Client
	ec2    *ec2.Client
	rds    *rds.Client
}

// NewProvider builds an AWS resource provider bound to one account, using
// the account's shared-config profile and region.
func NewProvider(ctx context.Context, account domain.Account) (provider.Provider, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if account.Region != "" {
		opts = append(opts, awsconfig.WithRegion(account.Region))
	}
	if account.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(account.Profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for account %q: %w", account.Name, err)
	}

	return &awsProvider{
		region: cfg.Region,
		s3:     s3.NewFromConfig(cfg),
		ec2:    ec2.NewFromConfig(cfg),
		rds:    rds.NewFromConfig(cfg),
	}, nil
}

func (p *awsProvider) Name() string { return providerName }

func (p *awsProvider) ListResources(ctx context.Context, rt provider.ResourceType) ([]provider.Resource, error) {
	switch rt {
	case provider.ResourceS3Bucket:
		return p.listBuckets(ctx)
	case provider.ResourceEC2Instance:
		return p.listInstances(ctx, nil)
	case provider.ResourceEBSVolume:
		return p.listVolumes(ctx, nil)
	case provider.ResourceSecurityGroup:
		return p.listSecurityGroups(ctx, nil)
	case provider.ResourceRDSInstance:
		return p.listDBInstances(ctx, "")
	default:
		return nil, domain.NewValidationError("aws provider does not support resource type %q", rt)
	}
}

func (p *awsProvider) DescribeResource(ctx context.Context, rt provider.ResourceType, id string) (provider.Resource, error) {
	var (
		resources []provider.Resource
		err       error
	)

	switch rt {
	case provider.ResourceS3Bucket:
		// Findings carry the bucket ARN; the SDK wants the bare name.
		r, derr := p.describeBucket(ctx, strings.TrimPrefix(id, "arn:aws:s3:::"))
		return r, derr
	case provider.ResourceEC2Instance:
		resources, err = p.listInstances(ctx, []string{id})
	case provider.ResourceEBSVolume:
		resources, err = p.listVolumes(ctx, []string{id})
	case provider.ResourceSecurityGroup:
		resources, err = p.listSecurityGroups(ctx, []string{id})
	case provider.ResourceRDSInstance:
		resources, err = p.listDBInstances(ctx, id)
	default:
		return provider.Resource{}, domain.NewValidationError("aws provider does not support resource type %q", rt)
	}

	if err != nil {
		return provider.Resource{}, err
	}
	if len(resources) == 0 {
		return provider.Resource{}, &domain.ProviderError{
			Provider: providerName,
			Code:     domain.ProviderNotFound,
			Op:       "DescribeResource",
			Err:      errNotFound(string(rt), id),
		}
	}
	return resources[0], nil
}

func (p *awsProvider) MutateResource(
	ctx context.Context,
	rt provider.ResourceType,
	id, operation string,
	params map[string]any,
) (map[string]any, error) {
	switch {
	case rt == provider.ResourceS3Bucket && operation == "put_public_access_block":
		return p.putPublicAccessBlock(ctx, id, params)
	case rt == provider.ResourceS3Bucket && operation == "put_bucket_encryption":
		return p.putBucketEncryption(ctx, id)
	case rt == provider.ResourceS3Bucket && operation == "delete_bucket_encryption":
		return p.deleteBucketEncryption(ctx, id)
	case rt == provider.ResourceS3Bucket && operation == "put_bucket_versioning":
		return p.putBucketVersioning(ctx, id, params)
	case rt == provider.ResourceSecurityGroup && operation == "revoke_ingress":
		return p.changeIngress(ctx, id, params, false)
	case rt == provider.ResourceSecurityGroup && operation == "authorize_ingress":
		return p.changeIngress(ctx, id, params, true)
	default:
		return nil, domain.NewValidationError("aws provider does not support operation %q on %q", operation, rt)
	}
}

func (p *awsProvider) listBuckets(ctx context.Context) ([]provider.Resource, error) {
	out, err := p.s3.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, p.wrap("ListBuckets", err)
	}

	resources := make([]provider.Resource, 0, len(out.Buckets))
	for _, b := range out.Buckets {
		r, err := p.describeBucket(ctx, awssdk.ToString(b.Name))
		if err != nil {
			return nil, err
		}
		resources = append(resources, r)
	}
	return resources, nil
}

func (p *awsProvider) describeBucket(ctx context.Context, name string) (provider.Resource, error) {
	state := map[string]any{"bucket": name}

	pab, err := p.s3.GetPublicAccessBlock(ctx, &s3.GetPublicAccessBlockInput{Bucket: awssdk.String(name)})
	switch {
	case isErrorCode(err, "NoSuchPublicAccessBlockConfiguration"):
		state["public_access_block"] = map[string]any{}
	case err != nil:
		return provider.Resource{}, p.wrap("GetPublicAccessBlock", err)
	default:
		cfg := pab.PublicAccessBlockConfiguration
		state["public_access_block"] = map[string]any{
			"block_public_acls":       awssdk.ToBool(cfg.BlockPublicAcls),
			"ignore_public_acls":      awssdk.ToBool(cfg.IgnorePublicAcls),
			"block_public_policy":     awssdk.ToBool(cfg.BlockPublicPolicy),
			"restrict_public_buckets": awssdk.ToBool(cfg.RestrictPublicBuckets),
		}
	}

	enc, err := p.s3.GetBucketEncryption(ctx, &s3.GetBucketEncryptionInput{Bucket: awssdk.String(name)})
	switch {
	case isErrorCode(err, "ServerSideEncryptionConfigurationNotFoundError"):
		state["encryption_enabled"] = false
	case err != nil:
		return provider.Resource{}, p.wrap("GetBucketEncryption", err)
	default:
		state["encryption_enabled"] = len(enc.ServerSideEncryptionConfiguration.Rules) > 0
	}

	ver, err := p.s3.GetBucketVersioning(ctx, &s3.GetBucketVersioningInput{Bucket: awssdk.String(name)})
	if err != nil {
		return provider.Resource{}, p.wrap("GetBucketVersioning", err)
	}
	state["versioning_enabled"] = ver.Status == s3types.BucketVersioningStatusEnabled

	return provider.Resource{
		ID:     fmt.Sprintf("arn:aws:s3:::%s", name),
		Type:   provider.ResourceS3Bucket,
		Name:   name,
		Region: p.region,
		State:  state,
	}, nil
}

func (p *awsProvider) listInstances(ctx context.Context, ids []string) ([]provider.Resource, error) {
	input := &ec2.DescribeInstancesInput{}
	if len(ids) > 0 {
		input.InstanceIds = ids
	}

	out, err := p.ec2.DescribeInstances(ctx, input)
	if err != nil {
		return nil, p.wrap("DescribeInstances", err)
	}

	var resources []provider.Resource
	for _, reservation := range out.Reservations {
		for _, inst := range reservation.Instances {
			resources = append(resources, provider.Resource{
				ID:     awssdk.ToString(inst.InstanceId),
				Type:   provider.ResourceEC2Instance,
				Name:   instanceName(inst),
				Region: p.region,
				State: map[string]any{
					"instance_type": string(inst.InstanceType),
					"public_ip":     awssdk.ToString(inst.PublicIpAddress),
					"state":         string(inst.State.Name),
				},
			})
		}
	}
	return resources, nil
}

func (p *awsProvider) listVolumes(ctx context.Context, ids []string) ([]provider.Resource, error) {
	input := &ec2.DescribeVolumesInput{}
	if len(ids) > 0 {
		input.VolumeIds = ids
	}

	out, err := p.ec2.DescribeVolumes(ctx, input)
	if err != nil {
		return nil, p.wrap("DescribeVolumes", err)
	}

	resources := make([]provider.Resource, 0, len(out.Volumes))
	for _, vol := range out.Volumes {
		resources = append(resources, provider.Resource{
			ID:     awssdk.ToString(vol.VolumeId),
			Type:   provider.ResourceEBSVolume,
			Name:   awssdk.ToString(vol.VolumeId),
			Region: p.region,
			State: map[string]any{
				"encrypted": awssdk.ToBool(vol.Encrypted),
				"size_gb":   awssdk.ToInt32(vol.Size),
			},
		})
	}
	return resources, nil
}

func (p *awsProvider) listSecurityGroups(ctx context.Context, ids []string) ([]provider.Resource, error) {
	input := &ec2.DescribeSecurityGroupsInput{}
	if len(ids) > 0 {
		input.GroupIds = ids
	}

	out, err := p.ec2.DescribeSecurityGroups(ctx, input)
	if err != nil {
		return nil, p.wrap("DescribeSecurityGroups", err)
	}

	resources := make([]provider.Resource, 0, len(out.SecurityGroups))
	for _, sg := range out.SecurityGroups {
		var open []any
		for _, perm := range sg.IpPermissions {
			for _, ipRange := range perm.IpRanges {
				if awssdk.ToString(ipRange.CidrIp) != "0.0.0.0/0" {
					continue
				}
				open = append(open, map[string]any{
					"protocol":  awssdk.ToString(perm.IpProtocol),
					"from_port": awssdk.ToInt32(perm.FromPort),
					"to_port":   awssdk.ToInt32(perm.ToPort),
					"cidr":      awssdk.ToString(ipRange.CidrIp),
				})
			}
		}

		resources = append(resources, provider.Resource{
			ID:     awssdk.ToString(sg.GroupId),
			Type:   provider.ResourceSecurityGroup,
			Name:   awssdk.ToString(sg.GroupName),
			Region: p.region,
			State: map[string]any{
				"open_ingress": open,
				"rule_count":   len(sg.IpPermissions),
			},
		})
	}
	return resources, nil
}

func (p *awsProvider) listDBInstances(ctx context.Context, id string) ([]provider.Resource, error) {
	input := &rds.DescribeDBInstancesInput{}
	if id != "" {
		input.DBInstanceIdentifier = awssdk.String(id)
	}

	out, err := p.rds.DescribeDBInstances(ctx, input)
	if err != nil {
		return nil, p.wrap("DescribeDBInstances", err)
	}

	resources := make([]provider.Resource, 0, len(out.DBInstances))
	for _, db := range out.DBInstances {
		resources = append(resources, provider.Resource{
			ID:     awssdk.ToString(db.DBInstanceIdentifier),
			Type:   provider.ResourceRDSInstance,
			Name:   awssdk.ToString(db.DBInstanceIdentifier),
			Region: p.region,
			State: map[string]any{
				"arn":                     awssdk.ToString(db.DBInstanceArn),
				"storage_encrypted":       awssdk.ToBool(db.StorageEncrypted),
				"publicly_accessible":     awssdk.ToBool(db.PubliclyAccessible),
				"backup_retention_period": awssdk.ToInt32(db.BackupRetentionPeriod),
			},
		})
	}
	return resources, nil
}

func (p *awsProvider) putPublicAccessBlock(ctx context.Context, bucket string, params map[string]any) (map[string]any, error) {
	cfg := &s3types.PublicAccessBlockConfiguration{
		BlockPublicAcls:       awssdk.Bool(boolParam(params, "block_public_acls")),
		IgnorePublicAcls:      awssdk.Bool(boolParam(params, "ignore_public_acls")),
		BlockPublicPolicy:     awssdk.Bool(boolParam(params, "block_public_policy")),
		RestrictPublicBuckets: awssdk.Bool(boolParam(params, "restrict_public_buckets")),
	}

	_, err := p.s3.PutPublicAccessBlock(ctx, &s3.PutPublicAccessBlockInput{
		Bucket:                         awssdk.String(bucket),
		PublicAccessBlockConfiguration: cfg,
	})
	if err != nil {
		return nil, p.wrap("PutPublicAccessBlock", err)
	}

	return map[string]any{"public_access_block": params}, nil
}

func (p *awsProvider) putBucketEncryption(ctx context.Context, bucket string) (map[string]any, error) {
	_, err := p.s3.PutBucketEncryption(ctx, &s3.PutBucketEncryptionInput{
		Bucket: awssdk.String(bucket),
		ServerSideEncryptionConfiguration: &s3types.ServerSideEncryptionConfiguration{
			Rules: []s3types.ServerSideEncryptionRule{
				{
					ApplyServerSideEncryptionByDefault: &s3types.ServerSideEncryptionByDefault{
						SSEAlgorithm: s3types.ServerSideEncryptionAes256,
					},
				},
			},
		},
	})
	if err != nil {
		return nil, p.wrap("PutBucketEncryption", err)
	}
	return map[string]any{"encryption_enabled": true}, nil
}

func (p *awsProvider) deleteBucketEncryption(ctx context.Context, bucket string) (map[string]any, error) {
	_, err := p.s3.DeleteBucketEncryption(ctx, &s3.DeleteBucketEncryptionInput{Bucket: awssdk.String(bucket)})
	if err != nil {
		return nil, p.wrap("DeleteBucketEncryption", err)
	}
	return map[string]any{"encryption_enabled": false}, nil
}

func (p *awsProvider) putBucketVersioning(ctx context.Context, bucket string, params map[string]any) (map[string]any, error) {
	status := s3types.BucketVersioningStatusSuspended
	if boolParam(params, "enabled") {
		status = s3types.BucketVersioningStatusEnabled
	}

	_, err := p.s3.PutBucketVersioning(ctx, &s3.PutBucketVersioningInput{
		Bucket:                  awssdk.String(bucket),
		VersioningConfiguration: &s3types.VersioningConfiguration{Status: status},
	})
	if err != nil {
		return nil, p.wrap("PutBucketVersioning", err)
	}
	return map[string]any{"versioning_enabled": boolParam(params, "enabled")}, nil
}

func (p *awsProvider) changeIngress(ctx context.Context, groupID string, params map[string]any, authorize bool) (map[string]any, error) {
	perm := ec2types.IpPermission{
		IpProtocol: awssdk.String(strParam(params, "protocol")),
		FromPort:   awssdk.Int32(intParam(params, "from_port")),
		ToPort:     awssdk.Int32(intParam(params, "to_port")),
		IpRanges:   []ec2types.IpRange{{CidrIp: awssdk.String(strParam(params, "cidr"))}},
	}

	var err error
	if authorize {
		_, err = p.ec2.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
			GroupId:       awssdk.String(groupID),
			IpPermissions: []ec2types.IpPermission{perm},
		})
	} else {
		_, err = p.ec2.RevokeSecurityGroupIngress(ctx, &ec2.RevokeSecurityGroupIngressInput{
			GroupId:       awssdk.String(groupID),
			IpPermissions: []ec2types.IpPermission{perm},
		})
	}

	op := "RevokeSecurityGroupIngress"
	if authorize {
		op = "AuthorizeSecurityGroupIngress"
	}
	if err != nil {
		return nil, p.wrap(op, err)
	}

	return map[string]any{
		"group_id":   groupID,
		"authorized": authorize,
		"rule":       params,
	}, nil
}

func instanceName(inst ec2types.Instance) string {
	for _, tag := range inst.Tags {
		if awssdk.ToString(tag.Key) == "Name" {
			return awssdk.ToString(tag.Value)
		}
	}
	return awssdk.ToString(inst.InstanceId)
}

func (p *awsProvider) wrap(op string, err error) error {
	return &domain.ProviderError{
		Provider: providerName,
		Code:     classify(err),
		Op:       op,
		Err:      err,
	}
}

func classify(err error) domain.ProviderErrorCode {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return domain.ProviderUnavailable
	}

	switch apiErr.ErrorCode() {
	case "AccessDenied", "AccessDeniedException", "UnauthorizedOperation", "AuthFailure", "InvalidClientTokenId", "ExpiredToken":
		return domain.ProviderAuth
	case "Throttling", "ThrottlingException", "RequestLimitExceeded", "SlowDown", "TooManyRequestsException":
		return domain.ProviderRateLimited
	case "NoSuchBucket", "NotFound", "ResourceNotFoundException", "InvalidInstanceID.NotFound", "InvalidVolume.NotFound", "InvalidGroup.NotFound", "DBInstanceNotFound", "DBInstanceNotFoundFault":
		return domain.ProviderNotFound
	default:
		return domain.ProviderUnavailable
	}
}

func isErrorCode(err error, code string) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == code
}

func errNotFound(rt, id string) error {
	return fmt.Errorf("%s %q: %w", rt, id, domain.ErrNotFound)
}

func boolParam(params map[string]any, key string) bool {
	v, ok := params[key].(bool)
	return ok && v
}

func strParam(params map[string]any, key string) string {
	v, _ := params[key].(string)
	return v
}

// intParam tolerates float64 values because rollback data round-trips
// through JSON in the stores.
func intParam(params map[string]any, key string) int32 {
	switch v := params[key].(type) {
	case int:
		return int32(v)
	case int32:
		return v
	case int64:
		return int32(v)
	case float64:
		return int32(v)
	default:
		return 0
	}
}
