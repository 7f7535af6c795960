package azure

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	armnetwork "github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/network/armnetwork/v6"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/storage/armstorage"

	"github.com/de-tools/cloud-sentry/pkg/models/domain"
	"github.com/de-tools/cloud-sentry/pkg/services/provider"
)

const providerName = "azure"

type azureProvider struct {
	subscriptionID string
	accounts       *armstorage.AccountsClient
	nsgs           *armnetwork.SecurityGroupsClient
}

// NewProvider builds an Azure resource provider for one subscription using
// the default credential chain (env, managed identity, CLI).
func NewProvider(_ context.Context, account domain.Account) (provider.Provider, error) {
	if account.SubscriptionID == "" {
		return nil, domain.NewValidationError("azure account %q has no subscription id", account.Name)
	}

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build azure credential: %w", err)
	}

	accounts, err := armstorage.NewAccountsClient(account.SubscriptionID, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage accounts client: %w", err)
	}
	nsgs, err := armnetwork.NewSecurityGroupsClient(account.SubscriptionID, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create network security groups client: %w", err)
	}

	return &azureProvider{
		subscriptionID: account.SubscriptionID,
		accounts:       accounts,
		nsgs:           nsgs,
	}, nil
}

func (p *azureProvider) Name() string { return providerName }

func (p *azureProvider) ListResources(ctx context.Context, rt provider.ResourceType) ([]provider.Resource, error) {
	switch rt {
	case provider.ResourceStorageAccount:
		return p.listStorageAccounts(ctx)
	case provider.ResourceNSG:
		return p.listSecurityGroups(ctx)
	default:
		return nil, domain.NewValidationError("azure provider does not support resource type %q", rt)
	}
}

func (p *azureProvider) DescribeResource(ctx context.Context, rt provider.ResourceType, id string) (provider.Resource, error) {
	resources, err := p.ListResources(ctx, rt)
	if err != nil {
		return provider.Resource{}, err
	}
	for _, r := range resources {
		if r.ID == id || r.Name == id {
			return r, nil
		}
	}
	return provider.Resource{}, &domain.ProviderError{
		Provider: providerName,
		Code:     domain.ProviderNotFound,
		Op:       "DescribeResource",
		Err:      fmt.Errorf("%s %q: %w", rt, id, domain.ErrNotFound),
	}
}

func (p *azureProvider) MutateResource(
	ctx context.Context,
	rt provider.ResourceType,
	id, operation string,
	params map[string]any,
) (map[string]any, error) {
	if rt != provider.ResourceStorageAccount || operation != "update_account" {
		return nil, domain.NewValidationError("azure provider does not support operation %q on %q", operation, rt)
	}

	rg, name, err := parseStorageAccountID(id)
	if err != nil {
		return nil, domain.NewValidationError("malformed storage account id %q", id)
	}

	props := &armstorage.AccountPropertiesUpdateParameters{}
	outcome := map[string]any{}
	if v, ok := params["https_only"].(bool); ok {
		props.EnableHTTPSTrafficOnly = to.Ptr(v)
		outcome["https_only"] = v
	}
	if v, ok := params["allow_blob_public_access"].(bool); ok {
		props.AllowBlobPublicAccess = to.Ptr(v)
		outcome["allow_blob_public_access"] = v
	}

	_, err = p.accounts.Update(ctx, rg, name, armstorage.AccountUpdateParameters{Properties: props}, nil)
	if err != nil {
		return nil, p.wrap("AccountsUpdate", err)
	}
	return outcome, nil
}

func (p *azureProvider) listStorageAccounts(ctx context.Context) ([]provider.Resource, error) {
	var resources []provider.Resource

	pager := p.accounts.NewListPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, p.wrap("AccountsList", err)
		}
		for _, acc := range page.Value {
			state := map[string]any{}
			if acc.Properties != nil {
				state["https_only"] = deref(acc.Properties.EnableHTTPSTrafficOnly)
				state["allow_blob_public_access"] = deref(acc.Properties.AllowBlobPublicAccess)
			}
			resources = append(resources, provider.Resource{
				ID:     deref(acc.ID),
				Type:   provider.ResourceStorageAccount,
				Name:   deref(acc.Name),
				Region: deref(acc.Location),
				State:  state,
			})
		}
	}
	return resources, nil
}

func (p *azureProvider) listSecurityGroups(ctx context.Context) ([]provider.Resource, error) {
	var resources []provider.Resource

	pager := p.nsgs.NewListAllPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, p.wrap("SecurityGroupsListAll", err)
		}
		for _, nsg := range page.Value {
			var open []any
			if nsg.Properties != nil {
				for _, rule := range nsg.Properties.SecurityRules {
					if rule.Properties == nil {
						continue
					}
					rp := rule.Properties
					if deref(rp.Direction) != armnetwork.SecurityRuleDirectionInbound ||
						deref(rp.Access) != armnetwork.SecurityRuleAccessAllow {
						continue
					}
					src := deref(rp.SourceAddressPrefix)
					if src != "*" && src != "0.0.0.0/0" && !strings.EqualFold(src, "Internet") {
						continue
					}
					open = append(open, map[string]any{
						"rule":       deref(rule.Name),
						"port_range": deref(rp.DestinationPortRange),
						"protocol":   string(deref(rp.Protocol)),
						"source":     src,
					})
				}
			}

			resources = append(resources, provider.Resource{
				ID:     deref(nsg.ID),
				Type:   provider.ResourceNSG,
				Name:   deref(nsg.Name),
				Region: deref(nsg.Location),
				State:  map[string]any{"open_ingress": open},
			})
		}
	}
	return resources, nil
}

// parseStorageAccountID extracts the resource group and account name from a
// fully qualified ARM resource id.
func parseStorageAccountID(id string) (rg, name string, err error) {
	parts := strings.Split(strings.Trim(id, "/"), "/")
	for i := 0; i < len(parts)-1; i++ {
		switch strings.ToLower(parts[i]) {
		case "resourcegroups":
			rg = parts[i+1]
		case "storageaccounts":
			name = parts[i+1]
		}
	}
	if rg == "" || name == "" {
		return "", "", fmt.Errorf("unparseable resource id: %s", id)
	}
	return rg, name, nil
}

func (p *azureProvider) wrap(op string, err error) error {
	return &domain.ProviderError{
		Provider: providerName,
		Code:     classify(err),
		Op:       op,
		Err:      err,
	}
}

func classify(err error) domain.ProviderErrorCode {
	var respErr *azcore.ResponseError
	if !errors.As(err, &respErr) {
		return domain.ProviderUnavailable
	}
	switch respErr.StatusCode {
	case 401, 403:
		return domain.ProviderAuth
	case 404:
		return domain.ProviderNotFound
	case 429:
		return domain.ProviderRateLimited
	default:
		return domain.ProviderUnavailable
	}
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
