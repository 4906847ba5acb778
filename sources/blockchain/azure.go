package blockchain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"

	"github.com/uoloki/microsoft-dataextract/config"
	"github.com/uoloki/microsoft-dataextract/domain"
	"github.com/uoloki/microsoft-dataextract/sources"
)

const memberAPIVersion = "2018-06-01-preview"

// New creates a blockchain source that uses the default Azure credential chain for the
// resource manager and the Cosmos DB account key for contracts.
func New(cfg config.BlockchainConfig, credentials *config.Credentials, log *slog.Logger) (*Blockchain, error) {
	if err := credentials.Require(config.Blockchain, Required...); err != nil {
		return nil, err
	}

	credential, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, domain.ErrConfiguration("%s: unable to create Azure credential (%w)", config.Blockchain, err)
	}

	client, err := armresources.NewClient(credentials.Get("AZURE_SUBSCRIPTION_ID"), credential, nil)
	if err != nil {
		return nil, domain.ErrConfiguration("%s: unable to create resource manager client (%w)", config.Blockchain, err)
	}

	key, err := azcosmos.NewKeyCredential(credentials.Get("COSMOS_DB_KEY"))
	if err != nil {
		return nil, domain.ErrConfiguration("%s: invalid Cosmos DB key (%w)", config.Blockchain, err)
	}

	cosmos, err := azcosmos.NewClientWithKey(credentials.Get("COSMOS_DB_ENDPOINT"), key, nil)
	if err != nil {
		return nil, domain.ErrConfiguration("%s: unable to create Cosmos DB client (%w)", config.Blockchain, err)
	}

	container, err := cosmos.NewContainer(credentials.Get("COSMOS_DB_DATABASE_NAME"), credentials.Get("COSMOS_DB_CONTAINER_NAME"))
	if err != nil {
		return nil, domain.ErrConfiguration("%s: invalid Cosmos DB container (%w)", config.Blockchain, err)
	}

	resources := armResources{
		client:       client,
		subscription: credentials.Get("AZURE_SUBSCRIPTION_ID"),
		group:        credentials.Get("AZURE_RESOURCE_GROUP_NAME"),
	}

	contracts := cosmosContracts{
		container: container,
	}

	return NewWithClients(credentials.Get("AZURE_BLOCKCHAIN_MEMBER_NAME"), cfg.Filters, &resources, &contracts, log)
}

type armResources struct {
	client       *armresources.Client
	subscription string
	group        string
}

func (r *armResources) Member(ctx context.Context, name string) (sources.Record, error) {
	id := fmt.Sprintf("/subscriptions/%s/resourceGroups/%s/providers/Microsoft.Blockchain/blockchainMembers/%s", r.subscription, r.group, name)

	response, err := r.client.GetByID(ctx, id, memberAPIVersion, nil)
	if err != nil {
		return sources.Record{}, classify("get blockchain member "+name, err)
	}

	return record(response.GenericResource)
}

func (r *armResources) Nodes(ctx context.Context, member string) ([]sources.Record, error) {
	filter := fmt.Sprintf("resourceType eq 'Microsoft.Blockchain/blockchainNodes' and substringof('%s', name)", strings.ReplaceAll(member, "'", "''"))
	pager := r.client.NewListByResourceGroupPager(r.group, &armresources.ClientListByResourceGroupOptions{
		Filter: to.Ptr(filter),
	})

	nodes := []sources.Record{}
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, classify("list blockchain nodes", err)
		}

		for _, resource := range page.Value {
			node, err := record(resource)
			if err != nil {
				return nil, err
			}

			nodes = append(nodes, node)
		}
	}

	return nodes, nil
}

type cosmosContracts struct {
	container *azcosmos.ContainerClient
}

func (c *cosmosContracts) Query(ctx context.Context, query string, parameters map[string]any) ([]sources.Record, error) {
	names := make([]string, 0, len(parameters))
	for name := range parameters {
		names = append(names, name)
	}

	sort.Strings(names)

	options := azcosmos.QueryOptions{}
	for _, name := range names {
		options.QueryParameters = append(options.QueryParameters, azcosmos.QueryParameter{Name: name, Value: parameters[name]})
	}

	pager := c.container.NewQueryItemsPager(query, azcosmos.NewPartitionKey(), &options)

	contracts := []sources.Record{}
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, classify("query contracts", err)
		}

		for _, item := range page.Items {
			contract, err := sources.DecodeRecord(item)
			if err != nil {
				return nil, err
			}

			contracts = append(contracts, contract)
		}
	}

	return contracts, nil
}

func record(v any) (sources.Record, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return sources.Record{}, domain.ErrSourceQuery("unable to serialize resource (%w)", err)
	}

	return sources.DecodeRecord(b)
}

// classify maps an Azure SDK error to SourceUnavailable or SourceQueryError using the HTTP
// status of the failed response. Errors without a response (credential, network) are
// SourceUnavailable.
func classify(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	var re *azcore.ResponseError
	if errors.As(err, &re) {
		if sources.Classify(re.StatusCode) == domain.SourceQueryError {
			return domain.ErrSourceQuery("%s: %s (%w)", op, re.ErrorCode, err)
		}

		return domain.ErrSourceUnavailable("%s: %s (%w)", op, re.ErrorCode, err)
	}

	return domain.ErrSourceUnavailable("%s (%w)", op, err)
}
