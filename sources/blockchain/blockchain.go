// Package blockchain acquires the metadata of an Azure blockchain member: the member
// resource, its transaction nodes and the smart contracts recorded in Cosmos DB.
package blockchain

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/uoloki/microsoft-dataextract/config"
	"github.com/uoloki/microsoft-dataextract/domain"
	"github.com/uoloki/microsoft-dataextract/sources"
)

// Credentials required by the blockchain source.
var Required = []string{
	"AZURE_SUBSCRIPTION_ID",
	"AZURE_RESOURCE_GROUP_NAME",
	"AZURE_BLOCKCHAIN_MEMBER_NAME",
	"COSMOS_DB_ENDPOINT",
	"COSMOS_DB_KEY",
	"COSMOS_DB_DATABASE_NAME",
	"COSMOS_DB_CONTAINER_NAME",
}

// Resources retrieves blockchain resources from the resource manager.
type Resources interface {
	Member(ctx context.Context, name string) (sources.Record, error)
	Nodes(ctx context.Context, member string) ([]sources.Record, error)
}

// Contracts queries the contract documents of a blockchain member.
type Contracts interface {
	Query(ctx context.Context, query string, parameters map[string]any) ([]sources.Record, error)
}

type Blockchain struct {
	member    string
	filters   map[string]string
	resources Resources
	contracts Contracts
	log       *slog.Logger
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// NewWithClients creates a blockchain source over the given resource and contract clients.
func NewWithClients(member string, filters map[string]string, resources Resources, contracts Contracts, log *slog.Logger) (*Blockchain, error) {
	for name := range filters {
		if !identifier.MatchString(name) {
			return nil, domain.ErrConfiguration("%s: invalid contract filter name '%s'", config.Blockchain, name)
		}
	}

	return &Blockchain{
		member:    member,
		filters:   filters,
		resources: resources,
		contracts: contracts,
		log:       log.With("source", config.Blockchain),
	}, nil
}

func (b *Blockchain) Name() string {
	return config.Blockchain
}

func (b *Blockchain) Bindings() []sources.Binding {
	return []sources.Binding{
		{Sheet: "Member Metadata", Fetcher: b.suffixed("Member Metadata", b.Member)},
		{Sheet: "Nodes Metadata", Fetcher: b.suffixed("Nodes Metadata", b.Nodes)},
		{Sheet: "Contracts Metadata", Fetcher: b.suffixed("Contracts Metadata", b.Contracts)},
	}
}

func (b *Blockchain) Close() error {
	return nil
}

// Member returns the member resource as a single row.
func (b *Blockchain) Member(ctx context.Context) ([]sources.Record, error) {
	member, err := b.resources.Member(ctx, b.member)
	if err != nil {
		b.log.Error("member query failed", "member", b.member, "kind", domain.KindOf(err), "error", err)
		return nil, err
	}

	return []sources.Record{member}, nil
}

// Nodes returns the transaction nodes whose name contains the member name.
func (b *Blockchain) Nodes(ctx context.Context) ([]sources.Record, error) {
	nodes, err := b.resources.Nodes(ctx, b.member)
	if err != nil {
		b.log.Error("nodes query failed", "member", b.member, "kind", domain.KindOf(err), "error", err)
		return nil, err
	}

	b.log.Info("fetched", "dataset", "nodes", "records", len(nodes))

	return nodes, nil
}

// Contracts returns the contract documents of the member that match the configured filters.
func (b *Blockchain) Contracts(ctx context.Context) ([]sources.Record, error) {
	query, parameters := b.query()

	contracts, err := b.contracts.Query(ctx, query, parameters)
	if err != nil {
		b.log.Error("contracts query failed", "query", query, "kind", domain.KindOf(err), "error", err)
		return nil, err
	}

	b.log.Info("fetched", "dataset", "contracts", "records", len(contracts))

	return contracts, nil
}

func (b *Blockchain) query() (string, map[string]any) {
	var sb strings.Builder

	sb.WriteString("SELECT * FROM c WHERE c.blockchain_member = @blockchain_member")
	parameters := map[string]any{
		"@blockchain_member": b.member,
	}

	names := make([]string, 0, len(b.filters))
	for name := range b.filters {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		fmt.Fprintf(&sb, " AND c.%[1]s = @%[1]s", name)
		parameters["@"+name] = b.filters[name]
	}

	return sb.String(), parameters
}

// suffixed renames every column to <column>_<first word of the sheet name, lower case>.
func (b *Blockchain) suffixed(sheet string, f func(context.Context) ([]sources.Record, error)) sources.Fetcher {
	suffix := "_" + strings.ToLower(strings.Fields(sheet)[0])

	return sources.FetcherFunc(func(ctx context.Context) (*domain.Dataset, error) {
		records, err := f(ctx)
		if err != nil {
			return nil, err
		}

		data := sources.FromRecords(records)
		for i, column := range data.Columns {
			data.Columns[i] = column + suffix
		}

		return data, nil
	})
}
