// Package purview acquires data catalog metadata (assets, classifications and lineage) from
// a Microsoft Purview account.
package purview

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"

	"github.com/uoloki/microsoft-dataextract/config"
	"github.com/uoloki/microsoft-dataextract/domain"
	"github.com/uoloki/microsoft-dataextract/sources"
)

const (
	scope      = "https://purview.azure.net/.default"
	apiVersion = "2022-03-01-preview"
	module     = "dataextract/purview"
	version    = "v1.0.0"
)

// Credentials required by the Purview source.
var Required = []string{"AZURE_TENANT_ID", "AZURE_CLIENT_ID", "AZURE_CLIENT_SECRET", "PURVIEW_ACCOUNT_NAME"}

type Purview struct {
	pipeline runtime.Pipeline
	endpoint string
	cfg      config.PurviewConfig
	log      *slog.Logger
	assets   []sources.Record
}

// New creates a Purview source authenticated with an Azure AD client secret.
func New(cfg config.PurviewConfig, credentials *config.Credentials, log *slog.Logger) (*Purview, error) {
	if err := credentials.Require(config.Purview, Required...); err != nil {
		return nil, err
	}

	credential, err := azidentity.NewClientSecretCredential(
		credentials.Get("AZURE_TENANT_ID"),
		credentials.Get("AZURE_CLIENT_ID"),
		credentials.Get("AZURE_CLIENT_SECRET"),
		nil)
	if err != nil {
		return nil, domain.ErrConfiguration("%s: invalid client secret credential (%w)", config.Purview, err)
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.purview.azure.com", url.PathEscape(credentials.Get("PURVIEW_ACCOUNT_NAME")))
	}

	return NewWithCredential(credential, endpoint, cfg, log, nil), nil
}

// NewWithCredential creates a Purview source for the account endpoint. Requests go through
// an Azure SDK pipeline that retries throttled and failed requests and authorises each one
// with a bearer token from credential. The endpoint must be https. A nil options uses the
// SDK defaults.
func NewWithCredential(credential azcore.TokenCredential, endpoint string, cfg config.PurviewConfig, log *slog.Logger, options *policy.ClientOptions) *Purview {
	authorise := runtime.NewBearerTokenPolicy(credential, []string{scope}, nil)

	return &Purview{
		pipeline: runtime.NewPipeline(module, version, runtime.PipelineOptions{
			PerRetry: []policy.Policy{authorise},
		}, options),
		endpoint: strings.TrimSuffix(endpoint, "/"),
		cfg:      cfg,
		log:      log.With("source", config.Purview),
	}
}

func (p *Purview) Name() string {
	return config.Purview
}

func (p *Purview) Bindings() []sources.Binding {
	return []sources.Binding{
		{Sheet: "Assets", Fetcher: sources.FetcherFunc(p.Assets)},
		{Sheet: "Classifications", Fetcher: sources.FetcherFunc(p.Classifications)},
		{Sheet: "Lineage", Fetcher: sources.FetcherFunc(p.Lineage)},
	}
}

func (p *Purview) Close() error {
	p.assets = nil
	return nil
}

// Assets searches the catalog, one page at a time, up to the configured maximum.
func (p *Purview) Assets(ctx context.Context) (*domain.Dataset, error) {
	assets, err := p.search(ctx)
	if err != nil {
		return nil, err
	}

	return sources.FromRecords(assets), nil
}

// Classifications lists the classification type definitions.
func (p *Purview) Classifications(ctx context.Context) (*domain.Dataset, error) {
	var reply struct {
		ClassificationDefs []sources.Record `json:"classificationDefs"`
	}

	if err := p.get(ctx, "/catalog/api/atlas/v2/types/typedefs", url.Values{"type": {"classification"}}, &reply); err != nil {
		return nil, err
	}

	p.log.Info("fetched", "dataset", "classifications", "records", len(reply.ClassificationDefs))

	return sources.FromRecords(reply.ClassificationDefs), nil
}

// Lineage lists the lineage relations of every asset, each tagged with the asset GUID.
func (p *Purview) Lineage(ctx context.Context) (*domain.Dataset, error) {
	assets, err := p.search(ctx)
	if err != nil {
		return nil, err
	}

	relations := []sources.Record{}
	for _, asset := range assets {
		guid := asset.Text("id")
		if guid == "" {
			continue
		}

		var reply struct {
			BaseEntityGUID string           `json:"baseEntityGuid"`
			Relations      []sources.Record `json:"relations"`
		}

		query := url.Values{
			"direction": {"BOTH"},
			"depth":     {fmt.Sprintf("%d", p.cfg.LineageDepth)},
		}

		if err := p.get(ctx, "/catalog/api/atlas/v2/lineage/"+url.PathEscape(guid), query, &reply); err != nil {
			return nil, err
		}

		base := reply.BaseEntityGUID
		if base == "" {
			base = guid
		}

		for _, relation := range reply.Relations {
			r := sources.NewRecord()
			r.Set("baseEntityGuid", base)
			for _, k := range relation.Keys {
				r.Set(k, relation.Values[k])
			}

			relations = append(relations, r)
		}
	}

	p.log.Info("fetched", "dataset", "lineage", "assets", len(assets), "records", len(relations))

	return sources.FromRecords(relations), nil
}

func (p *Purview) search(ctx context.Context) ([]sources.Record, error) {
	if p.assets != nil {
		return p.assets, nil
	}

	assets := []sources.Record{}
	limit := p.cfg.PageSize

	for offset := 0; p.cfg.MaxAssets <= 0 || offset < p.cfg.MaxAssets; offset += limit {
		if p.cfg.MaxAssets > 0 && offset+limit > p.cfg.MaxAssets {
			limit = p.cfg.MaxAssets - offset
		}

		query := map[string]any{
			"keywords": p.cfg.Keywords,
			"offset":   offset,
			"limit":    limit,
		}

		var reply struct {
			Count int              `json:"@search.count"`
			Value []sources.Record `json:"value"`
		}

		if err := p.post(ctx, "/catalog/api/search/query", query, &reply); err != nil {
			return nil, err
		}

		assets = append(assets, reply.Value...)

		if len(reply.Value) < limit || (reply.Count > 0 && offset+len(reply.Value) >= reply.Count) {
			break
		}
	}

	p.log.Info("fetched", "dataset", "assets", "records", len(assets))
	p.assets = assets

	return assets, nil
}

func (p *Purview) get(ctx context.Context, path string, query url.Values, reply any) error {
	query.Set("api-version", apiVersion)

	rq, err := runtime.NewRequest(ctx, http.MethodGet, p.endpoint+path+"?"+query.Encode())
	if err != nil {
		return domain.ErrSourceQuery("invalid Purview request '%s' (%w)", path, err)
	}

	return p.do(rq, reply)
}

func (p *Purview) post(ctx context.Context, path string, body any, reply any) error {
	u := p.endpoint + path + "?" + url.Values{"api-version": {apiVersion}}.Encode()

	rq, err := runtime.NewRequest(ctx, http.MethodPost, u)
	if err != nil {
		return domain.ErrSourceQuery("invalid Purview request '%s' (%w)", path, err)
	}

	if err := runtime.MarshalAsJSON(rq, body); err != nil {
		return domain.ErrSourceQuery("invalid Purview request '%s' (%w)", path, err)
	}

	return p.do(rq, reply)
}

func (p *Purview) do(rq *policy.Request, reply any) error {
	raw := rq.Raw()
	raw.Header.Set("Accept", "application/json")

	op := fmt.Sprintf("%s %s", raw.Method, raw.URL.Redacted())

	p.log.Debug("request", "method", raw.Method, "url", raw.URL.Path)

	response, err := p.pipeline.Do(rq)
	if err != nil {
		err = sources.TransportError(op, err)
	} else {
		err = sources.DecodeJSON(op, response, reply)
	}

	if err != nil {
		p.log.Error("request failed", "url", raw.URL.Path, "kind", domain.KindOf(err), "error", err)
		return err
	}

	return nil
}
