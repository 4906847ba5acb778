// Package graph acquires directory and collaboration metadata (users, groups, teams,
// SharePoint sites and files, channels and channel messages) from Microsoft Graph.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/uoloki/microsoft-dataextract/config"
	"github.com/uoloki/microsoft-dataextract/domain"
	"github.com/uoloki/microsoft-dataextract/sources"
)

const scope = "https://graph.microsoft.com/.default"

// Credentials required by the Graph source.
var Required = []string{"TENANT_ID", "CLIENT_ID", "CLIENT_SECRET"}

type Graph struct {
	client  *http.Client
	base    string
	depth   int
	limiter *rate.Limiter
	log     *slog.Logger

	teams    []sources.Record
	sites    []sources.Record
	channels map[string][]sources.Record
}

type page struct {
	Value    *[]sources.Record `json:"value"`
	NextLink string            `json:"@odata.nextLink"`
}

// New creates a Graph source that authenticates with the OAuth2 client credentials grant.
func New(ctx context.Context, cfg config.GraphConfig, credentials *config.Credentials, log *slog.Logger) (*Graph, error) {
	if err := credentials.Require(config.Graph, Required...); err != nil {
		return nil, err
	}

	authority := strings.TrimSuffix(cfg.Authority, "/")
	tenant := url.PathEscape(credentials.Get("TENANT_ID"))

	cc := clientcredentials.Config{
		ClientID:     credentials.Get("CLIENT_ID"),
		ClientSecret: credentials.Get("CLIENT_SECRET"),
		TokenURL:     fmt.Sprintf("%s/%s/oauth2/v2.0/token", authority, tenant),
		Scopes:       []string{scope},
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	return NewWithClient(cc.Client(ctx), cfg, log), nil
}

// NewWithClient creates a Graph source that sends requests with an already authorised client.
func NewWithClient(client *http.Client, cfg config.GraphConfig, log *slog.Logger) *Graph {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	base := cfg.Endpoint
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}

	return &Graph{
		client:   client,
		base:     base,
		depth:    cfg.FolderDepth,
		limiter:  rate.NewLimiter(limit, 1),
		log:      log.With("source", config.Graph),
		channels: map[string][]sources.Record{},
	}
}

func (g *Graph) Name() string {
	return config.Graph
}

func (g *Graph) Bindings() []sources.Binding {
	return []sources.Binding{
		{Sheet: "Users", Fetcher: g.endpoint("users")},
		{Sheet: "Groups", Fetcher: g.endpoint("groups")},
		{Sheet: "Teams", Fetcher: sources.FetcherFunc(g.Teams)},
		{Sheet: "Sites", Fetcher: sources.FetcherFunc(g.Sites)},
		{Sheet: "Files", Fetcher: sources.FetcherFunc(g.Files)},
		{Sheet: "Channels", Fetcher: sources.FetcherFunc(g.Channels)},
		{Sheet: "Messages", Fetcher: sources.FetcherFunc(g.Messages)},
	}
}

func (g *Graph) Close() error {
	g.teams = nil
	g.sites = nil
	g.channels = map[string][]sources.Record{}

	return nil
}

func (g *Graph) endpoint(path string) sources.Fetcher {
	return sources.FetcherFunc(func(ctx context.Context) (*domain.Dataset, error) {
		records, err := g.list(ctx, path)
		if err != nil {
			return nil, err
		}

		return sources.FromRecords(records), nil
	})
}

// Teams lists every team in the tenant.
func (g *Graph) Teams(ctx context.Context) (*domain.Dataset, error) {
	teams, err := g.listTeams(ctx)
	if err != nil {
		return nil, err
	}

	return sources.FromRecords(teams), nil
}

// Sites lists the subsites of the root SharePoint site.
func (g *Graph) Sites(ctx context.Context) (*domain.Dataset, error) {
	sites, err := g.listSites(ctx)
	if err != nil {
		return nil, err
	}

	return sources.FromRecords(sites), nil
}

// Files lists the document library items of every site, descending into folders to the
// configured folder depth.
func (g *Graph) Files(ctx context.Context) (*domain.Dataset, error) {
	sites, err := g.listSites(ctx)
	if err != nil {
		return nil, err
	}

	files := []sources.Record{}
	for _, site := range sites {
		id := site.Text("id")
		if id == "" {
			continue
		}

		items, err := g.listItems(ctx, id, "drive/root/children", g.depth)
		if err != nil {
			return nil, err
		}

		files = append(files, items...)
	}

	return sources.FromRecords(files), nil
}

// Channels lists the channels of every team.
func (g *Graph) Channels(ctx context.Context) (*domain.Dataset, error) {
	teams, err := g.listTeams(ctx)
	if err != nil {
		return nil, err
	}

	channels := []sources.Record{}
	for _, team := range teams {
		list, err := g.listChannels(ctx, team.Text("id"))
		if err != nil {
			return nil, err
		}

		channels = append(channels, list...)
	}

	return sources.FromRecords(channels), nil
}

// Messages lists the messages of every channel of every team.
func (g *Graph) Messages(ctx context.Context) (*domain.Dataset, error) {
	teams, err := g.listTeams(ctx)
	if err != nil {
		return nil, err
	}

	messages := []sources.Record{}
	for _, team := range teams {
		teamID := team.Text("id")

		channels, err := g.listChannels(ctx, teamID)
		if err != nil {
			return nil, err
		}

		for _, channel := range channels {
			path := fmt.Sprintf("teams/%s/channels/%s/messages", url.PathEscape(teamID), url.PathEscape(channel.Text("id")))

			list, err := g.list(ctx, path)
			if err != nil {
				return nil, err
			}

			messages = append(messages, list...)
		}
	}

	return sources.FromRecords(messages), nil
}

func (g *Graph) listTeams(ctx context.Context) ([]sources.Record, error) {
	if g.teams == nil {
		teams, err := g.list(ctx, "teams")
		if err != nil {
			return nil, err
		}

		g.teams = teams
	}

	return g.teams, nil
}

func (g *Graph) listSites(ctx context.Context) ([]sources.Record, error) {
	if g.sites == nil {
		sites, err := g.list(ctx, "sites/root/sites")
		if err != nil {
			return nil, err
		}

		g.sites = sites
	}

	return g.sites, nil
}

func (g *Graph) listChannels(ctx context.Context, team string) ([]sources.Record, error) {
	if team == "" {
		return nil, nil
	}

	if channels, ok := g.channels[team]; ok {
		return channels, nil
	}

	channels, err := g.list(ctx, fmt.Sprintf("teams/%s/channels", url.PathEscape(team)))
	if err != nil {
		return nil, err
	}

	g.channels[team] = channels

	return channels, nil
}

func (g *Graph) listItems(ctx context.Context, site, path string, depth int) ([]sources.Record, error) {
	items, err := g.list(ctx, fmt.Sprintf("sites/%s/%s", url.PathEscape(site), path))
	if err != nil {
		return nil, err
	}

	all := append([]sources.Record{}, items...)

	if depth > 0 {
		for _, item := range items {
			if folder, ok := item.Get("folder"); !ok || folder == nil {
				continue
			}

			children, err := g.listItems(ctx, site, fmt.Sprintf("drive/items/%s/children", url.PathEscape(item.Text("id"))), depth-1)
			if err != nil {
				return nil, err
			}

			all = append(all, children...)
		}
	}

	return all, nil
}

// list retrieves every page of a collection. A response that is not a collection is
// returned as a single record.
func (g *Graph) list(ctx context.Context, path string) ([]sources.Record, error) {
	records := []sources.Record{}
	next := g.base + path

	for next != "" {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		rq, err := http.NewRequestWithContext(ctx, http.MethodGet, next, nil)
		if err != nil {
			return nil, domain.ErrSourceQuery("invalid Graph request '%s' (%w)", next, err)
		}

		rq.Header.Set("Accept", "application/json")

		g.log.Debug("request", "url", next)

		var raw json.RawMessage
		if err := sources.DoJSON(g.client, rq, &raw); err != nil {
			g.log.Error("request failed", "url", next, "kind", domain.KindOf(err), "error", err)
			return nil, err
		}

		var p page
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, domain.ErrSourceQuery("invalid Graph response from '%s' (%w)", next, err)
		}

		if p.Value == nil {
			record, err := sources.DecodeRecord(raw)
			if err != nil {
				return nil, err
			}

			return append(records, record), nil
		}

		records = append(records, *p.Value...)
		next = p.NextLink
	}

	g.log.Info("fetched", "endpoint", path, "records", len(records))

	return records, nil
}
