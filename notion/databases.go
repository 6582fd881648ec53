package notion

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"go.opentelemetry.io/otel/attribute"

	"github.com/sweetpotato0/notion-agent/pkg/telemetry"
)

const untitledDatabase = "Untitled Database"

// DatabaseSummary identifies a database shared with the integration.
type DatabaseSummary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type searchResults struct {
	Results []struct {
		ID    string `json:"id"`
		Title []struct {
			PlainText string `json:"plain_text"`
		} `json:"title"`
	} `json:"results"`
}

// ListDatabases returns every database the integration can see, reduced to
// its ID and the plain text of the first title fragment.
func (c *Client) ListDatabases(ctx context.Context) (dbs []DatabaseSummary, err error) {
	if !c.Enabled() {
		return nil, ErrNotInitialized
	}
	ctx, span := c.start(ctx, "list_databases")
	defer func() { telemetry.End(span, err) }()

	body := Object{"filter": Object{"property": "object", "value": "database"}}
	var res searchResults
	if err := c.do(ctx, http.MethodPost, "/search", nil, body, &res); err != nil {
		return nil, c.fail("list_databases", err, "Failed to list databases.")
	}

	dbs = make([]DatabaseSummary, 0, len(res.Results))
	for _, r := range res.Results {
		title := untitledDatabase
		if len(r.Title) > 0 && r.Title[0].PlainText != "" {
			title = r.Title[0].PlainText
		}
		dbs = append(dbs, DatabaseSummary{ID: r.ID, Title: title})
	}
	return dbs, nil
}

// QueryDatabase queries a database. filter and sorts are Notion API filter and
// sort objects; they are left out of the request when empty.
func (c *Client) QueryDatabase(ctx context.Context, databaseID string, filter Object, sorts []any) (res Object, err error) {
	if !c.Enabled() {
		return nil, ErrNotInitialized
	}
	ctx, span := c.start(ctx, "query_database", attribute.String("notion.database_id", databaseID))
	defer func() { telemetry.End(span, err) }()

	body := Object{}
	if len(filter) > 0 {
		body["filter"] = filter
	}
	if len(sorts) > 0 {
		body["sorts"] = sorts
	}

	if err := c.do(ctx, http.MethodPost, "/databases/"+url.PathEscape(databaseID)+"/query", nil, body, &res); err != nil {
		return nil, c.fail("query_database", err, fmt.Sprintf("Failed to query database %s.", databaseID), "database_id", databaseID)
	}
	return res, nil
}

// RetrieveDatabase returns the database object, including its property schema.
func (c *Client) RetrieveDatabase(ctx context.Context, databaseID string) (res Object, err error) {
	if !c.Enabled() {
		return nil, ErrNotInitialized
	}
	ctx, span := c.start(ctx, "retrieve_database", attribute.String("notion.database_id", databaseID))
	defer func() { telemetry.End(span, err) }()

	if err := c.do(ctx, http.MethodGet, "/databases/"+url.PathEscape(databaseID), nil, nil, &res); err != nil {
		return nil, c.fail("retrieve_database", err, fmt.Sprintf("Failed to retrieve database %s.", databaseID), "database_id", databaseID)
	}
	return res, nil
}

// TitleProperty returns the name of the title property in a database schema.
func TitleProperty(database Object) (string, bool) {
	props, _ := database["properties"].(map[string]any)
	for name, raw := range props {
		prop, _ := raw.(map[string]any)
		if prop["type"] == "title" {
			return name, true
		}
	}
	return "", false
}
