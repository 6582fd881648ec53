package notion

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/attribute"

	"github.com/sweetpotato0/notion-agent/pkg/telemetry"
)

// Search runs a workspace-wide search over pages and databases. sort and
// filter are Notion API objects, omitted when empty.
func (c *Client) Search(ctx context.Context, query string, sort, filter Object) (res Object, err error) {
	if !c.Enabled() {
		return nil, ErrNotInitialized
	}
	ctx, span := c.start(ctx, "search", attribute.String("notion.query", query))
	defer func() { telemetry.End(span, err) }()

	body := Object{"query": query}
	if len(sort) > 0 {
		body["sort"] = sort
	}
	if len(filter) > 0 {
		body["filter"] = filter
	}

	if err := c.do(ctx, http.MethodPost, "/search", nil, body, &res); err != nil {
		return nil, c.fail("search", err, fmt.Sprintf("Failed to perform quick search for '%s'.", query), "query", query)
	}
	return res, nil
}
