package notion

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"go.opentelemetry.io/otel/attribute"

	"github.com/sweetpotato0/notion-agent/pkg/telemetry"
)

// PageContent holds every block child of a page, in order.
type PageContent struct {
	PageID string   `json:"page_id"`
	Blocks []Object `json:"blocks"`
}

type blockList struct {
	Results    []Object `json:"results"`
	HasMore    bool     `json:"has_more"`
	NextCursor *string  `json:"next_cursor"`
}

// GetPageContent retrieves all block children of a page, following
// next_cursor while the API reports has_more.
func (c *Client) GetPageContent(ctx context.Context, pageID string) (content *PageContent, err error) {
	if !c.Enabled() {
		return nil, ErrNotInitialized
	}
	ctx, span := c.start(ctx, "get_page_content", attribute.String("notion.page_id", pageID))
	defer func() { telemetry.End(span, err) }()

	content = &PageContent{PageID: pageID, Blocks: []Object{}}
	cursor := ""
	pages := 0
	for {
		query := url.Values{"page_size": {strconv.Itoa(blockPageSize)}}
		if cursor != "" {
			query.Set("start_cursor", cursor)
		}
		var page blockList
		if err := c.do(ctx, http.MethodGet, "/blocks/"+url.PathEscape(pageID)+"/children", query, nil, &page); err != nil {
			return nil, c.fail("get_page_content", err, fmt.Sprintf("Failed to retrieve content for page %s.", pageID), "page_id", pageID)
		}
		pages++
		content.Blocks = append(content.Blocks, page.Results...)
		if !page.HasMore || page.NextCursor == nil || *page.NextCursor == "" {
			break
		}
		cursor = *page.NextCursor
	}
	span.SetAttributes(attribute.Int("notion.block_pages", pages), attribute.Int("notion.blocks", len(content.Blocks)))
	return content, nil
}

// CreatePageParams describes a new page. Exactly one parent is used: the
// database when ParentDatabaseID is set, otherwise ParentPageID.
type CreatePageParams struct {
	ParentDatabaseID string
	ParentPageID     string
	Properties       Object
	Children         []any
}

func (p CreatePageParams) parent() (Object, bool) {
	switch {
	case p.ParentDatabaseID != "":
		return Object{"database_id": p.ParentDatabaseID}, true
	case p.ParentPageID != "":
		return Object{"page_id": p.ParentPageID}, true
	default:
		return nil, false
	}
}

// CreatePage creates a database entry or a sub-page.
func (c *Client) CreatePage(ctx context.Context, params CreatePageParams) (page Object, err error) {
	if !c.Enabled() {
		return nil, ErrNotInitialized
	}
	parent, ok := params.parent()
	if !ok {
		return nil, invalidInput(msgMissingParent)
	}
	ctx, span := c.start(ctx, "create_page")
	defer func() { telemetry.End(span, err) }()

	body := Object{"parent": parent}
	if len(params.Properties) > 0 {
		body["properties"] = params.Properties
	}
	if len(params.Children) > 0 {
		body["children"] = params.Children
	}

	if err := c.do(ctx, http.MethodPost, "/pages", nil, body, &page); err != nil {
		parentJSON, _ := json.Marshal(parent)
		return nil, c.fail("create_page", err, fmt.Sprintf("Failed to create page with parent %s.", parentJSON))
	}
	return page, nil
}

// UpdatePageParams lists the changes to apply to a page. Nil fields are left
// untouched. Children are appended after the existing content.
type UpdatePageParams struct {
	Properties Object
	Children   []any
	Archived   *bool
}

// UpdatePage updates page properties and archive state, and appends
// children. When params carries no change the returned object holds a
// warning and no request is made. When properties or the archive state
// change the updated page is returned, otherwise the append response.
func (c *Client) UpdatePage(ctx context.Context, pageID string, params UpdatePageParams) (res Object, err error) {
	if !c.Enabled() {
		return nil, ErrNotInitialized
	}
	patchPage := len(params.Properties) > 0 || params.Archived != nil
	if !patchPage && len(params.Children) == 0 {
		return Object{"warning": "No properties, children or archive status provided to update.", "page_id": pageID}, nil
	}

	ctx, span := c.start(ctx, "update_page", attribute.String("notion.page_id", pageID))
	defer func() { telemetry.End(span, err) }()

	if patchPage {
		body := Object{}
		if len(params.Properties) > 0 {
			body["properties"] = params.Properties
		}
		if params.Archived != nil {
			body["archived"] = *params.Archived
		}
		if err := c.do(ctx, http.MethodPatch, "/pages/"+url.PathEscape(pageID), nil, body, &res); err != nil {
			return nil, c.fail("update_page", err, fmt.Sprintf("Failed to update page %s.", pageID), "page_id", pageID)
		}
	}

	if len(params.Children) > 0 {
		appended, err := c.appendChildren(ctx, pageID, params.Children)
		if err != nil {
			return nil, c.fail("update_page", err, fmt.Sprintf("Failed to append content to page %s.", pageID), "page_id", pageID)
		}
		if res == nil {
			res = appended
		}
	}
	return res, nil
}

// AppendBlockChildren appends blocks to a page or block.
func (c *Client) AppendBlockChildren(ctx context.Context, blockID string, children []any) (res Object, err error) {
	if !c.Enabled() {
		return nil, ErrNotInitialized
	}
	if len(children) == 0 {
		return nil, invalidInput("children must not be empty.")
	}
	ctx, span := c.start(ctx, "append_block_children", attribute.String("notion.block_id", blockID))
	defer func() { telemetry.End(span, err) }()

	res, err = c.appendChildren(ctx, blockID, children)
	if err != nil {
		return nil, c.fail("append_block_children", err, fmt.Sprintf("Failed to append children to block %s.", blockID), "block_id", blockID)
	}
	return res, nil
}

func (c *Client) appendChildren(ctx context.Context, blockID string, children []any) (Object, error) {
	var res Object
	body := Object{"children": children}
	if err := c.do(ctx, http.MethodPatch, "/blocks/"+url.PathEscape(blockID)+"/children", nil, body, &res); err != nil {
		return nil, err
	}
	return res, nil
}
