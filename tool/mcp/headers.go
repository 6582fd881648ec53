package mcp

import (
	"encoding/json"
	"net/http"
)

// HeadersEnvKey is the environment variable the Notion MCP server reads its
// outbound API headers from.
const HeadersEnvKey = "OPENAPI_MCP_HEADERS"

type notionHeaders struct {
	Authorization string `json:"Authorization"`
	NotionVersion string `json:"Notion-Version"`
}

// HeadersJSON returns the JSON object placed in OPENAPI_MCP_HEADERS. An empty
// token still yields a bearer header; the server rejects it at call time.
func HeadersJSON(token, version string) string {
	data, _ := json.Marshal(notionHeaders{
		Authorization: "Bearer " + token,
		NotionVersion: version,
	})
	return string(data)
}

// HeadersEnv returns the KEY=value entry for the subprocess environment.
func HeadersEnv(token, version string) string {
	return HeadersEnvKey + "=" + HeadersJSON(token, version)
}

// headerTransport adds the same headers to streamable HTTP requests.
type headerTransport struct {
	base    http.RoundTripper
	token   string
	version string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}
	if t.version != "" {
		req.Header.Set("Notion-Version", t.version)
	}
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}
