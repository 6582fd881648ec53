package mcp

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHeadersEnv(t *testing.T) {
	got := HeadersEnv("secret_abc", "2022-06-28")
	want := `OPENAPI_MCP_HEADERS={"Authorization":"Bearer secret_abc","Notion-Version":"2022-06-28"}`
	if got != want {
		t.Fatalf("HeadersEnv() = %s, want %s", got, want)
	}
}

func TestHeadersJSONEmptyToken(t *testing.T) {
	got := HeadersJSON("", "2022-06-28")
	if got != `{"Authorization":"Bearer ","Notion-Version":"2022-06-28"}` {
		t.Fatalf("unexpected headers %s", got)
	}
}

func TestHeaderTransport(t *testing.T) {
	var auth, version string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		version = r.Header.Get("Notion-Version")
	}))
	defer srv.Close()

	client := &http.Client{Transport: &headerTransport{token: "tok", version: "2022-06-28"}}
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	if auth != "Bearer tok" || version != "2022-06-28" {
		t.Fatalf("headers not forwarded: %q %q", auth, version)
	}
}
