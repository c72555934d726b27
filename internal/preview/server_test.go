// internal/preview/server_test.go

package preview

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fanzapress/fanzapress/internal/content"
	"github.com/fanzapress/fanzapress/pkg/types"
)

func previewServer(t *testing.T) *httptest.Server {
	t.Helper()
	builder, err := content.NewBuilder(content.Options{})
	if err != nil {
		t.Fatal(err)
	}
	records := []*types.Record{
		{ExternalID: "ABC-100", Title: "作品A", Content: "<p>prebuilt body</p>"},
		{ExternalID: "DEF-200", Title: "作品B", PrimaryImage: "https://pics.example/def00200pl.jpg"},
	}
	srv := httptest.NewServer(NewServer(records, builder, nil).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, string(body)
}

func TestIndexListsItems(t *testing.T) {
	srv := previewServer(t)
	status, body := get(t, srv.URL+"/")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	for _, want := range []string{"ABC-100", "作品A", `href="/items/DEF-200"`} {
		if !strings.Contains(body, want) {
			t.Errorf("index missing %q", want)
		}
	}
}

func TestItemServesPrebuiltBody(t *testing.T) {
	srv := previewServer(t)
	status, body := get(t, srv.URL+"/items/ABC-100")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if !strings.Contains(body, "<p>prebuilt body</p>") {
		t.Errorf("body = %s", body)
	}
}

func TestItemBuildsBodyOnDemand(t *testing.T) {
	srv := previewServer(t)
	status, body := get(t, srv.URL+"/items/DEF-200")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if !strings.Contains(body, "def00200pl.jpg") {
		t.Errorf("generated body missing lead image: %s", body)
	}
}

func TestItemNotFound(t *testing.T) {
	srv := previewServer(t)
	status, _ := get(t, srv.URL+"/items/NOPE-1")
	if status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", status)
	}
}
