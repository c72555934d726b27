// internal/provider/client_test.go
package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFetchPage(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		fmt.Fprint(w, `{"result":{"result_count":2,"total_count":40,"items":[
			{"content_id":"A-1","title":"first"},
			{"content_id":"A-2","title":"second"}
		]}}`)
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{
		Endpoint:    srv.URL,
		APIID:       "api-key",
		AffiliateID: "aff-id",
		Timeout:     5 * time.Second,
	})

	page, err := client.FetchPage(context.Background(), Query{Keyword: "kw"}, 1, 2)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}

	if len(page.Items) != 2 || page.TotalCount != 40 || page.ResultCount != 2 {
		t.Errorf("page = %+v", page)
	}
	if gotQuery["api_id"] != "api-key" || gotQuery["affiliate_id"] != "aff-id" {
		t.Errorf("credentials not sent: %v", gotQuery)
	}
	if gotQuery["site"] != "FANZA" || gotQuery["service"] != "digital" || gotQuery["floor"] != "videoa" {
		t.Errorf("default site/service/floor not applied: %v", gotQuery)
	}
	if gotQuery["offset"] != "1" || gotQuery["hits"] != "2" || gotQuery["sort"] != "date" {
		t.Errorf("pagination params: %v", gotQuery)
	}
	if gotQuery["keyword"] != "kw" {
		t.Errorf("optional keyword missing: %v", gotQuery)
	}
	if _, set := gotQuery["cid"]; set {
		t.Error("empty optional params must not be sent")
	}
}

func TestFetchPage_BookFloors(t *testing.T) {
	tests := []struct {
		name        string
		query       Query
		wantService string
		wantFloor   string
		wantErr     bool
	}{
		{"ebook defaults to comic", Query{Service: "ebook"}, "ebook", "comic", false},
		{"doujin", Query{Service: "doujin"}, "doujin", "digital_doujin", false},
		{"floor implies doujin", Query{Floor: "digital_doujin"}, "doujin", "digital_doujin", false},
		{"invalid pairing rejected", Query{Service: "digital", Floor: "comic"}, "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if got := r.URL.Query().Get("service"); got != tt.wantService {
					t.Errorf("service = %q, want %q", got, tt.wantService)
				}
				if got := r.URL.Query().Get("floor"); got != tt.wantFloor {
					t.Errorf("floor = %q, want %q", got, tt.wantFloor)
				}
				fmt.Fprint(w, `{"result":{"items":[]}}`)
			}))
			defer srv.Close()

			client := NewClient(ClientConfig{Endpoint: srv.URL, APIID: "a", AffiliateID: "b"})
			_, err := client.FetchPage(context.Background(), tt.query, 1, 10)
			if tt.wantErr && err == nil {
				t.Error("expected error for unsupported combination")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestFetchPage_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad credentials", http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{Endpoint: srv.URL, APIID: "a", AffiliateID: "b"})
	if _, err := client.FetchPage(context.Background(), Query{}, 1, 10); err == nil {
		t.Fatal("expected error on non-200 response")
	}
}

func TestFetchPage_SkipsMalformedItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":{"result_count":2,"total_count":2,"items":[
			"not an object",
			{"content_id":"OK-1"}
		]}}`)
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{Endpoint: srv.URL, APIID: "a", AffiliateID: "b"})
	page, err := client.FetchPage(context.Background(), Query{}, 1, 10)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if len(page.Items) != 1 {
		t.Errorf("items = %d, want malformed entry skipped", len(page.Items))
	}
}
