// internal/wordpress/client_test.go

package wordpress

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testClient(t *testing.T, handler http.Handler) (*Client, *[]time.Duration) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{
		BaseURL:      srv.URL,
		Username:     "publisher",
		AppPassword:  "xxxx xxxx xxxx xxxx",
		RetryBackoff: 1500 * time.Millisecond,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	var slept []time.Duration
	c.sleep = func(d time.Duration) { slept = append(slept, d) }
	return c, &slept
}

// fakeSite is an in-memory stand-in for the posts endpoint.
type fakeSite struct {
	nextID int
	posts  map[int]map[string]interface{}
}

func newFakeSite() *fakeSite {
	return &fakeSite{nextID: 10, posts: map[int]map[string]interface{}{}}
}

func (s *fakeSite) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/wp-json/wp/v2/posts", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			search := r.URL.Query().Get("search")
			var out []map[string]interface{}
			for id, p := range s.posts {
				meta := p["meta"].(map[string]interface{})
				if search == "" || strings.Contains(fmt.Sprint(p["title"]), search) ||
					meta["external_id"] == search {
					out = append(out, map[string]interface{}{"id": id, "meta": meta})
				}
			}
			json.NewEncoder(w).Encode(out)
		case http.MethodPost:
			var doc map[string]interface{}
			json.NewDecoder(r.Body).Decode(&doc)
			s.nextID++
			s.posts[s.nextID] = doc
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]interface{}{"id": s.nextID})
		}
	})
	mux.HandleFunc("/wp-json/wp/v2/posts/", func(w http.ResponseWriter, r *http.Request) {
		var id int
		fmt.Sscanf(r.URL.Path, "/wp-json/wp/v2/posts/%d", &id)
		if _, ok := s.posts[id]; !ok {
			http.NotFound(w, r)
			return
		}
		var doc map[string]interface{}
		json.NewDecoder(r.Body).Decode(&doc)
		s.posts[id] = doc
		json.NewEncoder(w).Encode(map[string]interface{}{"id": id})
	})
	return mux
}

func TestUpsertPostIsIdempotent(t *testing.T) {
	site := newFakeSite()
	c, _ := testClient(t, site.handler())
	ctx := context.Background()

	post := Post{
		ExternalID: "ABC-100",
		Title:      "サンプル作品",
		Content:    "<p>body</p>",
		Status:     "publish",
	}

	id1, created, err := c.UpsertPost(ctx, post)
	if err != nil {
		t.Fatal(err)
	}
	if !created || id1 == 0 {
		t.Fatalf("first upsert: id=%d created=%v", id1, created)
	}

	post.Content = "<p>updated body</p>"
	id2, created, err := c.UpsertPost(ctx, post)
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Error("second upsert created a duplicate")
	}
	if id2 != id1 {
		t.Errorf("second upsert id = %d, want %d", id2, id1)
	}
	if len(site.posts) != 1 {
		t.Errorf("site has %d posts, want 1", len(site.posts))
	}
	if got := site.posts[id1]["content"]; got != "<p>updated body</p>" {
		t.Errorf("content not updated: %v", got)
	}
}

func TestFindPostRequiresExactMetaMatch(t *testing.T) {
	// A search hit whose external_id meta differs must not be treated
	// as the same item.
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"id": 7, "meta": map[string]interface{}{"external_id": "ABC-1001"}},
		})
	})
	c, _ := testClient(t, handler)

	id, err := c.FindPostByExternalID(context.Background(), "ABC-100")
	if err != nil {
		t.Fatal(err)
	}
	if id != 0 {
		t.Errorf("fuzzy search hit accepted as match: id=%d", id)
	}
}

func TestRetryOnTransientStatus(t *testing.T) {
	var attempts int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode([]map[string]interface{}{})
	})
	c, slept := testClient(t, handler)

	if _, err := c.FindPostByExternalID(context.Background(), "ABC-100"); err != nil {
		t.Fatal(err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	want := []time.Duration{1500 * time.Millisecond, 3000 * time.Millisecond}
	if len(*slept) != len(want) || (*slept)[0] != want[0] || (*slept)[1] != want[1] {
		t.Errorf("backoff = %v, want %v", *slept, want)
	}
}

func TestNonTransientStatusFailsWithoutRetry(t *testing.T) {
	var attempts int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"code":"rest_cannot_create"}`)
	})
	c, slept := testClient(t, handler)

	_, _, err := c.UpsertPost(context.Background(), Post{ExternalID: "ABC-100", Status: "draft"})
	if err == nil {
		t.Fatal("expected error on 403")
	}
	if attempts != 1 { // the failing lookup is not retried
		t.Errorf("attempts = %d, want 1", attempts)
	}
	if len(*slept) != 0 {
		t.Errorf("unexpected backoff sleeps: %v", *slept)
	}
}

func TestGivesUpAfterMaxRetries(t *testing.T) {
	var attempts int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusTooManyRequests)
	})
	c, _ := testClient(t, handler)

	_, err := c.FindPostByExternalID(context.Background(), "ABC-100")
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if attempts != 5 {
		t.Errorf("attempts = %d, want 5", attempts)
	}
	if !strings.Contains(err.Error(), "giving up") {
		t.Errorf("err = %v", err)
	}
}

func TestEnsureTerms(t *testing.T) {
	created := map[string]int{"単体作品": 3}
	nextID := 50
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/tags") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		switch r.Method {
		case http.MethodGet:
			search := r.URL.Query().Get("search")
			var out []map[string]interface{}
			if id, ok := created[search]; ok {
				out = append(out, map[string]interface{}{"id": id, "name": search})
			}
			json.NewEncoder(w).Encode(out)
		case http.MethodPost:
			var doc map[string]string
			json.NewDecoder(r.Body).Decode(&doc)
			if doc["name"] == "レース" {
				// Simulate a search miss over an existing term.
				w.WriteHeader(http.StatusBadRequest)
				fmt.Fprint(w, `{"code":"term_exists","message":"exists","data":{"term_id":77}}`)
				return
			}
			nextID++
			created[doc["name"]] = nextID
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]interface{}{"id": nextID, "name": doc["name"]})
		}
	})
	c, _ := testClient(t, handler)

	ids, err := c.EnsureTerms(context.Background(), "post_tag",
		[]string{"単体作品", "ドラマ", "レース", "", "単体作品"})
	if err != nil {
		t.Fatal(err)
	}
	want := []int{3, 51, 77}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %d, want %d", i, ids[i], want[i])
		}
	}
}

func TestUploadImage(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/wp-json/wp/v2/media" {
			http.NotFound(w, r)
			return
		}
		if user, pass, ok := r.BasicAuth(); !ok || user != "publisher" || pass == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("multipart parse: %v", err)
		}
		f, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer f.Close()
		if header.Filename != "abc-100-poster-1a2b3c4d.jpg" {
			t.Errorf("filename = %s", header.Filename)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":         321,
			"source_url": "https://blog.example.com/wp-content/uploads/abc-100-poster-1a2b3c4d.jpg",
		})
	})
	c, _ := testClient(t, handler)

	id, dest, err := c.UploadImage(context.Background(),
		"abc-100-poster-1a2b3c4d.jpg", "image/jpeg", []byte("jpeg-bytes"))
	if err != nil {
		t.Fatal(err)
	}
	if id != 321 {
		t.Errorf("id = %d", id)
	}
	if !strings.HasSuffix(dest, "abc-100-poster-1a2b3c4d.jpg") {
		t.Errorf("dest = %s", dest)
	}
}

func TestUploadMediaFromURL(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/digital/video/abc00100/abc00100pl.jpg" {
			http.NotFound(w, r)
			return
		}
		if _, _, ok := r.BasicAuth(); ok {
			t.Error("download must not carry credentials")
		}
		w.Header().Set("Content-Type", "image/jpeg; charset=binary")
		w.Write([]byte("jpeg-bytes"))
	}))
	defer origin.Close()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/wp-json/wp/v2/media" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("multipart parse: %v", err)
		}
		_, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		if header.Filename != "abc00100pl.jpg" {
			t.Errorf("filename = %s, want source basename", header.Filename)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":         654,
			"source_url": "https://blog.example.com/wp-content/uploads/abc00100pl.jpg",
		})
	})
	c, _ := testClient(t, handler)

	id, dest, err := c.UploadMediaFromURL(context.Background(),
		origin.URL+"/digital/video/abc00100/abc00100pl.jpg")
	if err != nil {
		t.Fatal(err)
	}
	if id != 654 {
		t.Errorf("id = %d", id)
	}
	if !strings.HasSuffix(dest, "abc00100pl.jpg") {
		t.Errorf("dest = %s", dest)
	}
}

func TestResolveMediaID(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"id": 1, "source_url": "https://cdn.example.com/uploads/other.jpg"},
			{"id": 2, "source_url": "https://cdn.example.com/uploads/abc-100-s01-aabbccdd.jpg"},
		})
	})
	c, _ := testClient(t, handler)
	ctx := context.Background()

	// Exact source_url match.
	id, err := c.ResolveMediaID(ctx, "https://cdn.example.com/uploads/abc-100-s01-aabbccdd.jpg")
	if err != nil {
		t.Fatal(err)
	}
	if id != 2 {
		t.Errorf("exact match id = %d, want 2", id)
	}

	// Same basename under a rewritten host resolves by suffix.
	id, err = c.ResolveMediaID(ctx, "https://blog.example.com/wp-content/uploads/abc-100-s01-aabbccdd.jpg")
	if err != nil {
		t.Fatal(err)
	}
	if id != 2 {
		t.Errorf("suffix match id = %d, want 2", id)
	}

	// Unknown file resolves to 0 without error.
	id, err = c.ResolveMediaID(ctx, "https://blog.example.com/uploads/zzz.jpg")
	if err != nil {
		t.Fatal(err)
	}
	if id != 0 {
		t.Errorf("unknown id = %d, want 0", id)
	}
}

func TestNewClientValidatesBaseURL(t *testing.T) {
	for _, bad := range []string{"", "not a url", "/relative/only"} {
		if _, err := NewClient(Config{BaseURL: bad}, nil); err == nil {
			t.Errorf("NewClient(%q) accepted invalid base URL", bad)
		}
	}
}
