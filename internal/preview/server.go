// internal/preview/server.go

// Package preview serves the records of a finished run on a local port
// so the generated bodies can be eyeballed before publishing.
package preview

import (
	"fmt"
	"html/template"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/fanzapress/fanzapress/internal/content"
	"github.com/fanzapress/fanzapress/internal/utils"
	"github.com/fanzapress/fanzapress/pkg/types"
)

var indexTemplate = template.Must(template.New("index").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>fanzapress preview</title></head>
<body>
<h1>Preview ({{len .}} items)</h1>
<ul>
{{range .}}<li><a href="/items/{{.ExternalID}}">{{.ExternalID}}</a> — {{.Title}}</li>
{{end}}</ul>
</body></html>
`))

// Server serves a read-only preview of a record set.
type Server struct {
	records []*types.Record
	byID    map[string]*types.Record
	builder *content.Builder
	logger  utils.Logger
}

// NewServer creates a Server. The builder renders items whose body is
// not already built; the logger may be nil.
func NewServer(records []*types.Record, builder *content.Builder, logger utils.Logger) *Server {
	if logger == nil {
		logger = utils.NopLogger{}
	}
	byID := make(map[string]*types.Record, len(records))
	for _, r := range records {
		byID[r.ExternalID] = r
	}
	return &Server{records: records, byID: byID, builder: builder, logger: logger}
}

// Handler returns the preview routes.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/items/{id}", s.handleItem).Methods(http.MethodGet)
	return r
}

// ListenAndServe blocks serving the preview on addr.
func (s *Server) ListenAndServe(addr string) error {
	s.logger.Infof("preview listening on http://%s/", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, s.records); err != nil {
		s.logger.Errorf("render index: %v", err)
	}
}

func (s *Server) handleItem(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, ok := s.byID[id]
	if !ok {
		http.NotFound(w, r)
		return
	}

	body := rec.Content
	if body == "" {
		built, err := s.builder.Build(rec)
		if err != nil {
			s.logger.Errorf("render %s: %v", id, err)
			http.Error(w, "render failed", http.StatusInternalServerError)
			return
		}
		body = built
	}
	page, err := s.builder.RenderPage(rec, body)
	if err != nil {
		s.logger.Errorf("render page %s: %v", id, err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, page)
}
