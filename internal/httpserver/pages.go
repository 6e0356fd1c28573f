package httpserver

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/channelkit/roomrelay/internal/rooms"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// registerPages serves the browser UI: a landing page that suggests a fresh
// channel slug, and the per-channel call page with the embedded signaling
// client.
func (s *Server) registerPages() {
	s.mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		s.renderPage(w, "index.html", map[string]any{
			"SuggestedChannel": rooms.NewSlug(),
		})
	})

	s.mux.HandleFunc("GET /channels/{name}", func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		if name == "" {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		s.renderPage(w, "channel.html", map[string]any{
			"ChannelName": name,
		})
	})
}

func (s *Server) renderPage(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplates.ExecuteTemplate(w, name, data); err != nil {
		s.log.Error("render page failed", "template", name, "err", err)
	}
}
