package handler

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/agentchat/internal/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// Deps — собранные обработчики для маршрутизатора.
type Deps struct {
	Rooms     *RoomHandler
	Messages  *MessageHandler
	Files     *FileHandler
	Reactions *ReactionHandler
	Pins      *PinHandler
	Threads   *ThreadHandler
	Cursors   *CursorHandler
	Bookmarks *BookmarkHandler
	Presence  *PresenceHandler
	Profiles  *ProfileHandler
	Webhooks  *WebhookHandler
	Stream    *StreamHandler
	System    *SystemHandler

	CORSAllowedOrigins []string
	// StaticDir непустой включает раздачу web-клиента с корня
	StaticDir string
}

func NewRouter(d Deps) http.Handler {
	origins := d.CORSAllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RecoverJSON)
	r.Use(middleware.RequestLog)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Admin-Key"},
		MaxAge:         300,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", d.System.Health)
		r.Get("/stats", d.System.Stats)
		r.Get("/limits", d.System.Limits)
		r.Get("/activity", d.System.Activity)
		r.Get("/search", d.Messages.Search)
		r.Get("/unread", d.Cursors.Summary)
		r.Get("/bookmarks", d.Bookmarks.List)

		r.Route("/rooms", func(r chi.Router) {
			r.Get("/", d.Rooms.List)
			r.Post("/", d.Rooms.Create)

			r.Route("/{room}", func(r chi.Router) {
				r.Get("/", d.Rooms.Get)
				r.Put("/", d.Rooms.Update)
				r.Delete("/", d.Rooms.Delete)
				r.Post("/archive", d.Rooms.Archive)
				r.Post("/unarchive", d.Rooms.Unarchive)
				r.Get("/participants", d.Rooms.Participants)

				r.Get("/messages", d.Messages.List)
				r.Post("/messages", d.Messages.Send)
				r.Route("/messages/{messageID}", func(r chi.Router) {
					r.Get("/", d.Messages.Get)
					r.Put("/", d.Messages.Edit)
					r.Delete("/", d.Messages.Delete)
					r.Get("/thread", d.Threads.Get)
					r.Post("/pin", d.Pins.Pin)
					r.Delete("/pin", d.Pins.Unpin)
					r.Get("/reactions", d.Reactions.List)
					r.Post("/reactions", d.Reactions.Toggle)
				})

				r.Get("/files", d.Files.List)
				r.Post("/files", d.Files.Upload)

				r.Get("/pins", d.Pins.List)
				r.Get("/reactions", d.Reactions.ListByRoom)

				r.Put("/read", d.Cursors.Advance)
				r.Get("/read", d.Cursors.Get)
				r.Get("/unread", d.Cursors.Unread)

				r.Put("/bookmark", d.Bookmarks.Add)
				r.Delete("/bookmark", d.Bookmarks.Remove)

				r.Get("/presence", d.Presence.List)
				r.Post("/typing", d.Presence.Signal)
				r.Get("/typing", d.Presence.Typing)

				r.Get("/stream", d.Stream.Stream)

				r.Route("/webhooks", func(r chi.Router) {
					r.Get("/", d.Webhooks.List)
					r.Post("/", d.Webhooks.Create)
					r.Delete("/{webhookID}", d.Webhooks.Delete)
				})
			})
		})

		r.Route("/messages/{messageID}", func(r chi.Router) {
			r.Get("/", d.Messages.Get)
			r.Put("/", d.Messages.Edit)
			r.Delete("/", d.Messages.Delete)
			r.Get("/thread", d.Threads.Get)
			r.Post("/pin", d.Pins.Pin)
			r.Delete("/pin", d.Pins.Unpin)
			r.Get("/reactions", d.Reactions.List)
			r.Post("/reactions", d.Reactions.Toggle)
		})

		r.Route("/files/{fileID}", func(r chi.Router) {
			r.Get("/", d.Files.Download)
			r.Delete("/", d.Files.Delete)
		})

		r.Route("/profiles", func(r chi.Router) {
			r.Get("/", d.Profiles.List)
			r.Put("/{name}", d.Profiles.Upsert)
			r.Get("/{name}", d.Profiles.Get)
			r.Delete("/{name}", d.Profiles.Delete)
		})
	})

	if d.StaticDir != "" {
		r.NotFound(spaHandler(d.StaticDir))
	}

	return r
}

// spaHandler отдаёт статику web-клиента, а неизвестные пути сводит на
// index.html, чтобы работал client-side routing.
func spaHandler(dir string) http.HandlerFunc {
	fs := http.FileServer(http.Dir(dir))
	return func(w http.ResponseWriter, r *http.Request) {
		path := filepath.Join(dir, filepath.Clean("/"+r.URL.Path))
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			http.ServeFile(w, r, filepath.Join(dir, "index.html"))
			return
		}
		fs.ServeHTTP(w, r)
	}
}
