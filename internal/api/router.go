package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
)

func NewRouter(apiHandler *APIHandler, allowedOrigins []string, log logrus.FieldLogger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: log, NoColor: true}))
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
		r.Post("/user/login", apiHandler.LoginHandler)
		r.Get("/user/verify", apiHandler.VerifyHandler)

		// User-authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(apiHandler.JWTAuthMiddleware)

			r.Get("/user/me", apiHandler.MeHandler)
			r.Get("/user/logout", apiHandler.LogoutHandler)

			r.Get("/character", apiHandler.ListCharactersHandler)
			r.Get("/character/chat", apiHandler.StartChatHandler)
			r.Post("/character/generate", apiHandler.GenerateCharacterHandler)
			r.Get("/character/{id}", apiHandler.GetCharacterHandler)

			r.Get("/chat", apiHandler.ListThreadsHandler)
			r.Get("/chat/history/{threadID}", apiHandler.HistoryHandler)
			r.Get("/chat/{threadID}", apiHandler.ChatSocketHandler)
			r.Delete("/thread/{threadID}", apiHandler.DeleteThreadHandler)

			// Admin routes
			r.Group(func(r chi.Router) {
				r.Use(AdminOnly)

				r.Get("/user", apiHandler.ListUsersHandler)
				r.Get("/user/{id}", apiHandler.GetUserHandler)
				r.Patch("/user/{id}", apiHandler.UpdateUserHandler)
				r.Delete("/user/{id}", apiHandler.DeleteUserHandler)

				r.Post("/character/add", apiHandler.AddCharacterHandler)
				r.Patch("/character/{id}", apiHandler.UpdateCharacterHandler)
				r.Delete("/character/{id}", apiHandler.DeleteCharacterHandler)
			})
		})
	})

	return r
}
