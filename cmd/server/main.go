package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/mintfolio/mintfolio-api/internal/config"
	"github.com/mintfolio/mintfolio-api/internal/handlers"
	"github.com/mintfolio/mintfolio-api/internal/services"
	"github.com/mintfolio/mintfolio-api/internal/store"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}

	db, err := store.NewDatabase(cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	marketService, err := services.NewMarketService(cfg.Market, db, log)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize market")
	}

	userRepo := store.NewUserRepository(db)
	walletService := services.NewWalletService()
	authService := services.NewAuthService(userRepo, walletService, cfg.Auth)

	hub := handlers.NewHub(log)
	marketService.SetNotifier(hub)
	go hub.Run()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Post("/auth/wallet", handlers.WalletLogin(authService))
		r.Get("/auth/challenge", handlers.AuthChallenge(walletService))

		r.Get("/market", handlers.GetMarketInfo(marketService))
		r.Get("/market/tokens", handlers.GetCatalogue(marketService))
		r.Get("/market/tokens/unsold", handlers.GetUnsoldTokens(marketService))
		r.Get("/market/tokens/owned", handlers.GetOwnedTokens(marketService))
		r.Get("/market/tokens/{id}/events", handlers.GetTokenEvents(marketService))
		r.Get("/market/events", handlers.GetEvents(marketService))

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(handlers.AuthMiddleware(authService))

			r.Post("/auth/link-wallet", handlers.LinkWallet(authService))
			r.Get("/me/tokens", handlers.GetMyTokens(marketService, authService))
			r.Get("/me/balance", handlers.GetBalance(marketService, authService))
			r.Post("/market/tokens/{id}/buy", handlers.BuyToken(marketService, authService))
			r.Post("/market/tokens/{id}/resell", handlers.ResellToken(marketService, authService))
			r.Put("/market/royalty-fee", handlers.UpdateRoyaltyFee(marketService, authService))
			r.Post("/faucet", handlers.Faucet(marketService, authService))
		})
	})

	r.Get("/ws", handlers.ServeWs(hub))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.WithField("addr", addr).Info("mintfolio api listening")
	if err := http.ListenAndServe(addr, r); err != nil {
		log.WithError(err).Error("server stopped")
		os.Exit(1)
	}
}
