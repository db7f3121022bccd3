package main

import (
	"log"
	"net/http"
	"time"

	"procurahub/db"
	"procurahub/db/migrations"
	"procurahub/internal/auth"
	"procurahub/internal/config"
	"procurahub/internal/docstore"
	"procurahub/internal/handlers"
	"procurahub/internal/notify"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	dbConn, err := sqlx.Connect("postgres", cfg.PostgresConn)
	if err != nil {
		log.Fatalf("Cannot connect to DB: %v", err)
	}
	defer dbConn.Close()

	migrations.Run(cfg.PostgresConn)

	store := db.NewStorage(dbConn)
	tokens := auth.NewTokenManager(cfg.JWTSecret, time.Duration(cfg.TokenTTLMinutes)*time.Minute)

	var notifier notify.Notifier
	if cfg.SMTPHost != "" {
		notifier = notify.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.EmailSender)
	} else {
		log.Print("SMTP_HOST is not set, emails go to the log")
		notifier = notify.LogNotifier{}
	}

	docs, err := docstore.NewStore(cfg.UploadDir)
	if err != nil {
		log.Fatalf("Cannot init upload dir: %v", err)
	}

	h := handlers.NewHandler(store, notifier, tokens, docs, handlers.Options{
		InvitationBatchSize: cfg.InvitationBatchSize,
		BaseCurrency:        cfg.BaseCurrency,
		CurrencyRates:       cfg.CurrencyRates,
		SetupToken:          cfg.JWTSecret,
	})

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/ping", h.PingHandler)
		r.Post("/login", h.LoginHandler)
		r.Post("/setup/initialize", h.InitializeHandler)
		r.Get("/setup/status", h.SetupStatusHandler)

		r.Group(func(r chi.Router) {
			r.Use(tokens.Middleware)

			// справочники
			r.Post("/users/new", h.CreateUserHandler)
			r.Post("/departments/new", h.CreateDepartmentHandler)
			r.Get("/departments", h.ListDepartmentsHandler)
			r.Put("/departments/{departmentID}/head", h.SetDepartmentHeadHandler)
			r.Post("/categories/new", h.CreateCategoryHandler)
			r.Get("/categories", h.ListCategoriesHandler)
			r.Post("/suppliers/new", h.CreateSupplierHandler)
			r.Get("/suppliers", h.ListSuppliersHandler)
			r.Get("/suppliers/{supplierID}", h.GetSupplierHandler)

			// заявки на закупку
			r.Post("/requests/new", h.CreateRequestHandler)
			r.Get("/requests", h.ListRequestsHandler)
			r.Get("/requests/my", h.ListMyRequestsHandler)
			r.Get("/requests/{requestID}", h.GetRequestHandler)
			r.Post("/requests/{requestID}/hod-approve", h.HODApproveHandler)
			r.Post("/requests/{requestID}/hod-reject", h.HODRejectHandler)
			r.Post("/requests/{requestID}/procurement-approve", h.ProcurementApproveHandler)
			r.Post("/requests/{requestID}/procurement-reject", h.ProcurementRejectHandler)

			// запросы котировок
			r.Post("/rfqs/new", h.CreateRFQHandler)
			r.Get("/rfqs", h.ListRFQsHandler)
			r.Get("/rfqs/{rfqID}", h.GetRFQHandler)
			r.Post("/rfqs/{rfqID}/approve", h.ApproveDraftRFQHandler)
			r.Post("/rfqs/{rfqID}/invite", h.InviteSuppliersHandler)
			r.Post("/rfqs/{rfqID}/documents", h.UploadRFQDocumentHandler)
			r.Get("/rfqs/{rfqID}/documents/{documentID}", h.DownloadRFQDocumentHandler)

			// котировки
			r.Post("/rfqs/{rfqID}/quotations", h.SubmitQuotationHandler)
			r.Get("/rfqs/{rfqID}/quotations", h.ListQuotationsForRFQHandler)
			r.Post("/rfqs/{rfqID}/quotations/{quotationID}/document", h.UploadQuotationDocumentHandler)
			r.Post("/rfqs/{rfqID}/quotations/{quotationID}/approve", h.ApproveQuotationHandler)
			r.Post("/rfqs/{rfqID}/quotations/{quotationID}/reject", h.RejectQuotationHandler)
			r.Post("/rfqs/{rfqID}/quotations/{quotationID}/deliver", h.MarkDeliveredHandler)

			// переписка с поставщиками
			r.Post("/messages", h.SendMessageHandler)
			r.Get("/messages/received", h.ListReceivedMessagesHandler)
			r.Get("/messages/sent", h.ListSentMessagesHandler)
			r.Get("/messages/conversation/{supplierID}", h.SupplierConversationHandler)
			r.Put("/messages/{messageID}/read", h.MarkMessageReadHandler)
		})
	})

	log.Printf("Starting server on %s", cfg.ServerAddress)
	log.Fatal(http.ListenAndServe(cfg.ServerAddress, r))
}
