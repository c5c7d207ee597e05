package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"

	"cloud.google.com/go/firestore"
	"firebase.google.com/go/messaging"
	"github.com/redis/go-redis/v9"

	"bookstoreBack/internal/config"
	"bookstoreBack/internal/handlers"
	"bookstoreBack/internal/queue"
	"bookstoreBack/internal/repositories"
	"bookstoreBack/internal/services"
)

type application struct {
	errorLog  *log.Logger
	infoLog   *log.Logger
	db        *sql.DB
	jwtSecret []byte

	queue     *queue.Queue
	wsManager *WebSocketManager

	entitlementRepo *repositories.EntitlementRepository
	deviceTokenRepo *repositories.DeviceTokenRepository
	historyRepo     *repositories.PaymentHistoryRepository

	receiptService     *services.ReceiptService
	entitlementService *services.EntitlementService
	coordinator        *services.CoordinatorService

	entitlementHandler *handlers.EntitlementHandler
	transactionHandler *handlers.TransactionHandler
}

// logPair adapts the two stdlib loggers to the coordinator's Logger.
type logPair struct {
	info *log.Logger
	err  *log.Logger
}

func (l logPair) Infof(format string, args ...interface{})  { l.info.Printf(format, args...) }
func (l logPair) Errorf(format string, args ...interface{}) { l.err.Printf(format, args...) }

// updateFanout tells every interested party that a user's entitlements
// changed: silent push for the user's other devices, websocket snapshot
// for connected clients.
type updateFanout struct {
	fcm          *services.SyncNotifierService
	ws           *WebSocketManager
	entitlements *services.EntitlementService
}

func (f *updateFanout) EntitlementsUpdated(ctx context.Context, userID int) {
	if f.fcm != nil {
		f.fcm.EntitlementsUpdated(ctx, userID)
	}
	if f.ws != nil {
		f.ws.PushEntitlements(userID, f.entitlements.Entitlements(ctx, userID))
	}
}

func initializeApp(db *sql.DB, rdb *redis.Client, fsClient *firestore.Client, fcmClient *messaging.Client, storeKey []byte, cfg config.Config, errorLog, infoLog *log.Logger) (*application, error) {
	// Repositories
	secureStore, err := repositories.NewSecureStoreRepository(rdb, storeKey, cfg.SecureStore.Namespace)
	if err != nil {
		return nil, err
	}
	var mirror repositories.CloudMirror
	if fsClient != nil {
		mirror = repositories.NewCloudMirrorRepository(fsClient, cfg.Firebase.MirrorCollection)
	}
	entitlementRepo := repositories.NewEntitlementRepository(secureStore, mirror, errorLog)
	deviceTokenRepo := &repositories.DeviceTokenRepository{DB: db}
	historyRepo := &repositories.PaymentHistoryRepository{DB: db}

	// Services
	notifier := &services.SyncNotifierService{Client: fcmClient, Tokens: deviceTokenRepo}
	receiptService := services.NewReceiptService(entitlementRepo, notifier, errorLog)
	verifier, err := services.NewReceiptVerifierService(services.ReceiptVerifierConfig{
		Endpoint: cfg.AppStore.VerificationURL,
	})
	if err != nil {
		return nil, err
	}
	entitlementService := &services.EntitlementService{Repo: entitlementRepo}

	wsManager := NewWebSocketManager()
	paymentQueue := queue.New(64)

	coordinator := &services.CoordinatorService{
		Queue:        paymentQueue,
		Receipts:     receiptService,
		Verifier:     verifier,
		Entitlements: entitlementService,
		Ledger:       historyRepo,
		Notifier: &updateFanout{
			fcm:          notifier,
			ws:           wsManager,
			entitlements: entitlementService,
		},
		Logger: logPair{info: infoLog, err: errorLog},
	}

	// Handlers
	entitlementHandler := &handlers.EntitlementHandler{
		Service: entitlementService,
		History: historyRepo,
	}
	transactionHandler := &handlers.TransactionHandler{
		Queue:    paymentQueue,
		Receipts: receiptService,
		Tokens:   deviceTokenRepo,
	}

	jwtSecret := []byte(os.Getenv("JWT_SECRET"))
	if len(jwtSecret) == 0 {
		errorLog.Println("JWT_SECRET is not set, all authenticated requests will fail")
	}

	return &application{
		errorLog:           errorLog,
		infoLog:            infoLog,
		db:                 db,
		jwtSecret:          jwtSecret,
		queue:              paymentQueue,
		wsManager:          wsManager,
		entitlementRepo:    entitlementRepo,
		deviceTokenRepo:    deviceTokenRepo,
		historyRepo:        historyRepo,
		receiptService:     receiptService,
		entitlementService: entitlementService,
		coordinator:        coordinator,
		entitlementHandler: entitlementHandler,
		transactionHandler: transactionHandler,
	}, nil
}

func openDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		log.Printf("Failed to open DB: %v", err)
		return nil, err
	}
	if err = db.Ping(); err != nil {
		log.Printf("Failed to ping DB: %v", err)
		return nil, err
	}
	db.SetMaxIdleConns(35)
	log.Println("Successfully connected to database")
	return db, nil
}

func addSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Cross-Origin-Embedder-Policy", "require-corp")
		w.Header().Set("Cross-Origin-Resource-Policy", "same-origin")
		next.ServeHTTP(w, r)
	})
}
