package main

import (
	"context"
	"encoding/base64"
	"flag"
	"log"
	"net/http"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go"
	"firebase.google.com/go/messaging"
	_ "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"google.golang.org/api/option"

	"bookstoreBack/internal/config"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Printf("Warning: Error loading .env file: %v", err)
	}
	cfg := config.LoadConfig()

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.Server.Address
	} else {
		port = ":" + port
	}

	addr := flag.String("addr", port, "HTTP network address")
	flag.Parse()

	infoLog := log.New(os.Stdout, "INFO\t", log.Ldate|log.Ltime)
	errorLog := log.New(os.Stderr, "ERROR\t", log.Ldate|log.Ltime|log.Lshortfile)

	db, err := openDB(cfg.Database.URL)
	if err != nil {
		errorLog.Fatal(err)
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	storeKey, err := base64.StdEncoding.DecodeString(os.Getenv("SECURE_STORE_KEY"))
	if err != nil || len(storeKey) == 0 {
		errorLog.Fatal("SECURE_STORE_KEY must be set to a base64-encoded 32-byte key")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var fsClient *firestore.Client
	var fcmClient *messaging.Client
	if cfg.Firebase.CredentialsFile != "" {
		fbApp, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(cfg.Firebase.CredentialsFile))
		if err != nil {
			errorLog.Printf("firebase init failed, mirror and push disabled: %v", err)
		} else {
			if fsClient, err = fbApp.Firestore(ctx); err != nil {
				errorLog.Printf("firestore init failed, mirror disabled: %v", err)
			}
			if fcmClient, err = fbApp.Messaging(ctx); err != nil {
				errorLog.Printf("messaging init failed, push disabled: %v", err)
			}
		}
	}
	if fsClient != nil {
		defer fsClient.Close()
	}

	app, err := initializeApp(db, rdb, fsClient, fcmClient, storeKey, cfg, errorLog, infoLog)
	if err != nil {
		errorLog.Fatal(err)
	}

	go app.wsManager.Run()
	go app.coordinator.Run(ctx)

	startMirrorReconciler(ctx, app.entitlementService, app.deviceTokenRepo,
		time.Duration(cfg.Mirror.ReconcileIntervalMinutes)*time.Minute, infoLog, errorLog)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowCredentials: true,
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
	})

	srv := &http.Server{
		Addr:         *addr,
		ErrorLog:     errorLog,
		Handler:      addSecurityHeaders(c.Handler(app.routes())),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	infoLog.Printf("Starting server on %s", *addr)
	if err := srv.ListenAndServe(); err != nil {
		errorLog.Fatal(err)
	}
}
