package main

import (
	"net/http"

	"github.com/bmizerany/pat"
	"github.com/justinas/alice"
)

func (app *application) routes() http.Handler {
	standardMiddleware := alice.New(app.recoverPanic, app.logRequest, secureHeaders, makeResponseJSON)
	authMiddleware := standardMiddleware.Append(app.authenticate)

	mux := pat.New()

	// Payment queue intake
	mux.Post("/iap/apple/transactions", authMiddleware.ThenFunc(app.transactionHandler.NotifyTransactions))
	mux.Post("/iap/device_token", authMiddleware.ThenFunc(app.transactionHandler.RegisterDeviceToken))

	// Entitlements
	mux.Get("/entitlements", authMiddleware.ThenFunc(app.entitlementHandler.GetEntitlements))
	mux.Post("/entitlements/sync", authMiddleware.ThenFunc(app.entitlementHandler.SyncFromCloud))
	mux.Post("/books/redeem", authMiddleware.ThenFunc(app.entitlementHandler.RedeemBook))
	mux.Get("/payments/history", authMiddleware.ThenFunc(app.entitlementHandler.PaymentHistory))
	mux.Get("/payments/transactions/:id", authMiddleware.ThenFunc(app.entitlementHandler.TransactionStatus))

	// Live entitlement updates
	mux.Get("/ws", authMiddleware.ThenFunc(app.WebSocketHandler))

	return mux
}
