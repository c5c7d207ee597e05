package main

import (
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"

	"bookstoreBack/internal/models"
)

func testApp() *application {
	return &application{
		errorLog:  log.New(io.Discard, "", 0),
		infoLog:   log.New(io.Discard, "", 0),
		jwtSecret: []byte("test-secret"),
	}
}

func signedToken(t *testing.T, secret []byte, userID int) string {
	t.Helper()
	claims := &models.Claims{
		UserID: userID,
		Device: "iphone-12",
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: time.Now().Add(time.Hour).Unix(),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func TestAuthenticate(t *testing.T) {
	app := testApp()

	var gotUser int
	var gotDevice string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _ = r.Context().Value("user_id").(int)
		gotDevice, _ = r.Context().Value("device").(string)
	})

	r := httptest.NewRequest(http.MethodGet, "/entitlements", nil)
	r.Header.Set("Authorization", "Bearer "+signedToken(t, app.jwtSecret, 7))
	w := httptest.NewRecorder()
	app.authenticate(next).ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d want 200, body=%s", w.Code, w.Body.String())
	}
	if gotUser != 7 || gotDevice != "iphone-12" {
		t.Errorf("context: user=%d device=%q", gotUser, gotDevice)
	}
}

func TestAuthenticate_Rejects(t *testing.T) {
	app := testApp()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("next handler must not run")
	})

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic abc"},
		{"garbage token", "Bearer not-a-jwt"},
		{"foreign secret", "Bearer " + signedToken(t, []byte("other-secret"), 7)},
		{"zero user id", "Bearer " + signedToken(t, []byte("test-secret"), 0)},
	}
	for _, c := range cases {
		r := httptest.NewRequest(http.MethodGet, "/entitlements", nil)
		if c.header != "" {
			r.Header.Set("Authorization", c.header)
		}
		w := httptest.NewRecorder()
		app.authenticate(next).ServeHTTP(w, r)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s: status got %d want 401", c.name, w.Code)
		}
	}
}
