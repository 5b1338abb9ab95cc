// Package testutil holds the shared fixtures for package tests: an isolated
// in-memory database per test, a miniredis instance, JSON request helpers and
// admin token minting.
package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/SlpAus/sparkle-wheel-backend/internal/platform/config"
	"github.com/SlpAus/sparkle-wheel-backend/internal/platform/database"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const JWTSecret = "test-jwt-secret"

var dbSeq atomic.Int64

func init() {
	gin.SetMode(gin.TestMode)
}

// NewDB opens a private in-memory SQLite database and migrates models into it.
func NewDB(t testing.TB, models ...any) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_busy_timeout=5000", name, dbSeq.Add(1))
	db, err := database.Open(config.DatabaseConfig{Driver: "sqlite", DSN: dsn})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if len(models) > 0 {
		if err := db.AutoMigrate(models...); err != nil {
			t.Fatalf("migrate test db: %v", err)
		}
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// NewRedis starts a miniredis server and returns a client bound to it.
func NewRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

// MakeRequest sends a request through handler. body is JSON-encoded unless it is nil.
func MakeRequest(t testing.TB, handler http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

// AssertStatus fails the test when the recorded status differs.
func AssertStatus(t testing.TB, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("status = %d, want %d; body: %s", rr.Code, want, rr.Body.String())
	}
}

// DecodeJSON unmarshals the recorded body into v.
func DecodeJSON(t testing.TB, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
}

// ErrorMessage returns the "error" field of a JSON error response.
func ErrorMessage(t testing.TB, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	DecodeJSON(t, rr, &body)
	return body.Error
}

// Token signs an HS256 access token for userID with JWTSecret.
func Token(t testing.TB, userID string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(JWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

// Bearer returns an Authorization header map for userID.
func Bearer(t testing.TB, userID string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + Token(t, userID)}
}

// Clock is a settable time source for services that take a now func.
type Clock struct {
	now atomic.Int64
}

func NewClock(start time.Time) *Clock {
	c := &Clock{}
	c.Set(start)
	return c
}

func (c *Clock) Now() time.Time          { return time.Unix(0, c.now.Load()).UTC() }
func (c *Clock) Set(t time.Time)         { c.now.Store(t.UnixNano()) }
func (c *Clock) Advance(d time.Duration) { c.now.Add(int64(d)) }
