package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/SlpAus/sparkle-wheel-backend/internal/admin"
	"github.com/SlpAus/sparkle-wheel-backend/internal/event"
	"github.com/SlpAus/sparkle-wheel-backend/internal/lead"
	"github.com/SlpAus/sparkle-wheel-backend/internal/platform/config"
	"github.com/SlpAus/sparkle-wheel-backend/internal/platform/health"
	"github.com/SlpAus/sparkle-wheel-backend/internal/platform/startup"
	"github.com/SlpAus/sparkle-wheel-backend/internal/spin"
	"github.com/SlpAus/sparkle-wheel-backend/internal/testutil"
	"github.com/SlpAus/sparkle-wheel-backend/internal/wheel"
	"github.com/gin-gonic/gin"
)

func newServer(t *testing.T) *gin.Engine {
	t.Helper()
	db := testutil.NewDB(t)
	_, rdb := testutil.NewRedis(t)
	auth := config.AuthConfig{JWTSecret: testutil.JWTSecret, AdminUserIDs: []string{"admin-1"}}
	if err := startup.InitializeApplication(context.Background(), db, auth); err != nil {
		t.Fatal(err)
	}

	bus := event.NewBus(rdb, nil)
	repo, err := lead.NewRepository(db)
	if err != nil {
		t.Fatal(err)
	}
	leads, err := lead.NewService(repo, lead.Options{
		Limiter: lead.NewSubmitLimiter(rdb, 20, time.Hour, nil),
		Events:  bus,
	})
	if err != nil {
		t.Fatal(err)
	}
	wheels := wheel.NewService(db)
	spins := spin.NewService(db, repo, spin.Options{Events: bus})

	r := gin.New()
	SetupRoutes(r, Deps{
		Wheels: wheels,
		Auth:   admin.NewAuthenticator(db, auth),
		Health: health.NewChecker(db, rdb),
		Wheel:  wheel.NewHandler(wheels),
		Leads:  lead.NewHandler(leads),
		Spins:  spin.NewHandler(spins),
		Events: event.NewHandler(bus, 0),
	})
	return r
}

func TestEndToEndSpin(t *testing.T) {
	r := newServer(t)
	adminHeaders := testutil.Bearer(t, "admin-1")

	rr := testutil.MakeRequest(t, r, http.MethodPost, "/api/admin/wheels", gin.H{"name": "Spring Fair", "slug": "Spring Fair"}, nil)
	testutil.AssertStatus(t, rr, http.StatusUnauthorized)

	rr = testutil.MakeRequest(t, r, http.MethodPost, "/api/admin/wheels", gin.H{"name": "Spring Fair", "slug": "Spring Fair"}, adminHeaders)
	testutil.AssertStatus(t, rr, http.StatusCreated)

	rr = testutil.MakeRequest(t, r, http.MethodGet, "/api/wheels/lookup?slug=spring-fair", nil, nil)
	testutil.AssertStatus(t, rr, http.StatusOK)

	for _, name := range []string{"Ada", "Grace", "Linus"} {
		body := gin.H{
			"firstName":         name,
			"lastName":          "Tester",
			"city":              "Austin",
			"zipCode":           "78701",
			"phoneNumber":       "512-555-0100",
			"emailAddress":      name + "@example.com",
			"followUpRequested": "no",
		}
		rr = testutil.MakeRequest(t, r, http.MethodPost, "/api/submit?wheel=spring-fair", body, nil)
		testutil.AssertStatus(t, rr, http.StatusOK)
	}

	rr = testutil.MakeRequest(t, r, http.MethodGet, "/api/wheel/eligible?wheel=spring-fair", nil, nil)
	testutil.AssertStatus(t, rr, http.StatusOK)
	var eligible struct {
		Entries []lead.PoolEntry `json:"entries"`
	}
	testutil.DecodeJSON(t, rr, &eligible)
	if len(eligible.Entries) != 3 || eligible.Entries[0].DisplayName != "Ada T. (Austin)" {
		t.Fatalf("eligible = %+v", eligible.Entries)
	}

	rr = testutil.MakeRequest(t, r, http.MethodPost, "/api/spin/create?wheel=spring-fair", nil, nil)
	testutil.AssertStatus(t, rr, http.StatusUnauthorized)
	rr = testutil.MakeRequest(t, r, http.MethodPost, "/api/spin/create?wheel=spring-fair", nil, testutil.Bearer(t, "someone"))
	testutil.AssertStatus(t, rr, http.StatusForbidden)

	rr = testutil.MakeRequest(t, r, http.MethodPost, "/api/spin/create?wheel=spring-fair", nil, adminHeaders)
	testutil.AssertStatus(t, rr, http.StatusOK)
	var created spin.Created
	testutil.DecodeJSON(t, rr, &created)

	rr = testutil.MakeRequest(t, r, http.MethodGet, "/api/spin/lock?wheel=spring-fair", nil, nil)
	testutil.AssertStatus(t, rr, http.StatusOK)

	rr = testutil.MakeRequest(t, r, http.MethodPost, "/api/spin/finalize?wheel=spring-fair", gin.H{"spinId": created.SpinID}, adminHeaders)
	testutil.AssertStatus(t, rr, http.StatusOK)

	rr = testutil.MakeRequest(t, r, http.MethodGet, "/api/wheel/winners?wheel=spring-fair", nil, nil)
	testutil.AssertStatus(t, rr, http.StatusOK)
	var winners struct {
		Winners []spin.Winner `json:"winners"`
	}
	testutil.DecodeJSON(t, rr, &winners)
	if len(winners.Winners) != 1 || winners.Winners[0].WinnerDisplayName != created.WinnerDisplayName {
		t.Fatalf("winners = %+v", winners)
	}

	rr = testutil.MakeRequest(t, r, http.MethodGet, "/api/admin/entries?wheel=spring-fair&filterMode=WINNERS", nil, adminHeaders)
	testutil.AssertStatus(t, rr, http.StatusOK)
	var entries struct {
		Rows []lead.Row `json:"rows"`
	}
	testutil.DecodeJSON(t, rr, &entries)
	if len(entries.Rows) != 1 || !entries.Rows[0].Winner {
		t.Fatalf("winner rows = %+v", entries.Rows)
	}

	rr = testutil.MakeRequest(t, r, http.MethodGet, "/api/export?wheel=spring-fair&format=csv", nil, adminHeaders)
	testutil.AssertStatus(t, rr, http.StatusOK)
	if got := rr.Header().Get("Content-Disposition"); got != `attachment; filename="sparkle-leads-spring-fair-all.csv"` {
		t.Errorf("Content-Disposition = %q", got)
	}
}

func TestOpsEndpoints(t *testing.T) {
	r := newServer(t)

	rr := testutil.MakeRequest(t, r, http.MethodGet, "/healthz", nil, nil)
	testutil.AssertStatus(t, rr, http.StatusOK)

	rr = testutil.MakeRequest(t, r, http.MethodGet, "/metrics", nil, nil)
	testutil.AssertStatus(t, rr, http.StatusOK)

	rr = testutil.MakeRequest(t, r, http.MethodGet, "/api/wheel/eligible?wheel=missing", nil, nil)
	testutil.AssertStatus(t, rr, http.StatusNotFound)
	rr = testutil.MakeRequest(t, r, http.MethodGet, "/api/wheel/eligible", nil, nil)
	testutil.AssertStatus(t, rr, http.StatusBadRequest)
}
