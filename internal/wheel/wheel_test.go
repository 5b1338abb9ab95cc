package wheel

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/SlpAus/sparkle-wheel-backend/internal/testutil"
	"github.com/gin-gonic/gin"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(testutil.NewDB(t, &Wheel{}))
}

func TestNormalizeSlug(t *testing.T) {
	cases := map[string]string{
		" Spring Fair 2025! ": "spring-fair-2025",
		"--a  b--c--":         "a-b-c",
		"Émile's Stand":       "miles-stand",
		"":                    "",
	}
	for in, want := range cases {
		if got := NormalizeSlug(in); got != want {
			t.Errorf("NormalizeSlug(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCreateWheel(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	w, err := svc.Create(ctx, " Fair ", "Spring Fair")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if w.Slug != "spring-fair" || w.Name != "Fair" || !w.IsActive {
		t.Fatalf("unexpected wheel %+v", w)
	}

	if _, err := svc.Create(ctx, "Other", "spring fair"); !errors.Is(err, ErrSlugTaken) {
		t.Fatalf("duplicate slug err = %v", err)
	}

	var ve *ValidationError
	if _, err := svc.Create(ctx, "", "valid-slug"); !errors.As(err, &ve) || ve.Message != "Name is required" {
		t.Fatalf("missing name err = %v", err)
	}
	if _, err := svc.Create(ctx, "X", "a!"); !errors.As(err, &ve) || ve.Message != "Slug must be at least 3 characters" {
		t.Fatalf("short slug err = %v", err)
	}
}

func TestActiveBySlug(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	w, err := svc.Create(ctx, "Fair", "fair")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.ActiveBySlug(ctx, ""); !errors.Is(err, ErrSlugRequired) {
		t.Errorf("empty slug err = %v", err)
	}
	if _, err := svc.ActiveBySlug(ctx, "nope"); !errors.Is(err, ErrWheelNotFound) {
		t.Errorf("unknown slug err = %v", err)
	}
	if _, err := svc.SetActive(ctx, w.ID, false); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ActiveBySlug(ctx, "fair"); !errors.Is(err, ErrWheelInactive) {
		t.Errorf("inactive err = %v", err)
	}
	if got, err := svc.BySlug(ctx, "fair"); err != nil || got.IsActive {
		t.Errorf("BySlug = %+v, %v", got, err)
	}
	if _, err := svc.SetActive(ctx, "missing", true); !errors.Is(err, ErrWheelNotFound) {
		t.Errorf("SetActive(missing) err = %v", err)
	}
}

func TestHandlers(t *testing.T) {
	svc := newTestService(t)
	h := NewHandler(svc)
	r := gin.New()
	r.GET("/api/wheels/lookup", h.Lookup)
	r.GET("/api/admin/wheels", h.List)
	r.POST("/api/admin/wheels", h.Create)
	r.PATCH("/api/admin/wheels/:id", h.Update)
	r.GET("/scoped", RequireWheel(svc, false), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": FromContext(c).ID})
	})

	rr := testutil.MakeRequest(t, r, http.MethodPost, "/api/admin/wheels", map[string]string{"name": "Fair", "slug": "Fair Day"}, nil)
	testutil.AssertStatus(t, rr, http.StatusCreated)
	var created struct {
		Wheel Wheel `json:"wheel"`
	}
	testutil.DecodeJSON(t, rr, &created)

	rr = testutil.MakeRequest(t, r, http.MethodPost, "/api/admin/wheels", map[string]string{"name": "Fair", "slug": "fair-day"}, nil)
	testutil.AssertStatus(t, rr, http.StatusBadRequest)
	if msg := testutil.ErrorMessage(t, rr); msg != "Slug already exists" {
		t.Errorf("duplicate message = %q", msg)
	}

	rr = testutil.MakeRequest(t, r, http.MethodGet, "/api/wheels/lookup?slug=fair-day", nil, nil)
	testutil.AssertStatus(t, rr, http.StatusOK)

	rr = testutil.MakeRequest(t, r, http.MethodPatch, "/api/admin/wheels/"+created.Wheel.ID, map[string]bool{"isActive": false}, nil)
	testutil.AssertStatus(t, rr, http.StatusOK)

	rr = testutil.MakeRequest(t, r, http.MethodGet, "/api/wheels/lookup?slug=fair-day", nil, nil)
	testutil.AssertStatus(t, rr, http.StatusNotFound)
	if msg := testutil.ErrorMessage(t, rr); msg != "Wheel is not active" {
		t.Errorf("inactive message = %q", msg)
	}

	// 非公开接口不检查启用状态
	rr = testutil.MakeRequest(t, r, http.MethodGet, "/scoped?wheel=fair-day", nil, nil)
	testutil.AssertStatus(t, rr, http.StatusOK)
	rr = testutil.MakeRequest(t, r, http.MethodGet, "/scoped", nil, nil)
	testutil.AssertStatus(t, rr, http.StatusBadRequest)

	rr = testutil.MakeRequest(t, r, http.MethodGet, "/api/admin/wheels", nil, nil)
	testutil.AssertStatus(t, rr, http.StatusOK)
	var list struct {
		Wheels []Wheel `json:"wheels"`
	}
	testutil.DecodeJSON(t, rr, &list)
	if len(list.Wheels) != 1 {
		t.Fatalf("got %d wheels", len(list.Wheels))
	}
}
