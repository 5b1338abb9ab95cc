package event

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/SlpAus/sparkle-wheel-backend/internal/testutil"
	"github.com/SlpAus/sparkle-wheel-backend/internal/wheel"
	"github.com/gin-gonic/gin"
)

func TestBusPublishSubscribe(t *testing.T) {
	_, rdb := testutil.NewRedis(t)
	bus := NewBus(rdb, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := bus.Subscribe(ctx, "w1")
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	bus.Publish(ctx, Event{Type: SpinCreated, WheelID: "w1", SpinID: "s1"})
	bus.Publish(ctx, Event{Type: SpinCreated, WheelID: "other"})

	select {
	case e := <-sub.Events():
		if e.Type != SpinCreated || e.SpinID != "s1" || e.At.IsZero() {
			t.Fatalf("unexpected event %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}

	select {
	case e := <-sub.Events():
		t.Fatalf("received event for other wheel: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusSkipsWhenUnhealthy(t *testing.T) {
	mr, rdb := testutil.NewRedis(t)
	bus := NewBus(rdb, func() bool { return false })
	bus.Publish(context.Background(), Event{Type: PoolUpdated, WheelID: "w1"})
	if n := mr.PubSubNumSub(Channel("w1")); n[Channel("w1")] != 0 {
		t.Fatalf("unexpected subscribers: %v", n)
	}
}

func TestStreamDeliversEvents(t *testing.T) {
	_, rdb := testutil.NewRedis(t)
	bus := NewBus(rdb, nil)
	h := NewHandler(bus, time.Hour)

	r := gin.New()
	r.GET("/events", func(c *gin.Context) {
		wheel.SetContext(c, &wheel.Wheel{ID: "w1", Slug: "fair"})
		c.Next()
	}, h.Stream)
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content type = %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	readEvent := func() string {
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("read stream: %v", err)
			}
			if strings.HasPrefix(line, "event:") {
				return strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			}
		}
	}

	if got := readEvent(); got != "ready" {
		t.Fatalf("first event = %q", got)
	}
	bus.Publish(ctx, Event{Type: SpinFinalized, WheelID: "w1", SpinID: "s1"})
	if got := readEvent(); got != string(SpinFinalized) {
		t.Fatalf("second event = %q", got)
	}
}

func TestStreamEndsOnServerShutdown(t *testing.T) {
	_, rdb := testutil.NewRedis(t)
	h := NewHandler(NewBus(rdb, nil), time.Hour)

	r := gin.New()
	r.GET("/events", func(c *gin.Context) {
		wheel.SetContext(c, &wheel.Wheel{ID: "w1", Slug: "fair"})
		c.Next()
	}, h.Stream)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	srv := &http.Server{Handler: r}
	srv.RegisterOnShutdown(h.Close)
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/events")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	reader := bufio.NewReader(resp.Body)
	if line, err := reader.ReadString('\n'); err != nil || !strings.HasPrefix(line, "event:ready") {
		t.Fatalf("first line = %q, err = %v", line, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown with an open stream: %v", err)
	}
	if err := <-served; !errors.Is(err, http.ErrServerClosed) {
		t.Fatalf("serve returned %v", err)
	}
	if _, err := io.Copy(io.Discard, reader); err != nil {
		t.Fatalf("stream did not end cleanly: %v", err)
	}

	// 停机后的新连接直接拒绝
	rec := testutil.MakeRequest(t, r, http.MethodGet, "/events", nil, nil)
	testutil.AssertStatus(t, rec, http.StatusServiceUnavailable)
}
