package app

import (
	"context"
	"errors"
	"image"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/teslashibe/go-gridscan/internal/config"
	"github.com/teslashibe/go-gridscan/pkg/capture"
	"github.com/teslashibe/go-gridscan/pkg/feed"
	"github.com/teslashibe/go-gridscan/pkg/source"
)

// scriptedChannel delivers its records once, then idles.
type scriptedChannel struct {
	records []feed.Record
}

func (c scriptedChannel) Run(ctx context.Context, h feed.Handler) error {
	for _, r := range c.records {
		h(r)
	}
	<-ctx.Done()
	return ctx.Err()
}

// brokenSource never opens.
type brokenSource struct{}

func (brokenSource) Open(context.Context) error  { return errors.New("no camera") }
func (brokenSource) Frame() (image.Image, error) { return nil, source.ErrNotOpen }
func (brokenSource) Dimensions() (int, int)      { return 0, 0 }
func (brokenSource) Kind() string                { return "broken" }
func (brokenSource) Close() error                { return nil }

func testConfig(analyzeURL string) config.Config {
	cfg := *config.Default()
	cfg.Server.Port = "0"
	cfg.Server.StaticDir = ""
	cfg.Camera.Source = "still"
	cfg.Camera.Path = "unused.png"
	cfg.Capture.Selector = "manual"
	cfg.Capture.PreviewFPS = 0
	cfg.Analyze.URL = analyzeURL
	return cfg
}

func startApp(t *testing.T, a *App) {
	t.Helper()
	if err := a.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- a.Run(ctx) }()
	<-a.Scheduler().Started()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errc:
			if err != nil {
				t.Errorf("Run: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Run did not return")
		}
		a.Shutdown()
	})
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig("ftp://nowhere")
	if _, err := New(cfg); err == nil || !strings.Contains(err.Error(), "analyze.url") {
		t.Errorf("err = %v, want analyze.url error", err)
	}
}

func TestApp_ManualCaptureReachesAnalyze(t *testing.T) {
	posted := make(chan string, 4)
	analyze := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		posted <- r.PostForm.Get("image")
		w.Write([]byte(`{"status": "Image received and analyzed"}`))
	}))
	defer analyze.Close()

	a, err := New(testConfig(analyze.URL+"/analyze"),
		WithSource(source.NewStillImage(image.NewGray(image.Rect(0, 0, 16, 9)))),
		WithChannel(scriptedChannel{records: []feed.Record{{Name: "Milk", MRP: "60"}, {Name: "Bread"}}}))
	if err != nil {
		t.Fatal(err)
	}
	startApp(t, a)

	if v := a.Web().View(); !v.SourceReady || v.FrameWidth != 16 || v.FrameHeight != 9 {
		t.Errorf("view = %+v", v)
	}

	if err := a.Scheduler().Trigger(context.Background()); err != nil {
		t.Fatal(err)
	}
	select {
	case img := <-posted:
		if !strings.HasPrefix(img, "data:image/png;base64,") {
			t.Errorf("posted image = %.40q", img)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("analyze endpoint never called")
	}

	deadline := time.Now().Add(2 * time.Second)
	for a.Feed().Len() != 2 {
		if time.Now().After(deadline) {
			t.Fatalf("feed has %d rows, want 2", a.Feed().Len())
		}
		time.Sleep(10 * time.Millisecond)
	}
	rows := a.Feed().Rows()
	if rows[0].Seq != 1 || rows[0].Name != "Milk" || rows[1].Seq != 2 {
		t.Errorf("rows = %+v", rows)
	}
	if got := a.Web().View().Rows; got != 2 {
		t.Errorf("View.Rows = %d, want 2", got)
	}
}

func TestApp_SourceFailureFallsBackToManual(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1/analyze")
	cfg.Capture.Selector = "3000"

	a, err := New(cfg, WithSource(brokenSource{}), WithChannel(scriptedChannel{}))
	if err != nil {
		t.Fatal(err)
	}
	startApp(t, a)

	st, err := a.Scheduler().Snapshot(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.Mode != capture.ModeManual || st.TimerArmed {
		t.Errorf("state = %+v, want manual with no timer", st)
	}
	if v := a.Web().View(); v.SourceReady || !v.ManualControlVisible {
		t.Errorf("view = %+v", v)
	}

	// captures are skipped, not fatal
	if err := a.Scheduler().Trigger(context.Background()); err != nil {
		t.Fatal(err)
	}
	a.Scheduler().Snapshot(context.Background())
	if got := a.Scheduler().Stats().Skipped; got != 1 {
		t.Errorf("Skipped = %d, want 1", got)
	}
}

func TestRun_BeforeInit(t *testing.T) {
	a, err := New(testConfig("http://localhost/analyze"), WithSource(brokenSource{}), WithChannel(scriptedChannel{}))
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Run(context.Background()); err == nil {
		t.Error("Run before Init should fail")
	}
}

// healthyChannel is a scripted channel that also reports its health.
type healthyChannel struct {
	scriptedChannel
}

func (healthyChannel) Connected() bool { return true }

func (healthyChannel) Stats() feed.SubscriberStats {
	return feed.SubscriberStats{Connects: 1, Delivered: 2}
}

func TestNew_ChannelHealthInStatus(t *testing.T) {
	a, err := New(testConfig("http://127.0.0.1:1/analyze"),
		WithSource(source.NewStillImage(image.NewGray(image.Rect(0, 0, 4, 4)))),
		WithChannel(healthyChannel{}))
	if err != nil {
		t.Fatal(err)
	}

	v := a.Web().View()
	if !v.ChannelConnected || v.Channel.Connects != 1 || v.Channel.Delivered != 2 {
		t.Errorf("view channel = %v %+v", v.ChannelConnected, v.Channel)
	}
}
