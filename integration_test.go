package chronolab_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/CorMazz/chronolab/pkg/attribute"
	"github.com/CorMazz/chronolab/pkg/clock"
	"github.com/CorMazz/chronolab/pkg/connection"
	"github.com/CorMazz/chronolab/pkg/holder"
	"github.com/CorMazz/chronolab/pkg/model"
	"github.com/CorMazz/chronolab/pkg/playhead"
	"github.com/CorMazz/chronolab/pkg/transport"
	"github.com/CorMazz/chronolab/pkg/viewport"
	"github.com/CorMazz/chronolab/pkg/window"
)

const e2eTimeout = 5 * time.Second

// switchBroadcaster lets a test replace the server the holder pushes to.
type switchBroadcaster struct {
	mu     sync.Mutex
	target transport.Broadcaster
}

func (s *switchBroadcaster) set(b transport.Broadcaster) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.target = b
}

func (s *switchBroadcaster) Broadcast(name string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.target == nil {
		return nil
	}
	return s.target.Broadcast(name, payload)
}

type holderProcess struct {
	holder *holder.Holder
	fanout *switchBroadcaster
	socket string
	server *transport.Server
}

// startHolder serves a fresh holder on a unix socket.
func startHolder(t *testing.T) *holderProcess {
	t.Helper()
	hp := &holderProcess{
		fanout: &switchBroadcaster{},
		socket: filepath.Join(t.TempDir(), "holder.sock"),
	}
	h, err := holder.New(holder.Config{Broadcaster: hp.fanout})
	if err != nil {
		t.Fatalf("holder.New() error = %v", err)
	}
	hp.holder = h
	hp.listen(t)
	return hp
}

func (hp *holderProcess) listen(t *testing.T) {
	t.Helper()
	server, err := transport.NewServer(transport.ServerConfig{Handler: hp.holder})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	if err := server.Start(context.Background(), "unix", hp.socket); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	hp.server = server
	hp.fanout.set(server)
	t.Cleanup(func() { server.Stop() })
}

func (hp *holderProcess) dial(t *testing.T, window string) *transport.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), e2eTimeout)
	defer cancel()
	c, err := transport.Dial(ctx, "unix", hp.socket, window, transport.ClientConfig{}, nil)
	if err != nil {
		t.Fatalf("Dial(%s) error = %v", window, err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(e2eTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

type recordingChart struct {
	mu       sync.Mutex
	commands []viewport.Command
}

func (c *recordingChart) SetVisibleRange(cmd viewport.Command) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commands = append(c.commands, cmd)
	return nil
}

func (c *recordingChart) last() (viewport.Command, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.commands) == 0 {
		return viewport.Command{}, false
	}
	return c.commands[len(c.commands)-1], true
}

type video struct {
	mu      sync.Mutex
	elapsed float64
}

func (v *video) seek(s float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.elapsed = s
}

func (v *video) CurrentTime() (float64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.elapsed, nil
}

type videoOpener struct{ v *video }

func (o videoOpener) Open(string) (playhead.MediaSource, error) { return o.v, nil }

type fixedPicker struct{ path string }

func (p fixedPicker) OpenFile(context.Context, window.FileKind) (string, error) { return p.path, nil }
func (p fixedPicker) SaveFile(context.Context, window.FileKind) (string, error) { return p.path, nil }

// TestE2E_ReadWrite checks that a value written by one window process
// reaches another one and survives a save and reload.
func TestE2E_ReadWrite(t *testing.T) {
	hp := startHolder(t)
	ctx, cancel := context.WithTimeout(context.Background(), e2eTimeout)
	defer cancel()

	session := filepath.Join(t.TempDir(), "run.crm")
	main, err := window.OpenMain(ctx, window.MainConfig{
		Transport: hp.dial(t, "main"),
		Picker:    fixedPicker{path: session},
	})
	if err != nil {
		t.Fatalf("OpenMain() error = %v", err)
	}
	defer main.Close()

	plot, err := window.OpenPlot(ctx, window.PlotConfig{Transport: hp.dial(t, "plot"), Chart: &recordingChart{}})
	if err != nil {
		t.Fatalf("OpenPlot() error = %v", err)
	}
	defer plot.Close()

	csv := "/data/flight.csv"
	if err := main.State().CSVFilePath.Set(ctx, &csv); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	waitUntil(t, "plot window to see the CSV path", func() bool {
		v := plot.State().CSVFilePath.Value()
		return v != nil && *v == csv
	})

	if err := main.Save(ctx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := os.Stat(session); err != nil {
		t.Fatalf("session file not written: %v", err)
	}
	waitUntil(t, "modified flag to clear", func() bool {
		return !main.State().IsModifiedSinceLastSave.Value()
	})

	if err := main.New(ctx); err != nil {
		t.Fatalf("New() error = %v", err)
	}
	waitUntil(t, "plot window to see the cleared path", func() bool {
		return plot.State().CSVFilePath.Value() == nil
	})

	if err := main.Open(ctx); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	waitUntil(t, "plot window to see the reloaded path", func() bool {
		v := plot.State().CSVFilePath.Value()
		return v != nil && *v == csv
	})
}

// TestE2E_SubscribeNotify checks that windows racing writes over
// separate connections end on the holder's final value.
func TestE2E_SubscribeNotify(t *testing.T) {
	hp := startHolder(t)
	ctx, cancel := context.WithTimeout(context.Background(), e2eTimeout)
	defer cancel()

	a := attribute.Open(ctx, hp.dial(t, "a"), model.VideoFilePath, attribute.Options{Subscribe: true, Window: "a"})
	defer a.Close()
	b := attribute.Open(ctx, hp.dial(t, "b"), model.VideoFilePath, attribute.Options{Subscribe: true, Window: "b"})
	defer b.Close()
	if err := a.Wait(ctx); err != nil {
		t.Fatalf("a.Wait() error = %v", err)
	}
	if err := b.Wait(ctx); err != nil {
		t.Fatalf("b.Wait() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			p := fmt.Sprintf("/a/%d.mp4", i)
			if err := a.Set(ctx, &p); err != nil {
				t.Errorf("a.Set() error = %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			p := fmt.Sprintf("/b/%d.mp4", i)
			if err := b.Set(ctx, &p); err != nil {
				t.Errorf("b.Set() error = %v", err)
			}
		}()
	}
	wg.Wait()

	final := hp.holder.Snapshot().VideoFilePath
	if final == nil {
		t.Fatal("holder has no video path")
	}
	waitUntil(t, "both windows to converge", func() bool {
		av, bv := a.Value(), b.Value()
		return av != nil && bv != nil && *av == *final && *bv == *final
	})
}

// TestE2E_Playhead checks that the main window's playhead moves the
// chart of a plot window in another process.
func TestE2E_Playhead(t *testing.T) {
	hp := startHolder(t)
	ctx, cancel := context.WithTimeout(context.Background(), e2eTimeout)
	defer cancel()

	clk := clock.Fake(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	v := &video{}
	main, err := window.OpenMain(ctx, window.MainConfig{
		Transport: hp.dial(t, "main"),
		Media:     videoOpener{v: v},
		Playhead:  playhead.Config{Interval: 500 * time.Millisecond, Clock: clk},
	})
	if err != nil {
		t.Fatalf("OpenMain() error = %v", err)
	}
	defer main.Close()

	chart := &recordingChart{}
	plot, err := window.OpenPlot(ctx, window.PlotConfig{Transport: hp.dial(t, "plot"), Chart: chart})
	if err != nil {
		t.Fatalf("OpenPlot() error = %v", err)
	}
	defer plot.Close()

	anchor := model.MustParseTimestamp("2024-03-01T12:00:00")
	if err := plot.SetAnchor(ctx, &anchor); err != nil {
		t.Fatalf("SetAnchor() error = %v", err)
	}
	path := "/videos/flight.mp4"
	if err := main.State().VideoFilePath.Set(ctx, &path); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	waitUntil(t, "video to attach and anchor to arrive", func() bool {
		return main.Publisher().Attached() && plot.Viewport().Anchor() != nil
	})

	v.seek(30)
	clk.Advance(500 * time.Millisecond)

	want := viewport.Range{Start: anchor.Add(20 * time.Second).Time(), End: anchor.Add(40 * time.Second).Time()}
	waitUntil(t, "chart to follow the playhead", func() bool {
		cmd, ok := chart.last()
		return ok && cmd.Range.String() == want.String()
	})
}

// TestE2E_Reconnection checks that an attached window comes back after
// the holder's socket server restarts.
func TestE2E_Reconnection(t *testing.T) {
	hp := startHolder(t)

	var (
		mu     sync.Mutex
		client *transport.Client
		ch     *attribute.Channel[*string]
	)
	connect := func(ctx context.Context) (<-chan struct{}, error) {
		c, err := transport.Dial(ctx, "unix", hp.socket, "plot", transport.ClientConfig{}, nil)
		if err != nil {
			return nil, err
		}
		next := attribute.Open(ctx, c, model.CSVFilePath, attribute.Options{Subscribe: true})
		if err := next.Wait(ctx); err != nil {
			next.Close()
			c.Close()
			return nil, err
		}
		mu.Lock()
		if ch != nil {
			ch.Close()
			client.Close()
		}
		client, ch = c, next
		mu.Unlock()
		return c.Done(), nil
	}
	current := func() *attribute.Channel[*string] {
		mu.Lock()
		defer mu.Unlock()
		return ch
	}

	link := connection.NewManager(connect, connection.Config{
		Backoff: connection.BackoffConfig{Initial: 10 * time.Millisecond, Max: 50 * time.Millisecond},
	})
	defer func() {
		mu.Lock()
		defer mu.Unlock()
		if ch != nil {
			ch.Close()
			client.Close()
		}
	}()
	defer link.Close()

	ctx, cancel := context.WithTimeout(context.Background(), e2eTimeout)
	defer cancel()
	if err := link.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	first := current()

	hp.server.Stop()
	waitUntil(t, "link to notice the restart", func() bool {
		return link.State() == connection.StateReconnecting
	})

	csv := "/data/after-restart.csv"
	hp.listen(t)
	waitUntil(t, "link to reconnect", func() bool {
		return link.State() == connection.StateConnected && current() != first
	})

	writer := attribute.Open(ctx, hp.dial(t, "main"), model.CSVFilePath, attribute.Options{})
	defer writer.Close()
	if err := writer.Set(ctx, &csv); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	waitUntil(t, "reconnected window to see the push", func() bool {
		v := current().Value()
		return v != nil && *v == csv
	})
}
