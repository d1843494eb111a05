package transport

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CorMazz/chronolab/pkg/wire"
)

// pipeClient serves one end of a net.Pipe and returns a client on the other.
func pipeClient(t *testing.T, server *Server) *Client {
	t.Helper()
	serverSide, clientSide := net.Pipe()
	go server.ServeConn(serverSide)

	client := NewClient(clientSide, "plot", ClientConfig{RequestTimeout: time.Second}, nil)
	t.Cleanup(func() { client.Close() })
	return client
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	server, err := NewServer(ServerConfig{Handler: echoHandler()})
	require.NoError(t, err)
	t.Cleanup(func() { server.Stop() })
	return server
}

// roundTrip performs a round trip so earlier control frames are applied.
func roundTrip(t *testing.T, c *Client) {
	t.Helper()
	_, err := c.Request(context.Background(), wire.CmdGetField, wire.FieldPayload{Field: "sync"})
	require.NoError(t, err)
}

func TestNewServerRequiresHandler(t *testing.T) {
	_, err := NewServer(ServerConfig{})
	assert.Error(t, err)
}

func TestClientRequest(t *testing.T) {
	client := pipeClient(t, newTestServer(t))

	raw, err := client.Request(context.Background(), wire.CmdGetField, wire.FieldPayload{Field: "videoFilePath"})
	require.NoError(t, err)
	p, err := wire.DecodeValue[wire.FieldPayload](raw)
	require.NoError(t, err)
	assert.Equal(t, "videoFilePath", p.Field)

	_, err = client.Request(context.Background(), wire.CmdSave, nil)
	assert.ErrorIs(t, err, ErrTransportFailure)
}

func TestServerForwardsOnlySubscribedEvents(t *testing.T) {
	server := newTestServer(t)
	client := pipeClient(t, server)

	got := newCollector[string]()
	unsubscribe := client.Subscribe("state-change--csv-file-path", got.handle)
	roundTrip(t, client)

	require.NoError(t, server.Broadcast("state-change--video-file-path", "/v.mp4"))
	require.NoError(t, server.Broadcast("state-change--csv-file-path", "/a.csv"))
	assert.Equal(t, []string{"/a.csv"}, got.wait(t, 1))

	unsubscribe()
	roundTrip(t, client)
	require.NoError(t, server.Broadcast("state-change--csv-file-path", "/b.csv"))
	roundTrip(t, client)
	assert.Equal(t, 1, got.count())
	assert.Equal(t, 0, client.SubscriptionCount())
}

func TestClientEmitIsRebroadcast(t *testing.T) {
	server := newTestServer(t)
	sender := pipeClient(t, server)
	receiver := pipeClient(t, server)

	got := newCollector[float64]()
	receiver.Subscribe("video-time-change", got.handle)
	roundTrip(t, receiver)

	require.NoError(t, sender.Emit(context.Background(), "video-time-change", 12.5))
	assert.Equal(t, []float64{12.5}, got.wait(t, 1))
}

func TestServerFanoutReachesHub(t *testing.T) {
	hub := newTestHub(t, time.Second)
	local, _ := hub.Connect("main")

	server, err := NewServer(ServerConfig{Handler: echoHandler()})
	require.NoError(t, err)
	t.Cleanup(func() { server.Stop() })
	fanout := Broadcasters{hub, server}
	server.config.Fanout = fanout
	hub.SetFanout(fanout)

	remote := pipeClient(t, server)
	remoteGot := newCollector[int]()
	remote.Subscribe("tick", remoteGot.handle)
	roundTrip(t, remote)

	localGot := newCollector[int]()
	local.Subscribe("tick", localGot.handle)

	require.NoError(t, remote.Emit(context.Background(), "tick", 1))
	require.NoError(t, local.Emit(context.Background(), "tick", 2))

	assert.ElementsMatch(t, []int{1, 2}, localGot.wait(t, 2))
	assert.ElementsMatch(t, []int{1, 2}, remoteGot.wait(t, 2))
}

func TestClientCloseFailsRequests(t *testing.T) {
	client := pipeClient(t, newTestServer(t))
	require.NoError(t, client.Close())

	_, err := client.Request(context.Background(), wire.CmdGetField, nil)
	assert.ErrorIs(t, err, ErrClosed)

	select {
	case <-client.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed")
	}
}

func TestServerStopDisconnectsClient(t *testing.T) {
	server := newTestServer(t)
	client := pipeClient(t, server)
	roundTrip(t, client)
	require.Equal(t, 1, server.ConnectionCount())

	require.NoError(t, server.Stop())

	select {
	case <-client.Done():
	case <-time.After(time.Second):
		t.Fatal("client not disconnected")
	}
}

func TestServerOverUnixSocket(t *testing.T) {
	server := newTestServer(t)
	path := filepath.Join(t.TempDir(), "holder.sock")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, server.Start(ctx, "unix", path))
	assert.NotNil(t, server.Addr())

	client, err := Dial(ctx, "unix", path, "plot", DefaultClientConfig(), nil)
	require.NoError(t, err)
	defer client.Close()

	raw, err := client.Request(ctx, wire.CmdGetField, wire.FieldPayload{Field: "isMultiwindow"})
	require.NoError(t, err)
	p, err := wire.DecodeValue[wire.FieldPayload](raw)
	require.NoError(t, err)
	assert.Equal(t, "isMultiwindow", p.Field)
}
