package appstate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CorMazz/chronolab/pkg/holder"
	"github.com/CorMazz/chronolab/pkg/model"
	"github.com/CorMazz/chronolab/pkg/transport"
	"github.com/CorMazz/chronolab/pkg/wire"
)

type fixture struct {
	hub    *transport.Hub
	holder *holder.Holder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	hub := transport.NewHub(transport.HubConfig{})
	t.Cleanup(func() { hub.Close() })
	h, err := holder.New(holder.Config{Broadcaster: hub})
	require.NoError(t, err)
	hub.SetHandler(h)
	return &fixture{hub: hub, holder: h}
}

func (f *fixture) connect(t *testing.T, window string) *transport.Endpoint {
	t.Helper()
	ep, err := f.hub.Connect(window)
	require.NoError(t, err)
	return ep
}

func (f *fixture) set(t *testing.T, field model.Field, v any) {
	t.Helper()
	raw, err := wire.EncodeValue(v)
	require.NoError(t, err)
	require.NoError(t, f.holder.Set(field, raw))
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestOpenOnlyEnabledFields(t *testing.T) {
	fx := newFixture(t)
	fx.set(t, model.FieldCSVFilePath, "/data/run.csv")
	ep := fx.connect(t, "plot")

	fc := Open(context.Background(), ep, Config{
		CSVFilePath:    Subscribed,
		VideoStartTime: FieldConfig{Enabled: true},
	})
	defer fc.Close()
	require.NoError(t, fc.Wait(waitCtx(t)))

	assert.Equal(t, []model.Field{model.FieldCSVFilePath, model.FieldVideoStartTime}, fc.Fields())
	assert.Nil(t, fc.SaveFilePath)
	assert.Nil(t, fc.IsMultiwindow)
	require.NotNil(t, fc.CSVFilePath)
	assert.Equal(t, "/data/run.csv", *fc.CSVFilePath.Value())
	assert.Nil(t, fc.VideoStartTime.Value())
	assert.False(t, fc.Loading())

	assert.Equal(t, 1, ep.SubscriptionCount(), "only the subscribed field registers a handler")

	_, err := fc.FieldLoading(model.FieldSaveFilePath)
	assert.ErrorIs(t, err, ErrFieldDisabled)
	loading, err := fc.FieldLoading(model.FieldCSVFilePath)
	require.NoError(t, err)
	assert.False(t, loading)
}

func TestFacadesDoNotShareChannels(t *testing.T) {
	fx := newFixture(t)
	main := Open(context.Background(), fx.connect(t, "main"), AllFields())
	defer main.Close()
	plot := Open(context.Background(), fx.connect(t, "plot"), AllFields())
	defer plot.Close()
	require.NoError(t, main.Wait(waitCtx(t)))
	require.NoError(t, plot.Wait(waitCtx(t)))

	assert.NotSame(t, main.VideoFilePath, plot.VideoFilePath)

	require.NoError(t, main.VideoFilePath.Set(waitCtx(t), ptr("/media/run.mp4")))
	assert.Eventually(t, func() bool {
		a, b := main.VideoFilePath.Value(), plot.VideoFilePath.Value()
		return a != nil && b != nil && *a == "/media/run.mp4" && *b == "/media/run.mp4"
	}, 2*time.Second, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		return main.IsModifiedSinceLastSave.Value() && plot.IsModifiedSinceLastSave.Value()
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, plot.Close())
	assert.True(t, main.VideoFilePath.Value() != nil, "closing one facade leaves the other intact")
}

func TestCloseRemovesSubscriptions(t *testing.T) {
	fx := newFixture(t)
	ep := fx.connect(t, "main")
	fc := Open(context.Background(), ep, AllFields())
	require.NoError(t, fc.Wait(waitCtx(t)))
	assert.Equal(t, len(model.Fields()), ep.SubscriptionCount())

	require.NoError(t, fc.Close())
	require.NoError(t, fc.Close())
	assert.Equal(t, 0, ep.SubscriptionCount())
}

func TestWaitReportsReadFailure(t *testing.T) {
	hub := transport.NewHub(transport.HubConfig{
		Handler: transport.RequestHandlerFunc(func(_ context.Context, req *wire.Request) *wire.Response {
			return &wire.Response{MessageID: req.MessageID, Status: wire.StatusInternal}
		}),
	})
	defer hub.Close()
	ep, err := hub.Connect("main")
	require.NoError(t, err)

	var reported []error
	fc := Open(context.Background(), ep, Config{
		SaveFilePath: Subscribed,
		OnError:      func(err error) { reported = append(reported, err) },
	})
	defer fc.Close()

	err = fc.Wait(waitCtx(t))
	assert.ErrorIs(t, err, transport.ErrTransportFailure)
	assert.Len(t, reported, 1)
}

func TestAllFieldsConfig(t *testing.T) {
	cfg := AllFields()
	for _, f := range model.Fields() {
		assert.Equal(t, Subscribed, cfg.Field(f), f.String())
	}
	assert.Equal(t, FieldConfig{}, cfg.Field("bogus"))
}

func ptr[T any](v T) *T { return &v }
