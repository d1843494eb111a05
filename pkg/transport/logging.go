package transport

import (
	"time"

	"github.com/CorMazz/chronolab/pkg/log"
	"github.com/CorMazz/chronolab/pkg/wire"
)

// messageLog tags wire-level log events with the endpoint they belong to.
type messageLog struct {
	logger log.Logger
	connID string
	window string
}

func (m messageLog) log(dir log.Direction, msg log.MessageEvent) {
	m.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: m.connID,
		Window:       m.window,
		Direction:    dir,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		Message:      &msg,
	})
}

func (m messageLog) request(dir log.Direction, req *wire.Request) {
	m.log(dir, log.MessageEvent{
		Kind:        wire.KindRequest,
		MessageID:   req.MessageID,
		Command:     req.Command,
		PayloadSize: len(req.Payload),
	})
}

func (m messageLog) response(dir log.Direction, cmd wire.Command, resp *wire.Response, elapsed time.Duration) {
	status := resp.Status
	m.log(dir, log.MessageEvent{
		Kind:           wire.KindResponse,
		MessageID:      resp.MessageID,
		Command:        cmd,
		Status:         &status,
		PayloadSize:    len(resp.Payload),
		ProcessingTime: &elapsed,
	})
}

func (m messageLog) event(dir log.Direction, name string, payload wire.RawMessage) {
	m.log(dir, log.MessageEvent{
		Kind:        wire.KindEvent,
		EventName:   name,
		PayloadSize: len(payload),
	})
}

func (m messageLog) control(dir log.Direction, ctl *wire.Control) {
	m.log(dir, log.MessageEvent{
		Kind:      wire.KindControl,
		EventName: ctl.Name,
		ControlOp: ctl.Op,
	})
}

func (m messageLog) state(entity log.StateEntity, oldState, newState, reason string) {
	m.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: m.connID,
		Window:       m.window,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   entity,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

func (m messageLog) error(layer log.Layer, err error, context string) {
	m.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: m.connID,
		Window:       m.window,
		Layer:        layer,
		Category:     log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   layer,
			Message: err.Error(),
			Context: context,
		},
	})
}
