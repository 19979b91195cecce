package directory

import (
	"github.com/nats-io/nats.go"

	"github.com/arloliu/shardcoord/types"
)

func (d *NATS) installConnectionHandlers() {
	d.nc.SetDisconnectErrHandler(func(_ *nats.Conn, err error) {
		d.logger.Warn("coordination connection lost", "error", err)
		d.publishConnectionState(false)
	})
	d.nc.SetReconnectHandler(func(nc *nats.Conn) {
		d.logger.Info("coordination connection restored", "url", nc.ConnectedUrlRedacted())
		d.publishConnectionState(true)
	})
	d.nc.SetClosedHandler(func(_ *nats.Conn) {
		d.logger.Warn("coordination connection closed")
		d.publishConnectionState(false)
	})
}

// SubscribeConnectionState registers a connection state handler.
//
// Handlers run on the NATS client's callback goroutine.
func (d *NATS) SubscribeConnectionState(handler types.ConnectionStateHandler) func() {
	id := d.nextSubID.Add(1)
	d.connSubs.Store(id, handler)

	return func() { d.connSubs.Delete(id) }
}

func (d *NATS) publishConnectionState(connected bool) {
	d.metrics.RecordConnectionState(connected)
	if d.closed.Load() {
		return
	}

	d.connSubs.Range(func(_ uint64, handler types.ConnectionStateHandler) bool {
		handler(connected)
		return true
	})
}
