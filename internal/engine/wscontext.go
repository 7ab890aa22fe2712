package engine

import "fmt"

// WsContext is a thin, recyclable adapter over a live WebSocket handle
// and its user data (spec §4.5). Every method panics if called after
// clear() — using a released WsContext is a programmer error, not a
// recoverable runtime condition.
type WsContext struct {
	server   *Server
	ws       WebSocket
	userData any
	handlers WsHandlers
	pool     *ContextPool[*WsContext]
}

func newWsContext(pool *ContextPool[*WsContext]) *WsContext {
	return &WsContext{pool: pool}
}

func (c *WsContext) resetFor(server *Server, ws WebSocket, userData any, handlers WsHandlers) {
	c.server = server
	c.ws = ws
	c.userData = userData
	c.handlers = handlers
}

func (c *WsContext) clear() {
	c.server = nil
	c.ws = nil
	c.userData = nil
	c.handlers = WsHandlers{}
}

func (c *WsContext) mustBeLive() {
	if c.ws == nil {
		panic("engine: WsContext used after clear")
	}
}

// UserData returns the value the onUpgrade hook produced for this
// connection.
func (c *WsContext) UserData() any {
	c.mustBeLive()
	return c.userData
}

// Send writes data as a text frame (string) or binary frame ([]byte),
// inferring the frame type unless binary is given explicitly.
func (c *WsContext) Send(data any, binary ...bool) error {
	c.mustBeLive()
	var b []byte
	var isBinary bool
	switch v := data.(type) {
	case string:
		b = []byte(v)
		isBinary = false
	case []byte:
		b = v
		isBinary = true
	default:
		return fmt.Errorf("engine: WsContext.Send: unsupported type %T", data)
	}
	if len(binary) > 0 {
		isBinary = binary[0]
	}
	if c.ws.Send(b, isBinary) && c.handlers.OnDrain != nil {
		// This transport writes synchronously, so the send buffer is
		// always drained by the time Send returns; onDrain fires right
		// away rather than after a deferred backpressure event.
		safeCall(func() { c.handlers.OnDrain(c) })
	}
	return nil
}

// End closes the socket with the given close code and reason.
func (c *WsContext) End(code int, reason string) {
	c.mustBeLive()
	if code == 0 {
		code = 1000
	}
	c.ws.End(code, reason)
}

func (c *WsContext) Subscribe(topic string) bool {
	c.mustBeLive()
	oldCount := c.subscriberCount(topic)
	ok := c.ws.Subscribe(topic)
	if ok {
		c.notifySubscription(topic, c.subscriberCount(topic), oldCount)
	}
	return ok
}

func (c *WsContext) Unsubscribe(topic string) bool {
	c.mustBeLive()
	oldCount := c.subscriberCount(topic)
	ok := c.ws.Unsubscribe(topic)
	if ok {
		c.notifySubscription(topic, c.subscriberCount(topic), oldCount)
	}
	return ok
}

func (c *WsContext) subscriberCount(topic string) int {
	if c.server == nil {
		return 0
	}
	return c.server.NumSubscribers(topic)
}

func (c *WsContext) notifySubscription(topic string, newCount, oldCount int) {
	if c.handlers.OnSubscription == nil {
		return
	}
	safeCall(func() { c.handlers.OnSubscription(c, topic, newCount, oldCount) })
}

// Publish fans a message out through the owning Server to every socket
// subscribed to topic, this connection included if subscribed.
func (c *WsContext) Publish(topic string, msg []byte, binary bool) bool {
	c.mustBeLive()
	if c.server == nil {
		return false
	}
	return c.server.Publish(topic, msg, binary)
}
