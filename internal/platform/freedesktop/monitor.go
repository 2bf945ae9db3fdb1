package freedesktop

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	logx "islandbridge/pkg/logx"
)

// pendingTTL bounds how long a Notify call waits for its reply.
const pendingTTL = 10 * time.Second

var monitorRules = []string{
	"type='method_call',interface='" + busIface + "',member='" + memNotify + "'",
	"type='method_return'",
	"type='signal',interface='" + busIface + "',member='" + sigClosed + "'",
}

type callRef struct {
	sender string
	serial uint32
}

type pendingCall struct {
	call notifyCall
	at   time.Time
}

// monitor eavesdrops on the session bus. Notify calls are matched with
// their replies to learn the id the server assigned.
type monitor struct {
	h    *Host
	log  logx.Logger
	conn *dbus.Conn
	msgs chan *dbus.Message

	mu      sync.Mutex
	pending map[callRef]pendingCall

	cancel context.CancelFunc
	done   chan struct{}
}

func startMonitor(ctx context.Context, h *Host, log logx.Logger) (*monitor, error) {
	conn, err := dbus.SessionBusPrivate()
	if err != nil {
		return nil, fmt.Errorf("freedesktop: monitor connection: %w", err)
	}
	if err := conn.Auth(nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("freedesktop: monitor auth: %w", err)
	}
	if err := conn.Hello(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("freedesktop: monitor hello: %w", err)
	}
	call := conn.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.Monitoring.BecomeMonitor", 0, monitorRules, uint32(0))
	if call.Err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("freedesktop: become monitor: %w", call.Err)
	}

	m := newMonitor(h, log)
	m.conn = conn
	conn.Eavesdrop(m.msgs)

	ctx, m.cancel = context.WithCancel(ctx)
	go m.loop(ctx)
	log.Info("bus monitor started")
	return m, nil
}

func newMonitor(h *Host, log logx.Logger) *monitor {
	return &monitor{
		h:       h,
		log:     log,
		msgs:    make(chan *dbus.Message, 64),
		pending: map[callRef]pendingCall{},
		done:    make(chan struct{}),
	}
}

func (m *monitor) loop(ctx context.Context) {
	defer close(m.done)
	tick := time.NewTicker(pendingTTL)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			m.prune(time.Now())
		case msg, ok := <-m.msgs:
			if !ok {
				return
			}
			m.handle(msg, time.Now())
		}
	}
}

func (m *monitor) close() error {
	if m.cancel != nil {
		m.cancel()
	}
	var err error
	if m.conn != nil {
		err = m.conn.Close()
	}
	<-m.done
	return err
}

func header(msg *dbus.Message, f dbus.HeaderField) string {
	v, ok := msg.Headers[f]
	if !ok {
		return ""
	}
	switch s := v.Value().(type) {
	case string:
		return s
	case dbus.ObjectPath:
		return string(s)
	}
	return ""
}

func (m *monitor) handle(msg *dbus.Message, now time.Time) {
	switch msg.Type {
	case dbus.TypeMethodCall:
		if header(msg, dbus.FieldMember) != memNotify || header(msg, dbus.FieldInterface) != busIface {
			return
		}
		c, err := decodeNotify(msg.Body)
		if err != nil {
			m.log.Debug("undecodable notify call", logx.Err(err))
			return
		}
		ref := callRef{sender: header(msg, dbus.FieldSender), serial: msg.Serial()}
		m.mu.Lock()
		m.pending[ref] = pendingCall{call: c, at: now}
		m.mu.Unlock()

	case dbus.TypeMethodReply:
		v, ok := msg.Headers[dbus.FieldReplySerial]
		if !ok {
			return
		}
		serial, _ := v.Value().(uint32)
		ref := callRef{sender: header(msg, dbus.FieldDestination), serial: serial}
		m.mu.Lock()
		p, ok := m.pending[ref]
		delete(m.pending, ref)
		m.mu.Unlock()
		if !ok || len(msg.Body) == 0 {
			return
		}
		id, ok := msg.Body[0].(uint32)
		if !ok || id == 0 {
			return
		}
		m.h.observed(p.call, id)

	case dbus.TypeSignal:
		if header(msg, dbus.FieldMember) != sigClosed || len(msg.Body) == 0 {
			return
		}
		if id, ok := msg.Body[0].(uint32); ok {
			m.h.closed(id)
		}
	}
}

// prune drops calls whose reply never arrived.
func (m *monitor) prune(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for ref, p := range m.pending {
		if now.Sub(p.at) > pendingTTL {
			delete(m.pending, ref)
		}
	}
}
