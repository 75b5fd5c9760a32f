// Package telemetry implements the controller's broadcast telemetry
// channel: every subscriber connection receives one newline-delimited JSON
// frame per publish. Grounded on the teacher's IPCServer broadcast-to-
// clients pattern, simplified to a pure fan-out (no inbound routing, no
// per-client handlers — subscribers are read-only).
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"beamctl/internal/logging"
	"beamctl/pkg/types"
)

type subscriber struct {
	id     string
	conn   net.Conn
	send   chan []byte
	closed chan struct{}
	once   sync.Once
}

func (c *subscriber) close() {
	c.once.Do(func() {
		close(c.closed)
		c.conn.Close()
	})
}

// Publisher broadcasts telemetry frames to every currently connected
// subscriber. A slow subscriber never stalls the publish call: frames that
// don't fit in its buffered channel are dropped and counted.
type Publisher struct {
	listener    net.Listener
	subscribers map[string]*subscriber
	subLock     sync.RWMutex

	droppedFrames atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *logging.Logger
}

func NewPublisher() *Publisher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Publisher{
		subscribers: make(map[string]*subscriber),
		ctx:         ctx,
		cancel:      cancel,
		logger:      logging.GetLogger("telemetry_publisher"),
	}
}

func (p *Publisher) Listen(address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to start telemetry publisher: %w", err)
	}
	p.listener = listener

	p.wg.Add(1)
	go p.acceptConnections()

	p.logger.Info("telemetry publisher listening", "address", address)
	return nil
}

func (p *Publisher) Close() error {
	p.cancel()
	if p.listener != nil {
		p.listener.Close()
	}

	p.subLock.Lock()
	for _, sub := range p.subscribers {
		sub.close()
	}
	p.subscribers = make(map[string]*subscriber)
	p.subLock.Unlock()

	p.wg.Wait()
	return nil
}

func (p *Publisher) acceptConnections() {
	defer p.wg.Done()

	for {
		conn, err := p.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			select {
			case <-p.ctx.Done():
				return
			default:
				p.logger.Warn("accept error", "error", err)
				continue
			}
		}

		sub := &subscriber{
			id:     fmt.Sprintf("sub-%d", time.Now().UnixNano()),
			conn:   conn,
			send:   make(chan []byte, 64),
			closed: make(chan struct{}),
		}

		p.subLock.Lock()
		p.subscribers[sub.id] = sub
		p.subLock.Unlock()

		p.wg.Add(1)
		go p.serveSubscriber(sub)
	}
}

func (p *Publisher) serveSubscriber(sub *subscriber) {
	defer p.wg.Done()
	defer func() {
		p.subLock.Lock()
		delete(p.subscribers, sub.id)
		p.subLock.Unlock()
		sub.close()
	}()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-sub.closed:
			return
		case data, ok := <-sub.send:
			if !ok {
				return
			}
			_ = sub.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
			if _, err := sub.conn.Write(data); err != nil {
				return
			}
			_ = sub.conn.SetWriteDeadline(time.Time{})
		}
	}
}

// Publish broadcasts frame to every connected subscriber. It never blocks
// the caller on a slow subscriber: a full send buffer drops the frame for
// that subscriber and increments the drop counter rather than stalling.
func (p *Publisher) Publish(frame types.TelemetryFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to marshal telemetry frame: %w", err)
	}
	data = append(data, '\n')

	p.subLock.RLock()
	defer p.subLock.RUnlock()

	for _, sub := range p.subscribers {
		select {
		case sub.send <- data:
		default:
			p.droppedFrames.Add(1)
		}
	}

	return nil
}

// DroppedFrames returns the lifetime count of frames dropped to slow
// subscribers.
func (p *Publisher) DroppedFrames() uint64 { return p.droppedFrames.Load() }

// SubscriberCount returns the number of currently connected subscribers.
func (p *Publisher) SubscriberCount() int {
	p.subLock.RLock()
	defer p.subLock.RUnlock()
	return len(p.subscribers)
}
