// Package command implements the controller's request/response command
// channel: one TCP connection per client, newline-delimited JSON requests,
// exactly one JSON reply per request. Unlike the teacher's IPCServer (which
// dispatches each message from its own per-client goroutine), requests here
// are only ever decoded by the connection goroutine — they are handed off
// through a channel and dispatched by the control loop itself, since
// command handling touches loop state that must stay single-writer.
package command

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"beamctl/internal/logging"
	"beamctl/pkg/types"
)

// envelope pairs a decoded request with the channel its reply must be sent
// on; resp is buffered(1) so the loop's send never blocks waiting for the
// connection goroutine to be ready.
type envelope struct {
	req  types.CommandRequest
	resp chan types.CommandResponse
}

// Server accepts command connections and hands each decoded request to the
// loop via Receive, which the loop polls non-blockingly once per cycle.
type Server struct {
	listener net.Listener
	requests chan envelope

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *logging.Logger
}

func NewServer() *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		requests: make(chan envelope, 8),
		ctx:      ctx,
		cancel:   cancel,
		logger:   logging.GetLogger("command_server"),
	}
}

// Listen starts accepting connections on address. It returns once the
// listener is bound; accept and per-connection handling run in background
// goroutines.
func (s *Server) Listen(address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to start command server: %w", err)
	}
	s.listener = listener

	s.wg.Add(1)
	go s.acceptConnections()

	s.logger.Info("command server listening", "address", address)
	return nil
}

func (s *Server) Close() error {
	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
	return nil
}

func (s *Server) acceptConnections() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			select {
			case <-s.ctx.Done():
				return
			default:
				s.logger.Warn("accept error", "error", err)
				continue
			}
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	reader := bufio.NewReader(conn)

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			var req types.CommandRequest
			if jsonErr := json.Unmarshal(line, &req); jsonErr != nil {
				s.writeResponse(conn, types.ErrResponse("JSON parse error"))
			} else {
				resp := s.dispatchAndWait(req)
				s.writeResponse(conn, resp)
			}
		}

		if err != nil {
			return
		}
	}
}

func (s *Server) dispatchAndWait(req types.CommandRequest) types.CommandResponse {
	env := envelope{req: req, resp: make(chan types.CommandResponse, 1)}

	select {
	case s.requests <- env:
	case <-s.ctx.Done():
		return types.ErrResponse("server shutting down")
	}

	select {
	case resp := <-env.resp:
		return resp
	case <-s.ctx.Done():
		return types.ErrResponse("server shutting down")
	case <-time.After(5 * time.Second):
		return types.ErrResponse("command timed out")
	}
}

func (s *Server) writeResponse(conn net.Conn, resp types.CommandResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	data = append(data, '\n')
	_ = conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	_, _ = conn.Write(data)
	_ = conn.SetWriteDeadline(time.Time{})
}

// Receive performs a single non-blocking poll (bounded by timeout) for a
// pending command. The returned reply func must be called exactly once,
// from the same goroutine that called Receive, to send the computed
// response back to the waiting connection.
func (s *Server) Receive(timeout time.Duration) (req types.CommandRequest, reply func(types.CommandResponse), ok bool) {
	select {
	case env := <-s.requests:
		return env.req, func(resp types.CommandResponse) { env.resp <- resp }, true
	case <-time.After(timeout):
		return types.CommandRequest{}, nil, false
	}
}
