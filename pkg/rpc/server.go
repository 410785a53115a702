// Package rpc implements the line-delimited JSON protocol the editor
// frontend speaks over stdin/stdout: it submits plans, relays approval
// decisions, and receives the orchestrator's event feed.
package rpc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Server handles RPC communication over a reader/writer pair, usually
// stdin/stdout.
type Server struct {
	mu     sync.Mutex
	reader io.Reader
	writer *bufio.Writer

	onRun        func(message string) error
	onApprove    func() error
	onReject     func() error
	onAbort      func() error
	onGetState   func() (*StateInfo, error)
	onGetPlan    func() (any, error)
	onGetHistory func() (any, error)
}

// NewServer creates a new RPC server over the given streams.
func NewServer(r io.Reader, w io.Writer) *Server {
	return &Server{
		reader: r,
		writer: bufio.NewWriter(w),
	}
}

// SetRunHandler sets the handler for run commands. The message carries the
// goal or plan text.
func (s *Server) SetRunHandler(handler func(message string) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRun = handler
}

// SetApproveHandler sets the handler for approve commands.
func (s *Server) SetApproveHandler(handler func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onApprove = handler
}

// SetRejectHandler sets the handler for reject commands.
func (s *Server) SetRejectHandler(handler func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReject = handler
}

// SetAbortHandler sets the handler for abort commands.
func (s *Server) SetAbortHandler(handler func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onAbort = handler
}

// SetGetStateHandler sets the handler for get_state commands.
func (s *Server) SetGetStateHandler(handler func() (*StateInfo, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onGetState = handler
}

// SetGetPlanHandler sets the handler for get_plan commands.
func (s *Server) SetGetPlanHandler(handler func() (any, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onGetPlan = handler
}

// SetGetHistoryHandler sets the handler for get_history commands.
func (s *Server) SetGetHistoryHandler(handler func() (any, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onGetHistory = handler
}

// Run reads commands until the input stream closes.
func (s *Server) Run() error {
	scanner := bufio.NewScanner(s.reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var cmd Command
		if err := json.Unmarshal(line, &cmd); err != nil {
			s.send(Response{Type: "response", Success: false, Error: fmt.Sprintf("failed to parse command: %v", err)})
			continue
		}

		s.send(s.handleCommand(cmd))
	}

	if err := scanner.Err(); err != nil && err != io.EOF {
		return err
	}
	return nil
}

func (s *Server) handleCommand(cmd Command) Response {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch cmd.Type {
	case CommandRun:
		if s.onRun == nil {
			return s.errorResponse(cmd, "no run handler registered")
		}
		message := cmd.Message
		if message == "" && len(cmd.Data) > 0 {
			var data struct {
				Message string `json:"message"`
			}
			if err := json.Unmarshal(cmd.Data, &data); err != nil {
				return s.errorResponse(cmd, fmt.Sprintf("invalid data: %v", err))
			}
			message = data.Message
		}
		if err := s.onRun(message); err != nil {
			return s.errorResponse(cmd, err.Error())
		}
		return s.successResponse(cmd, nil)

	case CommandApprove:
		if s.onApprove == nil {
			return s.errorResponse(cmd, "no approve handler registered")
		}
		if err := s.onApprove(); err != nil {
			return s.errorResponse(cmd, err.Error())
		}
		return s.successResponse(cmd, nil)

	case CommandReject:
		if s.onReject == nil {
			return s.errorResponse(cmd, "no reject handler registered")
		}
		if err := s.onReject(); err != nil {
			return s.errorResponse(cmd, err.Error())
		}
		return s.successResponse(cmd, nil)

	case CommandAbort:
		if s.onAbort == nil {
			return s.errorResponse(cmd, "no abort handler registered")
		}
		if err := s.onAbort(); err != nil {
			return s.errorResponse(cmd, err.Error())
		}
		return s.successResponse(cmd, nil)

	case CommandGetState:
		if s.onGetState == nil {
			return s.errorResponse(cmd, "no get_state handler registered")
		}
		state, err := s.onGetState()
		if err != nil {
			return s.errorResponse(cmd, err.Error())
		}
		return s.successResponse(cmd, state)

	case CommandGetPlan:
		if s.onGetPlan == nil {
			return s.errorResponse(cmd, "no get_plan handler registered")
		}
		plan, err := s.onGetPlan()
		if err != nil {
			return s.errorResponse(cmd, err.Error())
		}
		return s.successResponse(cmd, plan)

	case CommandGetHistory:
		if s.onGetHistory == nil {
			return s.errorResponse(cmd, "no get_history handler registered")
		}
		history, err := s.onGetHistory()
		if err != nil {
			return s.errorResponse(cmd, err.Error())
		}
		return s.successResponse(cmd, history)

	default:
		return s.errorResponse(cmd, fmt.Sprintf("unknown command: %s", cmd.Type))
	}
}

func (s *Server) successResponse(cmd Command, data any) Response {
	return Response{ID: cmd.ID, Type: "response", Command: cmd.Type, Success: true, Data: data}
}

func (s *Server) errorResponse(cmd Command, errMsg string) Response {
	return Response{ID: cmd.ID, Type: "response", Command: cmd.Type, Success: false, Error: errMsg}
}

// EmitEvent pushes an orchestrator event to the frontend as a JSON line.
func (s *Server) EmitEvent(event any) {
	s.send(Response{Type: "event", Success: true, Data: event})
}

func (s *Server) send(resp Response) {
	encoded, err := json.Marshal(resp)
	if err != nil {
		slog.Error("[RPC] failed to marshal response", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.writer.Write(encoded)
	s.writer.WriteByte('\n')
	s.writer.Flush()
}
