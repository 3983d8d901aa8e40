// Package rpc exposes the orchestrator over JSON-RPC for internal collaborators.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"

	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/domain"
	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/service"
)

// Server accepts JSON-RPC connections.
type Server struct {
	listener  net.Listener
	rpcServer *rpc.Server
	done      chan struct{}
}

// NewServer creates a new RPC server bound to the orchestrator service.
func NewServer(svc *service.Service) (*Server, error) {
	rpcServer := rpc.NewServer()
	handler := &Handler{service: svc}
	if err := rpcServer.RegisterName("Orchestrator", handler); err != nil {
		return nil, fmt.Errorf("register rpc handler: %w", err)
	}

	return &Server{
		rpcServer: rpcServer,
		done:      make(chan struct{}),
	}, nil
}

// Start begins accepting RPC connections on the given address.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until it is closed.
func (s *Server) Serve(ln net.Listener) error {
	s.listener = ln

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				close(s.done)
				return nil
			}
			log.Printf("WARN: rpc accept error: %v", err)
			continue
		}

		go s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(conn))
	}
}

// Shutdown stops accepting new RPC connections.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.listener == nil {
		return nil
	}

	if err := s.listener.Close(); err != nil {
		return err
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handler implements orchestrator RPC methods.
type Handler struct {
	service *service.Service
}

// ExecutionRequest identifies an execution.
type ExecutionRequest struct {
	ExecutionID string `json:"execution_id"`
}

// StartTestRun accepts a test-run.
func (h *Handler) StartTestRun(req *domain.TestRunRequest, resp *domain.StartResponse) error {
	if req == nil {
		return errors.New("test-run request is required")
	}
	result, err := h.service.StartTestRun(context.Background(), *req)
	if err != nil {
		return err
	}
	*resp = *result
	return nil
}

// StartGenerationRun accepts a generation-run.
func (h *Handler) StartGenerationRun(req *domain.GenerationRunRequest, resp *domain.StartResponse) error {
	if req == nil {
		return errors.New("generation-run request is required")
	}
	result, err := h.service.StartGenerationRun(context.Background(), *req)
	if err != nil {
		return err
	}
	*resp = *result
	return nil
}

// CancelExecution stops a running execution.
func (h *Handler) CancelExecution(req *ExecutionRequest, resp *domain.CancelResponse) error {
	if req == nil || req.ExecutionID == "" {
		return errors.New("execution_id is required")
	}
	result, err := h.service.CancelExecution(context.Background(), req.ExecutionID)
	if err != nil {
		return err
	}
	*resp = *result
	return nil
}

// GetExecution returns one execution.
func (h *Handler) GetExecution(req *ExecutionRequest, resp *domain.Execution) error {
	if req == nil || req.ExecutionID == "" {
		return errors.New("execution_id is required")
	}
	exec, err := h.service.GetExecution(context.Background(), req.ExecutionID)
	if err != nil {
		return err
	}
	*resp = *exec
	return nil
}
