// Package command implements the local control plane: a JSON-RPC channel
// over a unix domain socket, used by the CLI subcommands to drive a running
// daemon.
package command

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"icc.tech/pcap-bridge/internal/bridge"
	"icc.tech/pcap-bridge/internal/core"
	"icc.tech/pcap-bridge/internal/log"
	"icc.tech/pcap-bridge/internal/version"
)

// CommandHandler dispatches control plane commands onto the bridge.
type CommandHandler struct {
	bridge       *bridge.Bridge
	shutdownFunc func() // called by daemon_shutdown to trigger graceful stop
	startTime    int64  // unix timestamp of daemon start for uptime calc
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(b *bridge.Bridge) *CommandHandler {
	return &CommandHandler{
		bridge:    b,
		startTime: time.Now().Unix(),
	}
}

// SetShutdownFunc sets the callback invoked by the daemon_shutdown command.
func (h *CommandHandler) SetShutdownFunc(fn func()) {
	h.shutdownFunc = fn
}

// Command represents a control plane command.
type Command struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	ID     string          `json:"id"`
}

// Response represents a command response.
type Response struct {
	ID     string      `json:"id"`
	Result interface{} `json:"result,omitempty"`
	Error  *ErrorInfo  `json:"error,omitempty"`
}

// ErrorInfo represents an error in the response.
type ErrorInfo struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrCodeParseError     = -32700 // Invalid JSON
	ErrCodeInvalidRequest = -32600 // Invalid request object
	ErrCodeMethodNotFound = -32601 // Method not found
	ErrCodeInvalidParams  = -32602 // Invalid method parameters
	ErrCodeInternalError  = -32603 // Internal error
)

// Handle processes a command and returns a response.
func (h *CommandHandler) Handle(ctx context.Context, cmd Command) Response {
	log.GetLogger().WithField("method", cmd.Method).WithField("id", cmd.ID).
		Debug("handling command")

	switch cmd.Method {
	case "bridge_enable":
		return h.handleEnable(ctx, cmd)
	case "bridge_disable":
		return h.handleDisable(ctx, cmd)
	case "bridge_stats":
		return h.handleStats(ctx, cmd)
	case "bridge_interfaces":
		return h.handleInterfaces(ctx, cmd)
	case "daemon_status":
		return h.handleDaemonStatus(ctx, cmd)
	case "daemon_shutdown":
		return h.handleDaemonShutdown(ctx, cmd)
	default:
		return Response{
			ID: cmd.ID,
			Error: &ErrorInfo{
				Code:    ErrCodeMethodNotFound,
				Message: fmt.Sprintf("method %q not found", cmd.Method),
			},
		}
	}
}

func errResponse(id string, code int, format string, args ...interface{}) Response {
	return Response{
		ID:    id,
		Error: &ErrorInfo{Code: code, Message: fmt.Sprintf(format, args...)},
	}
}

// EnableParams represents parameters for the bridge_enable command.
type EnableParams struct {
	Interface   string `json:"interface"`
	Destination string `json:"destination"`
	Direction   string `json:"direction,omitempty"`
}

func (h *CommandHandler) handleEnable(_ context.Context, cmd Command) Response {
	var params EnableParams
	if err := json.Unmarshal(cmd.Params, &params); err != nil {
		return errResponse(cmd.ID, ErrCodeInvalidParams, "invalid params: %v", err)
	}
	if params.Interface == "" || params.Destination == "" {
		return errResponse(cmd.ID, ErrCodeInvalidParams, "interface and destination are required")
	}
	filter, err := core.ParseDirectionFilter(params.Direction)
	if err != nil {
		return errResponse(cmd.ID, ErrCodeInvalidParams, "invalid direction %q", params.Direction)
	}

	id, err := h.bridge.EnableByName(params.Interface, params.Destination, filter)
	if err != nil {
		return errResponse(cmd.ID, ErrCodeInternalError, "enable failed: %v", err)
	}
	return Response{
		ID: cmd.ID,
		Result: map[string]interface{}{
			"sw_if_index": id,
			"status":      "enabled",
		},
	}
}

// DisableParams represents parameters for the bridge_disable command.
type DisableParams struct {
	Interface string `json:"interface"`
}

func (h *CommandHandler) handleDisable(_ context.Context, cmd Command) Response {
	var params DisableParams
	if err := json.Unmarshal(cmd.Params, &params); err != nil {
		return errResponse(cmd.ID, ErrCodeInvalidParams, "invalid params: %v", err)
	}
	if params.Interface == "" {
		return errResponse(cmd.ID, ErrCodeInvalidParams, "interface is required")
	}

	id, err := h.bridge.DisableByName(params.Interface)
	if err != nil {
		return errResponse(cmd.ID, ErrCodeInternalError, "disable failed: %v", err)
	}
	return Response{
		ID: cmd.ID,
		Result: map[string]interface{}{
			"sw_if_index": id,
			"status":      "disabled",
		},
	}
}

func (h *CommandHandler) handleStats(_ context.Context, cmd Command) Response {
	return Response{
		ID: cmd.ID,
		Result: map[string]interface{}{
			"connected":       h.bridge.Connected(),
			"destination":     h.bridge.Destination(),
			"queue_overflows": h.bridge.QueueOverflows(),
			"interfaces":      h.bridge.AllStats(),
		},
	}
}

func (h *CommandHandler) handleInterfaces(_ context.Context, cmd Command) Response {
	list, err := h.bridge.ListInterfaces()
	if err != nil {
		return errResponse(cmd.ID, ErrCodeInternalError, "list interfaces failed: %v", err)
	}
	return Response{
		ID: cmd.ID,
		Result: map[string]interface{}{
			"interfaces": list,
			"count":      len(list),
		},
	}
}

func (h *CommandHandler) handleDaemonStatus(_ context.Context, cmd Command) Response {
	return Response{
		ID: cmd.ID,
		Result: map[string]interface{}{
			"version":    version.Version,
			"uptime_sec": time.Now().Unix() - h.startTime,
			"connected":  h.bridge.Connected(),
		},
	}
}

// handleDaemonShutdown triggers graceful daemon shutdown via the registered
// callback.
func (h *CommandHandler) handleDaemonShutdown(_ context.Context, cmd Command) Response {
	if h.shutdownFunc == nil {
		return errResponse(cmd.ID, ErrCodeInternalError, "shutdown handler not registered")
	}
	log.GetLogger().Info("daemon_shutdown command received, initiating graceful shutdown")
	go h.shutdownFunc() // non-blocking: let the response be sent first

	return Response{
		ID:     cmd.ID,
		Result: map[string]interface{}{"status": "shutting_down"},
	}
}
