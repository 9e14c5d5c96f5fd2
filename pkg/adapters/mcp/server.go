package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aretw0/onestep"
	"github.com/aretw0/onestep/internal/logging"
	"github.com/aretw0/onestep/pkg/domain"
	"github.com/aretw0/onestep/pkg/schema"
	"github.com/aretw0/onestep/pkg/step"
)

const stepsURI = "onestep://steps"

// InvokeResponse is the structured result of the invoke_step tool.
type InvokeResponse struct {
	RunKey string            `json:"run_key" jsonschema_description:"Run key the checkpoint is stored under"`
	State  *domain.State     `json:"state" jsonschema_description:"Checkpointed state after the step"`
	Step   domain.StepRecord `json:"step" jsonschema_description:"Status and timing of the step"`
}

// CheckpointResponse is the structured result of the get_checkpoint tool.
type CheckpointResponse struct {
	RunKey string        `json:"run_key"`
	State  *domain.State `json:"state"`
}

// Engine is the part of the onestep engine exposed over MCP.
type Engine interface {
	Invoke(ctx context.Context, runKey string, in onestep.Input, raw map[string]any) (*onestep.Result, error)
	Checkpoint(ctx context.Context, runKey string) (*domain.State, error)
	Registry() *step.Registry
}

// Server wraps the engine and exposes it as an MCP Server.
type Server struct {
	engine    Engine
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// NewServer creates a new MCP Server instance.
func NewServer(engine Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		engine:    engine,
		mcpServer: server.NewMCPServer("onestep-mcp", onestep.Version),
		logger:    logger,
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer exposes the underlying server, mainly for in-process clients.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves MCP over SSE on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())
	httpServer := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func (s *Server) registerTools() {
	invokeTool := mcp.NewTool("invoke_step",
		mcp.WithDescription("Run one step for a run key, resuming its checkpoint. Returns the new state."),
		mcp.WithString("run_key", mcp.Description("Run key to resume (a new one is generated if omitted)")),
		mcp.WithString("task_id", mcp.Description("Task identifier to set on the state")),
		mcp.WithString("message", mcp.Description("Human message appended before the step runs")),
		mcp.WithString("config", mcp.Description("JSON object with the run configuration, e.g. {\"model_name\":\"openai\",\"step\":\"noop\"}")),
		mcp.WithOutputSchema[InvokeResponse](),
	)
	s.mcpServer.AddTool(invokeTool, mcp.NewStructuredToolHandler(s.handleInvoke))

	checkpointTool := mcp.NewTool("get_checkpoint",
		mcp.WithDescription("Read the checkpointed state of a run key."),
		mcp.WithString("run_key", mcp.Required(), mcp.Description("Run key to read")),
		mcp.WithOutputSchema[CheckpointResponse](),
	)
	s.mcpServer.AddTool(checkpointTool, mcp.NewStructuredToolHandler(s.handleGetCheckpoint))

	s.mcpServer.AddTool(mcp.NewTool("list_steps",
		mcp.WithDescription("List the registered steps and their configuration schema."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		data, err := s.stepsJSON()
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list steps failed: %v", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	})
}

func (s *Server) handleInvoke(ctx context.Context, _ mcp.CallToolRequest, args map[string]interface{}) (InvokeResponse, error) {
	runKey, _ := args["run_key"].(string)
	if runKey == "" {
		runKey = uuid.NewString()
	}

	in := onestep.Input{}
	in.TaskID, _ = args["task_id"].(string)
	if msg, _ := args["message"].(string); msg != "" {
		in.Messages = []domain.Message{domain.NewHumanMessage(msg)}
	}

	var raw map[string]any
	if cfgStr, _ := args["config"].(string); cfgStr != "" {
		if err := json.Unmarshal([]byte(cfgStr), &raw); err != nil {
			return InvokeResponse{}, fmt.Errorf("config must be a JSON object: %w", err)
		}
	}

	res, err := s.engine.Invoke(ctx, runKey, in, raw)
	if err != nil {
		s.logger.Warn("MCP invoke_step failed", "run_key", runKey, "err", err)
		var cve *domain.ConfigValidationError
		if errors.As(err, &cve) {
			return InvokeResponse{}, fmt.Errorf("%w (invalid fields: %v)", err, schema.FieldKeys(err))
		}
		return InvokeResponse{}, err
	}

	return InvokeResponse{RunKey: runKey, State: res.State, Step: res.Step}, nil
}

func (s *Server) handleGetCheckpoint(ctx context.Context, _ mcp.CallToolRequest, args map[string]interface{}) (CheckpointResponse, error) {
	runKey, _ := args["run_key"].(string)
	state, err := s.engine.Checkpoint(ctx, runKey)
	if err != nil {
		return CheckpointResponse{}, fmt.Errorf("get checkpoint %q: %w", runKey, err)
	}
	return CheckpointResponse{RunKey: runKey, State: state}, nil
}

type stepInfo struct {
	Name   string        `json:"name"`
	Schema schema.Schema `json:"schema"`
}

func (s *Server) stepsJSON() ([]byte, error) {
	reg := s.engine.Registry()
	infos := make([]stepInfo, 0)
	for _, name := range reg.Names() {
		st, err := reg.Lookup(name)
		if err != nil {
			return nil, err
		}
		infos = append(infos, stepInfo{Name: name, Schema: st.Schema()})
	}
	return json.Marshal(infos)
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(stepsURI, "Registered Steps",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		data, err := s.stepsJSON()
		if err != nil {
			return nil, fmt.Errorf("failed to describe steps: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      stepsURI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}
