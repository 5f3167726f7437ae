package toolserver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"neurochat/internal/logger"
	"neurochat/internal/storage"
	"neurochat/internal/tools"
)

const maxLineSize = 4 * 1024 * 1024

// ListThreadsResult is returned by list_threads.
type ListThreadsResult struct {
	Threads []storage.ThreadInfo `json:"threads"`
}

// DeleteThreadResult is returned by delete_thread.
type DeleteThreadResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ThreadDataResult is returned by get_thread_data.
type ThreadDataResult struct {
	Success  bool                    `json:"success"`
	Message  string                  `json:"message,omitempty"`
	Metadata *storage.ThreadMetadata `json:"metadata,omitempty"`
	Messages []messageView           `json:"messages,omitempty"`
}

type messageView struct {
	Role      string `json:"role"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// Server answers tool calls against a thread store.
type Server struct {
	store *storage.ThreadStore
	mu    sync.Mutex
}

// NewServer creates a server over the given store.
func NewServer(store *storage.ThreadStore) *Server {
	return &Server{store: store}
}

// Serve reads requests from r and writes responses to w until r is exhausted or ctx is done.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	encoder := json.NewEncoder(w)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		resp := s.handleLine(line)
		if err := encoder.Encode(resp); err != nil {
			return fmt.Errorf("failed to write response: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read request: %w", err)
	}
	return nil
}

func (s *Server) handleLine(line []byte) Response {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return Response{JSONRPC: "2.0", Error: &RPCError{Code: CodeParseError, Message: "invalid JSON request"}}
	}

	result, rpcErr := s.dispatch(req)
	resp := Response{JSONRPC: "2.0", ID: req.ID, Error: rpcErr}
	if rpcErr == nil {
		data, err := json.Marshal(result)
		if err != nil {
			resp.Error = &RPCError{Code: CodeInternalError, Message: err.Error()}
		} else {
			resp.Result = data
		}
	}
	return resp
}

func (s *Server) dispatch(req Request) (any, *RPCError) {
	switch req.Method {
	case MethodPing:
		return map[string]bool{"ok": true}, nil
	case MethodCallTool:
		var params CallParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, &RPCError{Code: CodeInvalidParams, Message: "invalid tools/call params"}
		}
		return s.Call(params.Name, params.Arguments)
	default:
		return nil, &RPCError{Code: CodeMethodNotFound, Message: "unknown method: " + req.Method}
	}
}

// Call executes a single tool by name.
func (s *Server) Call(name string, args map[string]any) (any, *RPCError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	logger.Debug("Tool server call", "tool", name)

	switch name {
	case tools.ListThreadsTool:
		return s.listThreads()
	case tools.DeleteThreadTool:
		return s.deleteThread(stringArg(args, "filename")), nil
	case tools.GetThreadDataTool:
		return s.getThreadData(stringArg(args, "filename")), nil
	default:
		return nil, &RPCError{Code: CodeMethodNotFound, Message: "unknown tool: " + name}
	}
}

func (s *Server) listThreads() (any, *RPCError) {
	threads, err := s.store.List()
	if err != nil {
		return nil, &RPCError{Code: CodeInternalError, Message: err.Error()}
	}
	return ListThreadsResult{Threads: threads}, nil
}

func (s *Server) deleteThread(filename string) DeleteThreadResult {
	if err := storage.ValidateFilename(filename); err != nil {
		return DeleteThreadResult{Success: false, Message: err.Error()}
	}
	if err := s.store.Delete(filename); err != nil {
		return DeleteThreadResult{Success: false, Message: err.Error()}
	}
	return DeleteThreadResult{Success: true, Message: "deleted " + filename}
}

func (s *Server) getThreadData(filename string) ThreadDataResult {
	if err := storage.ValidateFilename(filename); err != nil {
		return ThreadDataResult{Success: false, Message: err.Error()}
	}
	thread, err := s.store.Load(filename)
	if err != nil {
		return ThreadDataResult{Success: false, Message: err.Error()}
	}

	messages := make([]messageView, 0, len(thread.Messages))
	for _, msg := range thread.Messages {
		view := messageView{Role: string(msg.Role), Text: msg.Text}
		if !msg.Timestamp.IsZero() {
			view.Timestamp = msg.Timestamp.Format("2006-01-02T15:04:05Z07:00")
		}
		messages = append(messages, view)
	}
	metadata := thread.Metadata
	return ThreadDataResult{Success: true, Metadata: &metadata, Messages: messages}
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}
