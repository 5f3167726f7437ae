package services

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"neurochat/internal/logger"
	"neurochat/internal/toolserver"
)

// hostConn is a live duplex channel to the tool backend.
type hostConn struct {
	w    io.WriteCloser
	r    *bufio.Reader
	stop func() error
}

// hostStarter opens a new channel to the tool backend.
type hostStarter func() (*hostConn, error)

// ToolHostClient talks to the tool backend process over line-delimited JSON-RPC.
// The process is started lazily on first use and shared by every call until Close.
type ToolHostClient struct {
	mu      sync.Mutex
	starter hostStarter
	conn    *hostConn
	nextID  int64
	log     *log.Logger
}

// NewToolHostClient creates a client that runs the given command as the tool backend.
func NewToolHostClient(command string, args ...string) *ToolHostClient {
	return newToolHostClient(execStarter(command, args...))
}

func newToolHostClient(starter hostStarter) *ToolHostClient {
	return &ToolHostClient{
		starter: starter,
		log:     logger.NewStyledLogger("ToolHost"),
	}
}

func execStarter(command string, args ...string) hostStarter {
	return func() (*hostConn, error) {
		cmd := exec.Command(command, args...)
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("failed to open tool host stdin: %w", err)
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("failed to open tool host stdout: %w", err)
		}
		cmd.Stderr = logger.Output()

		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("failed to start tool host %s: %w", command, err)
		}

		stop := func() error {
			_ = stdin.Close()
			done := make(chan error, 1)
			go func() { done <- cmd.Wait() }()
			select {
			case err := <-done:
				return err
			case <-time.After(2 * time.Second):
				_ = cmd.Process.Kill()
				return <-done
			}
		}
		return &hostConn{w: stdin, r: bufio.NewReader(stdout), stop: stop}, nil
	}
}

// Connect starts the tool backend. It is a no-op when already connected.
func (c *ToolHostClient) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked()
}

func (c *ToolHostClient) connectLocked() error {
	if c.conn != nil {
		return nil
	}
	conn, err := c.starter()
	if err != nil {
		return err
	}
	c.conn = conn
	c.log.Debug("Tool host connected")
	return nil
}

// Connected reports whether a channel is currently open.
func (c *ToolHostClient) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// CallTool runs a tools/call request and returns the raw result.
func (c *ToolHostClient) CallTool(ctx context.Context, name string, args map[string]any) (json.RawMessage, error) {
	params, err := json.Marshal(toolserver.CallParams{Name: name, Arguments: args})
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool arguments: %w", err)
	}
	return c.call(ctx, toolserver.MethodCallTool, params)
}

func (c *ToolHostClient) call(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(); err != nil {
		return nil, err
	}

	c.nextID++
	req := toolserver.Request{JSONRPC: "2.0", ID: c.nextID, Method: method, Params: params}
	line, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	if _, err := c.conn.w.Write(append(line, '\n')); err != nil {
		c.dropLocked()
		return nil, fmt.Errorf("failed to write to tool host: %w", err)
	}

	type readResult struct {
		line []byte
		err  error
	}
	reader := c.conn.r
	ch := make(chan readResult, 1)
	go func() {
		line, err := reader.ReadBytes('\n')
		ch <- readResult{line: line, err: err}
	}()

	var res readResult
	select {
	case <-ctx.Done():
		c.dropLocked()
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.err != nil {
		c.dropLocked()
		return nil, fmt.Errorf("failed to read from tool host: %w", res.err)
	}

	var resp toolserver.Response
	if err := json.Unmarshal(res.line, &resp); err != nil {
		return nil, fmt.Errorf("invalid tool host response: %w", err)
	}
	if resp.ID != req.ID {
		c.dropLocked()
		return nil, fmt.Errorf("tool host response id %d does not match request %d", resp.ID, req.ID)
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return resp.Result, nil
}

// dropLocked tears down a channel that can no longer be trusted; the next call reconnects.
func (c *ToolHostClient) dropLocked() {
	if c.conn == nil {
		return
	}
	if err := c.conn.stop(); err != nil {
		c.log.Debug("Tool host stopped with error", "error", err)
	}
	c.conn = nil
}

// Close stops the tool backend. It is safe to call when not connected.
func (c *ToolHostClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.stop()
	c.conn = nil
	return err
}
