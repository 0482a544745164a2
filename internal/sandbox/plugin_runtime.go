// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package sandbox

import (
	"context"
	"fmt"
	"log"
	"net/rpc"
	"os"
	"os/exec"
	"sort"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"

	"github.com/toolproto/proto/internal/logging"
)

// PluginName is the name the tool plugin is dispensed under.
const PluginName = "tool"

// Handshake is the HandshakeConfig used to configure clients and servers.
var Handshake = plugin.HandshakeConfig{
	ProtocolVersion: 1,
	// The magic cookie values should never be changed.
	MagicCookieKey:   "PROTO_PLUGIN_MAGIC_COOKIE",
	MagicCookieValue: "8d4f3a2b7c1e9f60a5b2d8c4e7f13a9b6c0d2e5f8a1b4c7d9e2f5a8b1c4d7e0f",
}

// ToolServer is implemented by plugin executables and served with Serve.
type ToolServer interface {
	Configure(manifest Manifest) error
	Call(function string, input []byte) ([]byte, error)
}

// Serve serves a tool plugin. It never returns and should be the final
// call in the main function of a plugin executable.
func Serve(impl ToolServer) {
	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: Handshake,
		Plugins: plugin.PluginSet{
			PluginName: &ToolPlugin{Impl: impl},
		},
	})
}

// CleanupClients kills every plugin process started by a PluginRuntime.
func CleanupClients() {
	plugin.CleanupClients()
}

// ToolPlugin is the go-plugin definition of a tool plugin over net/rpc.
type ToolPlugin struct {
	Impl ToolServer
}

var _ plugin.Plugin = (*ToolPlugin)(nil)

func (p *ToolPlugin) Server(*plugin.MuxBroker) (interface{}, error) {
	return &rpcServer{impl: p.Impl}, nil
}

func (p *ToolPlugin) Client(_ *plugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &rpcClient{client: c}, nil
}

// CallArgs is the RPC argument of Plugin.Call.
type CallArgs struct {
	Function string
	Input    []byte
}

type rpcServer struct {
	impl ToolServer
}

func (s *rpcServer) Configure(manifest Manifest, reply *bool) error {
	if err := s.impl.Configure(manifest); err != nil {
		return err
	}
	*reply = true
	return nil
}

func (s *rpcServer) Call(args CallArgs, reply *[]byte) error {
	out, err := s.impl.Call(args.Function, args.Input)
	if err != nil {
		return err
	}
	*reply = out
	return nil
}

type rpcClient struct {
	client *rpc.Client
}

func (c *rpcClient) Configure(ctx context.Context, manifest Manifest) error {
	return c.call(ctx, "Plugin.Configure", manifest, new(bool))
}

func (c *rpcClient) Call(ctx context.Context, function string, input []byte) ([]byte, error) {
	var out []byte
	if err := c.call(ctx, "Plugin.Call", CallArgs{Function: function, Input: input}, &out); err != nil {
		return nil, fmt.Errorf("plugin function %s failed: %w", function, err)
	}
	return out, nil
}

// call is a cancellable rpc.Client.Call. A cancelled call is abandoned,
// not interrupted, since net/rpc has no cancellation.
func (c *rpcClient) call(ctx context.Context, method string, args, reply any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	call := c.client.Go(method, args, reply, make(chan *rpc.Call, 1))
	select {
	case <-call.Done:
		return call.Error
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PluginRuntime runs each plugin instance as a child process speaking
// the go-plugin net/rpc protocol.
type PluginRuntime struct {
	Logger hclog.Logger
}

var _ Runtime = (*PluginRuntime)(nil)

// NewPluginRuntime returns a runtime that logs plugin output through the
// global logger.
func NewPluginRuntime() *PluginRuntime {
	return &PluginRuntime{Logger: logging.NewLogger("plugin")}
}

func (r *PluginRuntime) Instantiate(ctx context.Context, manifest Manifest) (Handle, error) {
	cmd := exec.Command(manifest.Path)
	cmd.Env = append(os.Environ(), envList(manifest.Env)...)
	if cwd, ok := manifest.VirtualPaths["/cwd"]; ok {
		cmd.Dir = cwd
	}

	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig:  Handshake,
		Plugins:          plugin.PluginSet{PluginName: &ToolPlugin{}},
		Cmd:              cmd,
		Managed:          true,
		Logger:           r.Logger.Named(string(manifest.ID)),
		AllowedProtocols: []plugin.Protocol{plugin.ProtocolNetRPC},
	})

	rpcProtocol, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to start plugin %s: %w", manifest.Path, err)
	}
	raw, err := rpcProtocol.Dispense(PluginName)
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to dispense plugin %s: %w", manifest.Path, err)
	}
	tool := raw.(*rpcClient)
	if err := tool.Configure(ctx, manifest); err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to configure plugin %s: %w", manifest.Path, err)
	}

	log.Printf("[DEBUG] Started plugin %s for %s", manifest.Path, manifest.ID)
	return &pluginHandle{client: client, tool: tool}, nil
}

type pluginHandle struct {
	client *plugin.Client
	tool   *rpcClient
}

func (h *pluginHandle) Call(ctx context.Context, function string, input []byte) ([]byte, error) {
	return h.tool.Call(ctx, function, input)
}

func (h *pluginHandle) Close() error {
	h.client.Kill()
	return nil
}

func envList(env map[string]string) []string {
	ret := make([]string, 0, len(env))
	for k, v := range env {
		ret = append(ret, k+"="+v)
	}
	sort.Strings(ret)
	return ret
}
