// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package sdk

import (
	"net/rpc"

	"github.com/hashicorp/go-plugin"
)

const (
	protocolVersion = 1
	magicCookieKey  = "PAW_CAPABILITY"
	magicCookieVal  = "cGF3LWNhcGFiaWxpdHk=" // "paw-capability" base64
)

// PluginName is the key the capability is dispensed under.
const PluginName = "capability"

func HandshakeConfig() plugin.HandshakeConfig {
	return plugin.HandshakeConfig{
		ProtocolVersion:  protocolVersion,
		MagicCookieKey:   magicCookieKey,
		MagicCookieValue: magicCookieVal,
	}
}

// PluginMap returns the plugin set shared by host and capability. impl is
// nil on the host side.
func PluginMap(impl Remote) map[string]plugin.Plugin {
	return map[string]plugin.Plugin{
		PluginName: &RPCPlugin{Impl: impl},
	}
}

// Serve runs impl as a capability subprocess. It blocks until the host
// disconnects.
func Serve(impl Remote) {
	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: HandshakeConfig(),
		Plugins:         PluginMap(impl),
	})
}

// RPCPlugin bridges Remote over net/rpc.
type RPCPlugin struct {
	Impl Remote
}

func (p *RPCPlugin) Server(*plugin.MuxBroker) (interface{}, error) {
	return &RPCServer{Impl: p.Impl}, nil
}

func (p *RPCPlugin) Client(_ *plugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &RPCClient{client: c}, nil
}

// CallArgs is the request of RPCServer.Call.
type CallArgs struct {
	Tool string
	Args []byte
}

// RPCServer is the capability-side net/rpc receiver.
type RPCServer struct {
	Impl Remote
}

func (s *RPCServer) Tools(_ interface{}, resp *[]Spec) error {
	specs, err := s.Impl.Tools()
	if err != nil {
		return err
	}
	*resp = specs
	return nil
}

func (s *RPCServer) Call(args CallArgs, resp *string) error {
	out, err := s.Impl.Call(args.Tool, args.Args)
	if err != nil {
		return err
	}
	*resp = out
	return nil
}

// RPCClient is the host-side Remote backed by an RPC connection.
type RPCClient struct {
	client *rpc.Client
}

func (c *RPCClient) Tools() ([]Spec, error) {
	var resp []Spec
	if err := c.client.Call("Plugin.Tools", new(interface{}), &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *RPCClient) Call(tool string, argsJSON []byte) (string, error) {
	var resp string
	err := c.client.Call("Plugin.Call", CallArgs{Tool: tool, Args: argsJSON}, &resp)
	return resp, err
}
