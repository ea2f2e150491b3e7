// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package sdk_test

import (
	"testing"

	"github.com/hashicorp/go-plugin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elemarin/paw/pkg/sdk"
)

type upper struct{}

func (upper) Tools() ([]sdk.Spec, error) {
	return []sdk.Spec{{Name: "upper", Description: "Upper-case text.", Schema: `{"type":"object"}`}}, nil
}

func (upper) Call(tool string, args []byte) (string, error) {
	return tool + " " + string(args), nil
}

func TestHandshakeConfig(t *testing.T) {
	cfg := sdk.HandshakeConfig()
	assert.NotZero(t, cfg.ProtocolVersion)
	assert.NotEmpty(t, cfg.MagicCookieKey)
	assert.NotEmpty(t, cfg.MagicCookieValue)
}

func TestPluginMap(t *testing.T) {
	pm := sdk.PluginMap(nil)
	_, ok := pm[sdk.PluginName]
	assert.True(t, ok)
}

func TestRPCRoundTrip(t *testing.T) {
	client, _ := plugin.TestPluginRPCConn(t, sdk.PluginMap(upper{}), nil)
	t.Cleanup(func() { _ = client.Close() })

	raw, err := client.Dispense(sdk.PluginName)
	require.NoError(t, err)
	remote, ok := raw.(*sdk.RPCClient)
	require.True(t, ok)

	specs, err := remote.Tools()
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, "upper", specs[0].Name)
	assert.Equal(t, `{"type":"object"}`, specs[0].Schema)

	out, err := remote.Call("upper", []byte(`{"text":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, `upper {"text":"x"}`, out)
}
