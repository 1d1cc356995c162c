package xclient_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trickstertwo/xcaller/xclient"
)

func TestConnectorRegistry(t *testing.T) {
	_, err := xclient.NewConnector("nope", nil)
	var unknown xclient.ErrUnknownConnector
	require.ErrorAs(t, err, &unknown)
	assert.Contains(t, err.Error(), "nope")

	assert.Error(t, xclient.RegisterConnector("", func(map[string]any) (xclient.Connector, error) { return nil, nil }))
	assert.Error(t, xclient.RegisterConnector("fake", nil))

	var gotCfg map[string]any
	require.NoError(t, xclient.RegisterConnector("fake", func(cfg map[string]any) (xclient.Connector, error) {
		gotCfg = cfg
		return newFakeConn(), nil
	}))
	assert.Contains(t, xclient.Connectors(), "fake")

	conn, err := xclient.NewConnector("fake", map[string]any{"k": "v"})
	require.NoError(t, err)
	assert.Equal(t, "v", gotCfg["k"])

	env := newEnv(t)
	c, err := xclient.New(env, conn)
	require.NoError(t, err)
	require.NoError(t, c.Connect(context.Background()))
	<-conn.(*fakeConn).done
}
