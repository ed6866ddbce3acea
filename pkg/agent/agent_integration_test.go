//go:build integration
// +build integration

package agent

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/mscrnt/pwmbench/pkg/harness"
	_ "github.com/mscrnt/pwmbench/pkg/scenario/spiregs"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAgentMutualTLS runs the agent with client certificates required
func TestAgentMutualTLS(t *testing.T) {
	dir := t.TempDir()
	files, err := GenerateTLSFiles(dir, nil, time.Hour)
	require.NoError(t, err)
	port := findAvailablePort(t)

	logger, _ := test.NewNullLogger()
	server, err := NewServer(files.ServerConfig(port), harness.DefaultConfig(), nil, logger)
	require.NoError(t, err)

	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Start() }()
	t.Cleanup(func() {
		assert.NoError(t, server.Shutdown(context.Background()))
		assert.NoError(t, <-serverErr)
	})

	client, err := NewClient(files.ClientConfig("localhost", port))
	require.NoError(t, err)

	ctx := context.Background()
	require.Eventually(t, func() bool {
		return client.CheckHealth(ctx) == nil
	}, 5*time.Second, 50*time.Millisecond)

	info, err := client.SysInfo(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, info.Host.Architecture)

	resp, err := client.Run(ctx, RunRequest{Scenario: "spi-registers"})
	require.NoError(t, err)
	assert.True(t, resp.Result.Success, resp.Result.Error)
	assert.Zero(t, resp.RunID)

	// no client certificate
	anonymous, err := NewClient(ClientConfig{Host: "localhost", Port: port, CAFile: files.CACert})
	require.NoError(t, err)
	assert.Error(t, anonymous.CheckHealth(ctx))
}

func findAvailablePort(t *testing.T) int {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	_ = listener.Close()
	return port
}
