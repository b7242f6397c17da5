package server

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeAndShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := Server{}
	addr, err := server.Listen(ctx, "127.0.0.1:0")
	require.NoError(t, err)
	assert.NotZero(t, addr.Port)
	assert.Equal(t, "http://"+addr.AddrPort().String(), server.URL())

	served := make(chan error, 1)
	go func() {
		served <- server.Serve(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "pong")
		}))
	}()

	resp, err := http.Get(server.URL() + "/ping")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "pong", string(body))

	require.NoError(t, server.ShutdownWithTimeout(time.Second))
	select {
	case err := <-served:
		assert.True(t, IsClosedError(err))
	case <-time.After(time.Second):
		assert.Fail(t, "server did not stop serving")
	}
}

func TestServeRequiresListen(t *testing.T) {
	server := Server{}
	assert.Error(t, server.Serve(http.NotFoundHandler()))
	assert.Nil(t, server.Address())
	assert.Equal(t, "", server.URL())
	assert.NoError(t, server.Shutdown(context.Background()))
}

func TestShutdownBeforeServe(t *testing.T) {
	server := Server{}
	_, err := server.Listen(context.Background(), "127.0.0.1:0")
	require.NoError(t, err)

	require.NoError(t, server.ShutdownWithTimeout(time.Second))
	err = server.Serve(http.NotFoundHandler())
	require.Error(t, err)
	assert.True(t, IsClosedError(err))
}
