package receiver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jroosing/dnsden/internal/counters"
	"github.com/jroosing/dnsden/internal/workqueue"
)

func TestListenBindsEphemeralPort(t *testing.T) {
	conn, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer conn.Close()

	addr := conn.LocalAddr().(*net.UDPAddr)
	assert.NotZero(t, addr.Port)
}

func TestRunEnqueuesReceivedDatagram(t *testing.T) {
	conn, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer conn.Close()

	q := workqueue.New(counters.New())
	r := New(nil, q, conn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	client, err := net.Dial("udp", conn.LocalAddr().String())
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Write([]byte("hello"))
	require.NoError(t, err)

	item, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), item.Payload)
	assert.NotNil(t, item.ClientUDPAddr)

	cancel()
	conn.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not exit after cancellation")
	}
}
