//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package connection

import (
	"sync"
	"testing"
	"time"

	"edgexfoundry/app-rfid-reader-gateway/internal/hardware"
	"github.com/edgexfoundry/go-mod-core-contracts/clients/logger"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counter struct {
	mu       sync.Mutex
	opens    int
	closes   int
	next     int
	openErr  error
	closeErr error
}

func (c *counter) open() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.openErr != nil {
		return 0, c.openErr
	}
	c.opens++
	c.next++
	return c.next, nil
}

func (c *counter) close(int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closeErr != nil {
		return c.closeErr
	}
	c.closes++
	return nil
}

func newCounted() (*Manager[int], *counter) {
	c := &counter{}
	return NewManager(c.open, c.close), c
}

func TestManagerRefCounting(t *testing.T) {
	for _, n := range []int{1, 2, 5, 20} {
		m, c := newCounted()

		var conn int
		for i := 0; i < n; i++ {
			var err error
			conn, err = m.Acquire()
			require.NoError(t, err)
		}
		assert.Equal(t, 1, c.opens, "only the first acquire opens")
		require.NoError(t, m.RequestClosing(conn))

		for i := 0; i < n-1; i++ {
			require.NoError(t, m.Release(conn))
			assert.Equal(t, 0, c.closes, "closed with %d users left", n-i-1)
		}
		require.NoError(t, m.Release(conn))
		assert.Equal(t, 1, c.closes)

		_, open := m.Current()
		assert.False(t, open)

		// further releases of the stale value change nothing
		require.NoError(t, m.Release(conn))
		assert.Equal(t, 1, c.closes)
	}
}

func TestManagerRequestClosingUnused(t *testing.T) {
	m, c := newCounted()
	conn, err := m.Acquire()
	require.NoError(t, err)
	require.NoError(t, m.Release(conn))
	assert.Equal(t, 0, c.closes, "release without a close request keeps the connection")

	require.NoError(t, m.RequestClosing(conn))
	assert.Equal(t, 1, c.closes)
	require.NoError(t, m.RequestClosing(conn))
	assert.Equal(t, 1, c.closes, "closes exactly once")
}

func TestManagerStaleHandle(t *testing.T) {
	m, c := newCounted()
	first, err := m.Acquire()
	require.NoError(t, err)
	require.NoError(t, m.RequestClosing(first))
	require.NoError(t, m.Release(first))
	require.Equal(t, 1, c.closes)

	second, err := m.Acquire()
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	require.NoError(t, m.RequestClosing(first))
	require.NoError(t, m.Release(first))
	assert.Equal(t, uint(1), m.Users())
	assert.Equal(t, 1, c.closes)
	cur, open := m.Current()
	assert.True(t, open)
	assert.Equal(t, second, cur)
}

func TestManagerOpenFailure(t *testing.T) {
	m, c := newCounted()
	c.openErr = errors.New("no device")
	_, err := m.Acquire()
	require.Error(t, err)
	assert.Equal(t, uint(0), m.Users())

	c.openErr = nil
	_, err = m.Acquire()
	require.NoError(t, err)
	assert.Equal(t, uint(1), m.Users())
}

func TestManagerCloseFailure(t *testing.T) {
	m, c := newCounted()
	conn, err := m.Acquire()
	require.NoError(t, err)
	require.NoError(t, m.RequestClosing(conn))

	c.closeErr = errors.New("stuck")
	require.Error(t, m.Release(conn))
	_, open := m.Current()
	assert.True(t, open, "a failed close keeps the connection registered")

	c.closeErr = nil
	require.NoError(t, m.RequestClosing(conn))
	assert.Equal(t, 1, c.closes)
}

func TestManagerConcurrentUse(t *testing.T) {
	m, c := newCounted()
	const workers = 16

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			conn, err := m.Acquire()
			if !assert.NoError(t, err) {
				return
			}
			time.Sleep(time.Millisecond)
			assert.NoError(t, m.Release(conn))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, c.opens)
	assert.Equal(t, uint(0), m.Users())
}

type fakeIO struct {
	connects    int
	disconnects int
	consumer    hardware.ConnectionConsumer
	timeout     time.Duration
}

func (f *fakeIO) Connect(consumer hardware.ConnectionConsumer, timeout time.Duration) error {
	f.connects++
	f.consumer = consumer
	f.timeout = timeout
	return nil
}

func (f *fakeIO) Disconnect() error {
	f.disconnects++
	return nil
}

func (f *fakeIO) IOConfiguration(uint16) ([]hardware.IOConfiguration, error) { return nil, nil }
func (f *fakeIO) SetIOConfiguration([]hardware.IOConfiguration) error    { return nil }

func TestDeviceYieldsToOtherParty(t *testing.T) {
	dev := &fakeIO{}
	io := NewIO(logger.NewMockClient(), dev, 0)

	h, err := io.Acquire()
	require.NoError(t, err)
	require.Equal(t, 1, dev.connects)
	assert.Equal(t, DefaultConnectTimeout, dev.timeout)
	assert.Same(t, io, dev.consumer)

	// the device tells us someone else wants it while we're busy
	dev.consumer.ConnectionAttempted()
	assert.Equal(t, 0, dev.disconnects)

	require.NoError(t, io.Release(h))
	assert.Equal(t, 1, dev.disconnects)

	h2, err := io.Acquire()
	require.NoError(t, err)
	assert.NotEqual(t, h, h2)
	assert.Equal(t, 2, dev.connects)

	require.NoError(t, io.Release(h2))
	dev.consumer.ConnectionAttempted()
	assert.Equal(t, 2, dev.disconnects)

	// nothing open: a connection attempt is ignored
	dev.consumer.ConnectionAttempted()
	dev.consumer.KeepAlive()
	assert.Equal(t, 2, dev.disconnects)
}
