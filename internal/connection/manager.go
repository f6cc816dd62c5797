//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

// Package connection shares one physical device connection between concurrent users.
package connection

import (
	"sync"

	"github.com/pkg/errors"
)

// Manager hands out a single lazily opened connection and counts its users.
// The connection is never closed while it has users:
// a close requested while it's in use is deferred until the last matching Release.
//
// Release and RequestClosing ignore values that don't match the held connection,
// so a stale value from before a reopen can't close its successor.
type Manager[T comparable] struct {
	mu       sync.Mutex
	open     func() (T, error)
	close    func(T) error
	conn     T
	isOpen   bool
	refCount uint
	closing  bool
}

func NewManager[T comparable](open func() (T, error), close func(T) error) *Manager[T] {
	return &Manager[T]{open: open, close: close}
}

// Acquire returns the connection, opening it first if necessary,
// and counts the caller as a user until it calls Release.
func (m *Manager[T]) Acquire() (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.isOpen {
		conn, err := m.open()
		if err != nil {
			var zero T
			return zero, errors.Wrap(err, "failed to open connection")
		}
		m.conn, m.isOpen, m.closing = conn, true, false
	}
	m.refCount++
	return m.conn, nil
}

// Release ends one use of the connection.
// If it was the last one and closing was requested, the connection is closed.
func (m *Manager[T]) Release(conn T) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.holds(conn) {
		return nil
	}
	if m.refCount > 0 {
		m.refCount--
	}
	if m.refCount == 0 && m.closing {
		return m.closeLocked()
	}
	return nil
}

// RequestClosing closes the connection now if nobody uses it,
// or else once the last user releases it.
func (m *Manager[T]) RequestClosing(conn T) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.holds(conn) {
		return nil
	}
	if m.refCount == 0 {
		return m.closeLocked()
	}
	m.closing = true
	return nil
}

// Current returns the held connection, if one is open.
func (m *Manager[T]) Current() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn, m.isOpen
}

// Users returns the number of outstanding Acquire calls.
func (m *Manager[T]) Users() uint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refCount
}

func (m *Manager[T]) holds(conn T) bool {
	return m.isOpen && m.conn == conn
}

// closeLocked must be called with mu held.
// On failure the connection stays registered, still marked as closing.
func (m *Manager[T]) closeLocked() error {
	if err := m.close(m.conn); err != nil {
		m.closing = true
		return errors.Wrap(err, "failed to close connection")
	}
	var zero T
	m.conn, m.isOpen, m.closing = zero, false, false
	return nil
}
