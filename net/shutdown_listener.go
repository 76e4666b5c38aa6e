package net

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

const defaultShutdownPollInterval = 500 * time.Millisecond

type (
	// ShutdownListener counts the connections accepted and not yet
	// closed, so that the gateway can wait for the in-flight streams
	// before exiting.
	ShutdownListener struct {
		net.Listener
		activeConns  atomic.Int64
		pollInterval time.Duration
	}

	shutdownListenerConn struct {
		net.Conn
		listener *ShutdownListener
		once     sync.Once
	}
)

var _ net.Listener = &ShutdownListener{}

func NewShutdownListener(l net.Listener) *ShutdownListener {
	return &ShutdownListener{Listener: l, pollInterval: defaultShutdownPollInterval}
}

func (l *ShutdownListener) Accept() (net.Conn, error) {
	c, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}

	l.activeConns.Add(1)
	return &shutdownListenerConn{Conn: c, listener: l}, nil
}

// ActiveConnections returns the number of accepted and not closed
// connections.
func (l *ShutdownListener) ActiveConnections() int64 {
	return l.activeConns.Load()
}

// Shutdown blocks until all the accepted connections are closed or the
// context is done.
func (l *ShutdownListener) Shutdown(ctx context.Context) error {
	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()
	for {
		n := l.activeConns.Load()
		if n == 0 {
			return nil
		}

		log.Debugf("Waiting for %d active connections", n)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *shutdownListenerConn) Close() error {
	err := c.Conn.Close()
	c.once.Do(func() { c.listener.activeConns.Add(-1) })
	return err
}
