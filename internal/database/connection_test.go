package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/surrealdb/surrealdb.go"
)

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"refused", errors.New("dial tcp: connection refused"), true},
		{"eof", errors.New("read: unexpected EOF"), true},
		{"broken pipe", errors.New("write: broken pipe"), true},
		{"websocket closed", errors.New("websocket: close 1006 (abnormal closure)"), true},
		{"not connected", NewDBError(ErrNotConnected, "database not connected"), true},
		{"application", errors.New("The function 'fn::nope' does not exist"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isConnectionError(tt.err))
		})
	}
}

func TestRedactDBURL(t *testing.T) {
	assert.Equal(t, "ws://root:xxxxx@localhost:8000/rpc", redactDBURL("ws://root:secret@localhost:8000/rpc"))
	assert.Equal(t, "ws://localhost:8000/rpc", redactDBURL("ws://localhost:8000/rpc"))
	assert.Equal(t, "invalid-url", redactDBURL("://bad"))
}

func TestConnection_NotConnected(t *testing.T) {
	conn := NewConnection(nil)

	err := conn.WithConnection(context.Background(), func(db *surrealdb.DB) error {
		t.Fatal("callback must not run without a connection")
		return nil
	})

	assert.ErrorIs(t, err, ErrNotConnected)
	assert.False(t, conn.IsHealthy())
	assert.ErrorIs(t, conn.Ping(context.Background()), ErrNotConnected)
	assert.NoError(t, conn.Close(context.Background()))
	assert.NoError(t, conn.Close(context.Background()), "close is idempotent")
}

func TestConnection_Options(t *testing.T) {
	conn := NewConnection(nil, WithHealthInterval(time.Second), WithHealthInterval(0), withBackoff(fastBackoff(1)))
	assert.Equal(t, time.Second, conn.healthInterval, "non-positive intervals are ignored")
	assert.Equal(t, 1, conn.backoff.retries)
}

func TestConnection_WithConnectionRunsOnce(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		reconnects int
	}{
		{"success", nil, 0},
		{"application error", errors.New("The function 'fn::x' already exists"), 0},
		{"connection error", errors.New("read: unexpected EOF"), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := NewConnection(nil, withBackoff(fastBackoff(2)))
			conn.db = &surrealdb.DB{}
			dials := 0
			conn.reconnect = func(context.Context) error {
				dials++
				return nil
			}

			calls := 0
			err := conn.WithConnection(context.Background(), func(*surrealdb.DB) error {
				calls++
				return tt.err
			})

			assert.Equal(t, 1, calls, "the statement must not be repeated")
			assert.Equal(t, tt.reconnects, dials)
			if tt.err == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.err)
			}
		})
	}

	t.Run("reconnect failure keeps the original error", func(t *testing.T) {
		conn := NewConnection(nil, withBackoff(fastBackoff(2)))
		conn.db = &surrealdb.DB{}
		dials := 0
		conn.reconnect = func(context.Context) error {
			dials++
			return errors.New("dial tcp: connection refused")
		}
		lost := errors.New("websocket: close 1006 (abnormal closure)")

		err := conn.WithConnection(context.Background(), func(*surrealdb.DB) error { return lost })

		assert.ErrorIs(t, err, lost)
		assert.Equal(t, 3, dials, "one attempt plus two retries")
	})
}

func TestConnection_WithConnection(t *testing.T) {
	conn := setupTestConn(t)

	t.Run("reconnects on connection error without repeating the call", func(t *testing.T) {
		calls := 0
		before := conn.Reconnects()
		lost := errors.New("simulated error: unexpected eof")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		err := conn.WithConnection(ctx, func(db *surrealdb.DB) error {
			calls++
			return lost
		})
		assert.ErrorIs(t, err, lost)
		assert.Equal(t, 1, calls)
		assert.Equal(t, before+1, conn.Reconnects())
		assert.True(t, conn.IsHealthy())

		err = conn.WithConnection(ctx, func(db *surrealdb.DB) error {
			_, err := surrealdb.Query[any](ctx, db, "RETURN 1", nil)
			return err
		})
		require.NoError(t, err, "the next call should use the new session")
	})

	t.Run("does not reconnect on application error", func(t *testing.T) {
		calls := 0
		appErr := errors.New("application-level error: function does not exist")

		err := conn.WithConnection(context.Background(), func(db *surrealdb.DB) error {
			calls++
			return appErr
		})

		assert.ErrorIs(t, err, appErr)
		assert.Equal(t, 1, calls)
	})

	t.Run("ping", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, conn.Ping(ctx))
		assert.True(t, conn.IsHealthy())
	})
}
