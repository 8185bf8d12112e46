package database

import (
	"context"
	"testing"
	"time"

	"github.com/nfrund/scriptops/internal/testutils"
	"github.com/stretchr/testify/require"
)

// setupTestConn opens a managed connection against the database described by
// .env.test and closes it when the test finishes.
func setupTestConn(t *testing.T) *Connection {
	t.Helper()

	cfg := testutils.ConfigForTests(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn := NewConnection(cfg)
	require.NoError(t, conn.Connect(ctx), "failed to connect to test database")
	t.Cleanup(func() { _ = conn.Close(context.Background()) })
	return conn
}
