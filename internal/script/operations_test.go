package script

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/scriptops/internal/database"
	"github.com/nfrund/scriptops/internal/pubsub"
)

// mockExecutor implements database.Executor for testing
type mockExecutor struct {
	mock.Mock
}

func (m *mockExecutor) Query(ctx context.Context, query string, params map[string]any) (any, error) {
	args := m.Called(ctx, query, params)
	return args.Get(0), args.Error(1)
}

func (m *mockExecutor) Execute(ctx context.Context, query string, params map[string]any) error {
	args := m.Called(ctx, query, params)
	return args.Error(0)
}

// recordingPublisher implements pubsub.Publisher for testing
type recordingPublisher struct {
	mu       sync.Mutex
	messages []pubsub.Message
	err      error
}

func (p *recordingPublisher) Publish(ctx context.Context, msg pubsub.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) events(t *testing.T) []Event {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, 0, len(p.messages))
	for _, msg := range p.messages {
		ev, err := DecodeEvent(msg)
		require.NoError(t, err)
		out = append(out, ev)
	}
	return out
}

func dbErr(kind error, msg string) error {
	return database.NewDBError(fmt.Errorf("%w: %w", kind, errors.New(msg)), "query failed")
}

func infoWith(names ...string) map[string]any {
	fns := make(map[string]any, len(names))
	for _, n := range names {
		fns[n] = "DEFINE FUNCTION fn::" + n + "() {}"
	}
	return map[string]any{"functions": fns, "tables": map[string]any{}}
}

func newTestOps(t *testing.T, overwrite bool) (*SurrealOperations, *mockExecutor, *recordingPublisher) {
	t.Helper()
	exec := &mockExecutor{}
	pub := &recordingPublisher{}
	ops, err := NewOperations(Dependencies{Executor: exec, Publisher: pub, Overwrite: overwrite})
	require.NoError(t, err)
	return ops, exec, pub
}

const addCode = "function(a,b){return a+b;}"

func TestNewOperations_RequiresExecutor(t *testing.T) {
	_, err := NewOperations(Dependencies{})
	assert.Error(t, err)
}

func TestRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("named script", func(t *testing.T) {
		ops, exec, pub := newTestOps(t, false)
		query := defineFunctionQuery("add", []string{"a", "b"}, addCode, false)
		exec.On("Execute", mock.Anything, query, mock.Anything).Return(nil).Once()

		s, err := NewNamedScript("add", addCode)
		require.NoError(t, err)

		ref, err := ops.Register(ctx, s)
		require.NoError(t, err)
		assert.Equal(t, "add", ref.Name())
		assert.Equal(t, []string{"a", "b"}, ref.Params())
		assert.Equal(t, addCode, ref.Code())
		exec.AssertExpectations(t)

		assert.Equal(t, []Event{{Name: "add", Params: []string{"a", "b"}}}, pub.events(t))
		assert.Equal(t, TopicRegistered, pub.messages[0].Topic)
	})

	t.Run("unnamed script gets a generated name", func(t *testing.T) {
		ops, exec, _ := newTestOps(t, false)
		exec.On("Execute", mock.Anything, mock.MatchedBy(func(q string) bool {
			return strings.HasPrefix(q, "DEFINE FUNCTION fn::func_")
		}), mock.Anything).Return(nil).Once()

		ref, err := ops.Register(ctx, MustScript("return 1;"))
		require.NoError(t, err)
		assert.Regexp(t, `^func_[0-9a-f]{32}$`, ref.Name())
		exec.AssertExpectations(t)
	})

	t.Run("duplicate name", func(t *testing.T) {
		ops, exec, pub := newTestOps(t, false)
		exec.On("Execute", mock.Anything, mock.Anything, mock.Anything).
			Return(dbErr(database.ErrAlreadyExists, "The function 'fn::add' already exists")).Once()

		s, _ := NewNamedScript("add", addCode)
		_, err := ops.Register(ctx, s)
		assert.ErrorIs(t, err, ErrAlreadyExists)
		assert.ErrorIs(t, err, ErrDataAccess)
		assert.ErrorIs(t, err, database.ErrAlreadyExists)

		var se *ScriptError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "register", se.Op)
		assert.Equal(t, "add", se.Name)
		assert.Empty(t, pub.events(t))
	})

	t.Run("overwrite", func(t *testing.T) {
		ops, exec, _ := newTestOps(t, true)
		query := defineFunctionQuery("add", []string{"a", "b"}, addCode, true)
		exec.On("Execute", mock.Anything, query, mock.Anything).Return(nil).Once()

		s, _ := NewNamedScript("add", addCode)
		_, err := ops.Register(ctx, s)
		require.NoError(t, err)
		exec.AssertExpectations(t)
	})

	t.Run("WithOverwrite leaves the original untouched", func(t *testing.T) {
		ops, _, _ := newTestOps(t, false)
		assert.True(t, ops.WithOverwrite(true).overwrite)
		assert.False(t, ops.overwrite)
	})

	t.Run("nil script", func(t *testing.T) {
		ops, exec, _ := newTestOps(t, false)

		_, err := ops.Register(ctx, nil)
		assert.ErrorIs(t, err, ErrInvalidScript)
		assert.NotErrorIs(t, err, ErrDataAccess)
		exec.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("publish failure does not fail register", func(t *testing.T) {
		ops, exec, pub := newTestOps(t, false)
		pub.err = errors.New("bus closed")
		exec.On("Execute", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

		_, err := ops.Register(ctx, MustScript("return 1;"))
		assert.NoError(t, err)
	})
}

func TestExecute(t *testing.T) {
	ctx := context.Background()
	args := map[string]any{"arg0": 2, "arg1": 3}

	t.Run("registered name is called", func(t *testing.T) {
		ops, exec, _ := newTestOps(t, false)
		exec.On("Query", mock.Anything, infoForDBQuery, mock.Anything).Return(infoWith("add"), nil).Once()
		exec.On("Query", mock.Anything, callFunctionQuery("add", 2), args).Return(5, nil).Once()

		s, _ := NewNamedScript("add", addCode)
		got, err := ops.Execute(ctx, s, 2, 3)
		require.NoError(t, err)
		assert.Equal(t, 5, got)
		exec.AssertExpectations(t)
	})

	t.Run("unregistered name is evaluated", func(t *testing.T) {
		ops, exec, _ := newTestOps(t, false)
		exec.On("Query", mock.Anything, infoForDBQuery, mock.Anything).Return(infoWith(), nil).Once()
		exec.On("Query", mock.Anything, evalQuery(addCode, nil, 2), args).Return(5, nil).Once()

		s, _ := NewNamedScript("add", addCode)
		got, err := ops.Execute(ctx, s, 2, 3)
		require.NoError(t, err)
		assert.Equal(t, 5, got)
		exec.AssertExpectations(t)
	})

	t.Run("unnamed script is evaluated without lookup", func(t *testing.T) {
		ops, exec, _ := newTestOps(t, false)
		exec.On("Query", mock.Anything, evalQuery(addCode, nil, 2), args).Return(5, nil).Once()

		got, err := ops.Execute(ctx, MustScript(addCode), 2, 3)
		require.NoError(t, err)
		assert.Equal(t, 5, got)
		exec.AssertNumberOfCalls(t, "Query", 1)
	})

	t.Run("evaluation error", func(t *testing.T) {
		ops, exec, _ := newTestOps(t, false)
		exec.On("Query", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, dbErr(database.ErrQueryFailed, "Problem with embedded script function")).Once()

		_, err := ops.Execute(ctx, MustScript("throw new Error('boom');"))
		assert.ErrorIs(t, err, ErrDataAccess)
		assert.ErrorIs(t, err, database.ErrQueryFailed)
	})

	t.Run("nil script", func(t *testing.T) {
		ops, _, _ := newTestOps(t, false)
		_, err := ops.Execute(ctx, nil)
		assert.ErrorIs(t, err, ErrInvalidScript)
	})
}

func TestCall(t *testing.T) {
	ctx := context.Background()

	t.Run("by name", func(t *testing.T) {
		ops, exec, _ := newTestOps(t, false)
		exec.On("Query", mock.Anything, "RETURN fn::add($arg0, $arg1);", map[string]any{"arg0": 2, "arg1": 3}).
			Return(5, nil).Once()

		got, err := ops.Call(ctx, "fn::add", 2, 3)
		require.NoError(t, err)
		assert.Equal(t, 5, got)
		exec.AssertExpectations(t)
	})

	t.Run("empty name", func(t *testing.T) {
		ops, exec, _ := newTestOps(t, false)
		_, err := ops.Call(ctx, "")
		assert.ErrorIs(t, err, ErrInvalidName)
		exec.AssertNotCalled(t, "Query", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unknown function", func(t *testing.T) {
		ops, exec, _ := newTestOps(t, false)
		exec.On("Query", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, dbErr(database.ErrNotFound, "The function 'fn::nope' does not exist")).Once()

		_, err := ops.Call(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, err, ErrDataAccess)
	})
}

func TestExists(t *testing.T) {
	ctx := context.Background()

	ops, exec, _ := newTestOps(t, false)
	exec.On("Query", mock.Anything, infoForDBQuery, mock.Anything).Return(infoWith("add"), nil)

	found, err := ops.Exists(ctx, "add")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = ops.Exists(ctx, "fn::add")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = ops.Exists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	_, err = ops.Exists(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidName)

	t.Run("connectivity failure", func(t *testing.T) {
		ops, exec, _ := newTestOps(t, false)
		exec.On("Query", mock.Anything, infoForDBQuery, mock.Anything).
			Return(nil, database.NewDBError(database.ErrNotConnected, "database not connected")).Once()

		_, err := ops.Exists(ctx, "add")
		assert.ErrorIs(t, err, ErrDataAccess)
		assert.ErrorIs(t, err, database.ErrNotConnected)
	})
}

func TestScriptNames(t *testing.T) {
	ctx := context.Background()

	t.Run("empty", func(t *testing.T) {
		ops, exec, _ := newTestOps(t, false)
		exec.On("Query", mock.Anything, infoForDBQuery, mock.Anything).Return(infoWith(), nil).Once()

		names, err := ops.ScriptNames(ctx)
		require.NoError(t, err)
		assert.Empty(t, names)
	})

	t.Run("registered", func(t *testing.T) {
		ops, exec, _ := newTestOps(t, false)
		exec.On("Query", mock.Anything, infoForDBQuery, mock.Anything).
			Return(map[any]any{"functions": map[any]any{"add": "x", "fn::math::mul": "y"}}, nil).Once()

		names, err := ops.ScriptNames(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"add", "math::mul"}, names.Sorted())
	})
}

func TestRemove(t *testing.T) {
	ctx := context.Background()

	t.Run("publishes removal", func(t *testing.T) {
		ops, exec, pub := newTestOps(t, false)
		exec.On("Execute", mock.Anything, "REMOVE FUNCTION fn::add;", mock.Anything).Return(nil).Once()

		require.NoError(t, ops.Remove(ctx, "add"))
		assert.Equal(t, []Event{{Name: "add", Params: []string{}}}, pub.events(t))
		assert.Equal(t, TopicRemoved, pub.messages[0].Topic)
	})

	t.Run("unknown function", func(t *testing.T) {
		ops, exec, pub := newTestOps(t, false)
		exec.On("Execute", mock.Anything, mock.Anything, mock.Anything).
			Return(dbErr(database.ErrNotFound, "The function 'fn::add' does not exist")).Once()

		err := ops.Remove(ctx, "add")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Empty(t, pub.events(t))
	})
}

func TestLookup(t *testing.T) {
	ctx := context.Background()
	ops, exec, _ := newTestOps(t, false)
	exec.On("Query", mock.Anything, infoForDBQuery, mock.Anything).Return(infoWith("add"), nil)

	def, err := ops.Lookup(ctx, "add")
	require.NoError(t, err)
	assert.Equal(t, "DEFINE FUNCTION fn::add() {}", def)

	_, err = ops.Lookup(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.EqualError(t, err, `script lookup "missing": data access failure: script not found`)
}
