package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWorker(t *testing.T, handlers map[string]Handler) *Worker {
	t.Helper()
	w := New(handlers, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return w
}

func TestCall(t *testing.T) {
	w := startWorker(t, map[string]Handler{
		Build: func(_ context.Context, arg string) (any, error) {
			return "bundle:" + arg, nil
		},
		"fail": func(context.Context, string) (any, error) {
			return nil, errors.New("broken")
		},
		"panic": func(context.Context, string) (any, error) {
			panic("boom")
		},
	})

	tests := []struct {
		name    string
		arg     string
		want    any
		wantErr string
	}{
		{name: Build, arg: "ios", want: "bundle:ios"},
		{name: "fail", wantErr: "broken"},
		{name: "panic", wantErr: "panic: boom"},
		{name: "missing", wantErr: `unknown request "missing"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := w.Call(context.Background(), tt.name, tt.arg)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConcurrentCallsAreCorrelated(t *testing.T) {
	w := startWorker(t, map[string]Handler{
		"echo": func(_ context.Context, arg string) (any, error) {
			if arg == "slow" {
				time.Sleep(50 * time.Millisecond)
			}
			return strings.ToUpper(arg), nil
		},
	})

	args := []string{"slow", "a", "b", "c"}
	results := make([]any, len(args))
	var wg sync.WaitGroup
	for i, arg := range args {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := w.Call(context.Background(), "echo", arg)
			assert.NoError(t, err)
			results[i] = res
		}()
	}
	wg.Wait()

	assert.Equal(t, []any{"SLOW", "A", "B", "C"}, results)
}

func TestCallContextCancelled(t *testing.T) {
	release := make(chan struct{})
	w := startWorker(t, map[string]Handler{
		"block": func(context.Context, string) (any, error) {
			<-release
			return nil, nil
		},
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := w.Call(ctx, "block", "")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCallAfterStop(t *testing.T) {
	w := New(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.Run(ctx)

	_, err := w.Call(context.Background(), Build, "ios")
	require.ErrorIs(t, err, ErrStopped)
}
