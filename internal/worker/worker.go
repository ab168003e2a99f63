// Package worker runs named jobs on a dedicated goroutine. Callers talk to
// it with request/response messages correlated by id.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// Build is the request name for a native bundle build; the argument is
// the platform.
const Build = "build"

// ErrStopped is returned by Call once the worker has stopped.
var ErrStopped = errors.New("worker stopped")

// Request asks the worker to run the handler registered under Name.
type Request struct {
	ID   string
	Name string
	Arg  string
}

// Response answers the Request with the same ID.
type Response struct {
	ID     string
	Result any
	Err    error
}

// Handler serves one request name.
type Handler func(ctx context.Context, arg string) (any, error)

// Worker dispatches requests to handlers.
type Worker struct {
	handlers  map[string]Handler
	requests  chan Request
	responses chan Response
	logger    *log.Logger

	mu      sync.Mutex
	pending map[string]chan Response
	stopped chan struct{}
}

// New returns a Worker serving handlers. Run must be started before Call
// returns anything.
func New(handlers map[string]Handler, logger *log.Logger) *Worker {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Worker{
		handlers:  handlers,
		requests:  make(chan Request),
		responses: make(chan Response),
		logger:    logger,
		pending:   make(map[string]chan Response),
		stopped:   make(chan struct{}),
	}
}

// Run serves requests until ctx is done. Each request runs on its own
// goroutine so a slow build does not hold up the others.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.stopped)
	for {
		select {
		case <-ctx.Done():
			w.failPending(ErrStopped)
			return
		case req := <-w.requests:
			go w.handle(ctx, req)
		case resp := <-w.responses:
			w.deliver(resp)
		}
	}
}

// Call sends a request and waits for its response.
func (w *Worker) Call(ctx context.Context, name, arg string) (any, error) {
	req := Request{ID: uuid.NewString(), Name: name, Arg: arg}
	reply := make(chan Response, 1)
	w.mu.Lock()
	w.pending[req.ID] = reply
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		delete(w.pending, req.ID)
		w.mu.Unlock()
	}()

	select {
	case w.requests <- req:
	case <-w.stopped:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case resp := <-reply:
		return resp.Result, resp.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (w *Worker) handle(ctx context.Context, req Request) {
	resp := Response{ID: req.ID}
	defer func() {
		if r := recover(); r != nil {
			resp.Result, resp.Err = nil, fmt.Errorf("%s: panic: %v", req.Name, r)
			w.logger.Error("request panicked", "request", req.Name, "id", req.ID, "panic", r)
		}
		select {
		case w.responses <- resp:
		case <-w.stopped:
		}
	}()

	handler, ok := w.handlers[req.Name]
	if !ok {
		resp.Err = fmt.Errorf("unknown request %q", req.Name)
		return
	}
	w.logger.Debug("request started", "request", req.Name, "arg", req.Arg, "id", req.ID)
	resp.Result, resp.Err = handler(ctx, req.Arg)
	if resp.Err != nil {
		w.logger.Error("request failed", "request", req.Name, "arg", req.Arg, "error", resp.Err)
	}
}

func (w *Worker) deliver(resp Response) {
	w.mu.Lock()
	reply, ok := w.pending[resp.ID]
	w.mu.Unlock()
	if !ok {
		w.logger.Debug("dropping response for abandoned request", "id", resp.ID)
		return
	}
	reply <- resp
}

func (w *Worker) failPending(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, reply := range w.pending {
		select {
		case reply <- Response{ID: id, Err: err}:
		default:
		}
	}
}
