package bridge

import (
	"errors"
	"sync"
)

// fakeHost records everything injected and bound. It never executes scripts;
// tests play the script side by calling the result sink themselves.
type fakeHost struct {
	mu      sync.Mutex
	scripts []string
	batches [][]string
	bound   map[string][]Operation
	sink    func(string)
	fail    error
	stale   map[uint64]bool
	onLoop  bool
}

func newFakeHost() *fakeHost {
	return &fakeHost{bound: make(map[string][]Operation)}
}

func (h *fakeHost) Inject(script string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fail != nil {
		return h.fail
	}
	h.scripts = append(h.scripts, script)
	return nil
}

func (h *fakeHost) Bind(name string, ops []Operation) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fail != nil {
		return h.fail
	}
	h.bound[name] = ops
	return nil
}

func (h *fakeHost) SetResultSink(sink func(string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sink = sink
}

func (h *fakeHost) report(raw string) {
	h.mu.Lock()
	sink := h.sink
	h.mu.Unlock()
	sink(raw)
}

func (h *fakeHost) injected() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.scripts...)
}

func (h *fakeHost) setFail(err error) {
	h.mu.Lock()
	h.fail = err
	h.mu.Unlock()
}

// batchHost additionally implements BatchInjector.
type batchHost struct {
	*fakeHost
}

func (h batchHost) InjectBatch(scripts ...string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fail != nil {
		return h.fail
	}
	h.batches = append(h.batches, append([]string(nil), scripts...))
	h.scripts = append(h.scripts, scripts...)
	return nil
}

// validatingHost rejects ids marked stale.
type validatingHost struct {
	*fakeHost
}

func (h validatingHost) Live(id uint64, _ string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.stale[id]
}

func (h validatingHost) OnLoop() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.onLoop
}

var errInjectFailed = errors.New("runtime not running")
