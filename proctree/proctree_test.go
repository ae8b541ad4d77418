package proctree

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeWorld is an in-memory process table implementing Inspector.
type fakeWorld struct {
	mu  sync.Mutex
	seq int

	procs map[int32]*fakeProc
	tree  map[int32][]int32

	openErr     map[int32]error
	childrenErr map[int32]error

	cmdlines   map[int32]string
	cmdlineErr error
	cmdBlocks  bool
	queries    int
}

func newFakeWorld() *fakeWorld {
	return &fakeWorld{
		procs:       make(map[int32]*fakeProc),
		tree:        make(map[int32][]int32),
		openErr:     make(map[int32]error),
		childrenErr: make(map[int32]error),
		cmdlines:    make(map[int32]string),
	}
}

func (w *fakeWorld) addProc(pid, ppid int32, name string) *fakeProc {
	w.mu.Lock()
	defer w.mu.Unlock()
	p := &fakeProc{world: w, pid: pid, name: name, alive: true}
	w.procs[pid] = p
	if ppid != 0 {
		w.tree[ppid] = append(w.tree[ppid], pid)
	}
	return p
}

func (w *fakeWorld) proc(pid int32) *fakeProc {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.procs[pid]
}

func (w *fakeWorld) Open(pid int32) (Handle, error) {
	w.mu.Lock()
	err := w.openErr[pid]
	p := w.procs[pid]
	w.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if p == nil || !p.isAlive() {
		return nil, ErrProcessGone
	}
	return p.open(), nil
}

func (w *fakeWorld) Children(ppid int32) ([]Handle, error) {
	w.mu.Lock()
	childPids := append([]int32(nil), w.tree[ppid]...)
	err := w.childrenErr[ppid]
	w.mu.Unlock()

	var out []Handle
	for _, pid := range childPids {
		p := w.proc(pid)
		if p == nil || !p.isAlive() {
			continue
		}
		out = append(out, p.open())
	}
	return out, err
}

func (w *fakeWorld) CommandLine(ctx context.Context, pid int32) (string, error) {
	w.mu.Lock()
	w.queries++
	line := w.cmdlines[pid]
	err := w.cmdlineErr
	blocks := w.cmdBlocks
	w.mu.Unlock()

	if blocks {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if err != nil {
		return "", err
	}
	return line, nil
}

func (w *fakeWorld) queryCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.queries
}

// assertHandlesReleased checks that every handle the world handed out was
// closed exactly once.
func (w *fakeWorld) assertHandlesReleased(t *testing.T) {
	t.Helper()
	w.mu.Lock()
	defer w.mu.Unlock()
	for pid, p := range w.procs {
		p.mu.Lock()
		assert.Equalf(t, p.opened, p.closes, "pid %d: %d handles opened, %d closed", pid, p.opened, p.closes)
		assert.Zerof(t, p.doubleCloses, "pid %d: handle closed more than once", pid)
		p.mu.Unlock()
	}
}

type fakeProc struct {
	world *fakeWorld
	pid   int32
	name  string

	mu        sync.Mutex
	alive     bool
	ignores   bool
	termErr   error
	termPanic string

	terms        int
	termSeq      []int
	opened       int
	closes       int
	doubleCloses int
}

func (p *fakeProc) open() *fakeHandle {
	p.mu.Lock()
	p.opened++
	p.mu.Unlock()
	return &fakeHandle{proc: p}
}

func (p *fakeProc) isAlive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alive
}

func (p *fakeProc) setAlive(alive bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alive = alive
}

func (p *fakeProc) setIgnores(ignores bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ignores = ignores
}

func (p *fakeProc) setTermErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.termErr = err
}

func (p *fakeProc) setTermPanic(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.termPanic = msg
}

func (p *fakeProc) termCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terms
}

func (p *fakeProc) openedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opened
}

func (p *fakeProc) firstTermSeq() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.termSeq) == 0 {
		return -1
	}
	return p.termSeq[0]
}

type fakeHandle struct {
	proc   *fakeProc
	mu     sync.Mutex
	closed bool
}

func (h *fakeHandle) PID() int32   { return h.proc.pid }
func (h *fakeHandle) Name() string { return h.proc.name }

func (h *fakeHandle) Running() bool {
	return h.proc.isAlive()
}

func (h *fakeHandle) Terminate() error {
	w := h.proc.world
	w.mu.Lock()
	w.seq++
	seq := w.seq
	w.mu.Unlock()

	p := h.proc
	p.mu.Lock()
	defer p.mu.Unlock()
	p.terms++
	p.termSeq = append(p.termSeq, seq)
	if p.termPanic != "" {
		panic(p.termPanic)
	}
	if p.termErr != nil {
		return p.termErr
	}
	if !p.ignores {
		p.alive = false
	}
	return nil
}

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	wasClosed := h.closed
	h.closed = true
	h.mu.Unlock()

	p := h.proc
	p.mu.Lock()
	defer p.mu.Unlock()
	if wasClosed {
		p.doubleCloses++
		return nil
	}
	p.closes++
	return nil
}

type fakeKiller struct {
	mu      sync.Mutex
	pids    []int32
	names   []string
	pidErr  error
	nameErr error
}

func (k *fakeKiller) KillByPID(pid int32) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.pids = append(k.pids, pid)
	return k.pidErr
}

func (k *fakeKiller) KillByName(name string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.names = append(k.names, name)
	return k.nameErr
}

func (k *fakeKiller) pidCalls() []int32 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]int32(nil), k.pids...)
}

func (k *fakeKiller) nameCalls() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]string(nil), k.names...)
}

type fakeNotifier struct {
	ch chan string
}

func (n *fakeNotifier) Notify(text string) {
	n.ch <- text
}

func newTestManager(w *fakeWorld, k *fakeKiller) *Manager {
	return &Manager{
		Inspector:    w,
		Killer:       k,
		KillTimeout:  50 * time.Millisecond,
		PollInterval: time.Millisecond,
	}
}

func TestKillAlreadyExited(t *testing.T) {
	w := newFakeWorld()
	k := &fakeKiller{}
	m := newTestManager(w, k)
	p := w.addProc(10, 0, "app")

	h, err := w.Open(10)
	assert.NoError(t, err)
	p.setAlive(false)

	out := m.Kill(h, 0)
	assert.Equal(t, OutcomeAlreadyGone, out)
	assert.True(t, out.Ok())
	assert.Zero(t, p.termCount())
	assert.Empty(t, k.pidCalls())
	assert.Empty(t, k.nameCalls())
	w.assertHandlesReleased(t)
}

func TestKillTerminates(t *testing.T) {
	w := newFakeWorld()
	k := &fakeKiller{}
	m := newTestManager(w, k)
	p := w.addProc(11, 0, "app")

	h, err := w.Open(11)
	assert.NoError(t, err)

	out := m.Kill(h, 0)
	assert.Equal(t, OutcomeTerminated, out)
	assert.True(t, out.Ok())
	assert.Equal(t, 1, p.termCount())
	assert.False(t, p.isAlive())
	assert.Empty(t, k.pidCalls())
	w.assertHandlesReleased(t)
}

func TestKillIgnoringProcessFallsBack(t *testing.T) {
	w := newFakeWorld()
	k := &fakeKiller{}
	m := newTestManager(w, k)
	p := w.addProc(12, 0, "stubborn")
	p.setIgnores(true)

	h, err := w.Open(12)
	assert.NoError(t, err)

	out := m.Kill(h, 20*time.Millisecond)
	assert.Equal(t, OutcomeFallback, out)
	assert.True(t, out.Ok())
	assert.Equal(t, []int32{12}, k.pidCalls())
	assert.Equal(t, []string{"stubborn"}, k.nameCalls())
	w.assertHandlesReleased(t)
}

func TestKillSignalErrorFallsBack(t *testing.T) {
	w := newFakeWorld()
	k := &fakeKiller{}
	m := newTestManager(w, k)
	p := w.addProc(13, 0, "denied")
	p.setTermErr(errors.New("access denied"))

	h, err := w.Open(13)
	assert.NoError(t, err)

	out := m.Kill(h, 0)
	assert.Equal(t, OutcomeFallback, out)
	assert.Equal(t, []int32{13}, k.pidCalls())
	assert.Equal(t, []string{"denied"}, k.nameCalls())
	w.assertHandlesReleased(t)
}

func TestKillPanicFallsBack(t *testing.T) {
	w := newFakeWorld()
	k := &fakeKiller{}
	m := newTestManager(w, k)
	p := w.addProc(14, 0, "wild")
	p.setTermPanic("handle torn away")

	h, err := w.Open(14)
	assert.NoError(t, err)

	out := m.Kill(h, 0)
	assert.Equal(t, OutcomeFallback, out)
	assert.Equal(t, []int32{14}, k.pidCalls())
	w.assertHandlesReleased(t)
}

func TestKillFallbackFailure(t *testing.T) {
	w := newFakeWorld()
	k := &fakeKiller{pidErr: errors.New("taskkill missing")}
	m := newTestManager(w, k)
	n := &fakeNotifier{ch: make(chan string, 1)}
	m.Notifier = n
	p := w.addProc(15, 0, "stubborn")
	p.setIgnores(true)

	h, err := w.Open(15)
	assert.NoError(t, err)

	out := m.Kill(h, 20*time.Millisecond)
	assert.Equal(t, OutcomeFailed, out)
	assert.False(t, out.Ok())
	w.assertHandlesReleased(t)

	select {
	case text := <-n.ch:
		assert.Contains(t, text, "force kill")
	case <-time.After(time.Second):
		t.Fatal("no notification arrived")
	}
}

func TestTerminateTreeGoneProcess(t *testing.T) {
	w := newFakeWorld()
	k := &fakeKiller{}
	m := newTestManager(w, k)

	assert.True(t, m.TerminateTree(404))
	assert.Empty(t, k.pidCalls())
	assert.Empty(t, k.nameCalls())
}

func TestTerminateTreeOpenError(t *testing.T) {
	w := newFakeWorld()
	k := &fakeKiller{}
	m := newTestManager(w, k)
	w.addProc(5, 0, "app")
	w.openErr[5] = errors.New("lookup failed")

	assert.False(t, m.TerminateTree(5))
}

func TestTerminateTreeSingleProcess(t *testing.T) {
	w := newFakeWorld()
	k := &fakeKiller{}
	m := newTestManager(w, k)
	p := w.addProc(1234, 0, "lonely")

	assert.True(t, m.TerminateTree(1234))
	assert.False(t, p.isAlive())
	assert.Equal(t, 1, p.termCount())
	assert.Equal(t, 1, p.openedCount())
	assert.Empty(t, k.pidCalls())
	assert.Empty(t, k.nameCalls())
	w.assertHandlesReleased(t)
}

func TestTerminateTreeOrder(t *testing.T) {
	w := newFakeWorld()
	k := &fakeKiller{}
	m := newTestManager(w, k)

	root := w.addProc(1000, 0, "root")
	childA := w.addProc(1001, 1000, "child-a")
	childB := w.addProc(1002, 1000, "child-b")
	grandchild := w.addProc(1003, 1002, "grandchild")

	assert.True(t, m.TerminateTree(1000))

	for _, p := range []*fakeProc{root, childA, childB, grandchild} {
		assert.Falsef(t, p.isAlive(), "pid %d should be dead", p.pid)
		assert.Equalf(t, 1, p.termCount(), "pid %d should be signalled once", p.pid)
		assert.Equalf(t, 1, p.openedCount(), "pid %d should be opened once", p.pid)
	}

	// Depth first: the grandchild goes before its parent, the root last.
	assert.Less(t, grandchild.firstTermSeq(), childB.firstTermSeq())
	assert.Less(t, childA.firstTermSeq(), root.firstTermSeq())
	assert.Less(t, childB.firstTermSeq(), root.firstTermSeq())

	assert.Empty(t, k.pidCalls())
	w.assertHandlesReleased(t)
}

func TestTerminateTreeChildFailureDoesNotGateParent(t *testing.T) {
	w := newFakeWorld()
	k := &fakeKiller{
		pidErr:  errors.New("no utility"),
		nameErr: errors.New("no utility"),
	}
	m := newTestManager(w, k)

	root := w.addProc(2000, 0, "root")
	stuck := w.addProc(2001, 2000, "stuck")
	stuck.setIgnores(true)

	assert.True(t, m.TerminateTree(2000))
	assert.False(t, root.isAlive())
	assert.True(t, stuck.isAlive())
	w.assertHandlesReleased(t)
}

func TestChildrenSnapshot(t *testing.T) {
	w := newFakeWorld()
	k := &fakeKiller{}
	m := newTestManager(w, k)

	w.addProc(3100, 0, "root")
	w.addProc(3101, 3100, "alive")
	dead := w.addProc(3102, 3100, "dead")
	dead.setAlive(false)

	kids := m.Children(3100)
	assert.Len(t, kids, 1)
	assert.Equal(t, int32(3101), kids[0].PID())
	for _, kid := range kids {
		assert.NoError(t, kid.Close())
	}
	w.assertHandlesReleased(t)
}

func TestChildrenEnumerationFailure(t *testing.T) {
	w := newFakeWorld()
	k := &fakeKiller{}
	m := newTestManager(w, k)

	w.addProc(3000, 0, "root")
	w.addProc(3001, 3000, "a")
	w.addProc(3002, 3000, "b")
	w.childrenErr[3000] = errors.New("snapshot failed")

	kids := m.Children(3000)
	assert.Empty(t, kids)

	// The handles opened before the failure must have been released.
	assert.Equal(t, 1, w.proc(3001).openedCount())
	assert.Equal(t, 1, w.proc(3002).openedCount())
	w.assertHandlesReleased(t)
}

func TestChildrenOfGoneParent(t *testing.T) {
	w := newFakeWorld()
	k := &fakeKiller{}
	m := newTestManager(w, k)

	assert.Empty(t, m.Children(404))
}

func TestFallbackKillTargets(t *testing.T) {
	cases := []struct {
		name      string
		procName  string
		pid       int32
		wantPids  []int32
		wantNames []string
		want      bool
	}{
		{"both", "app", 42, []int32{42}, []string{"app"}, true},
		{"pid only", "", 42, []int32{42}, nil, true},
		{"name only", "app", 0, nil, []string{"app"}, true},
		{"negative pid", "app", -1, nil, []string{"app"}, true},
		{"neither", "", 0, nil, nil, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := newFakeWorld()
			k := &fakeKiller{}
			m := newTestManager(w, k)

			assert.Equal(t, tc.want, m.FallbackKill(tc.procName, tc.pid))
			assert.Equal(t, tc.wantPids, k.pidCalls())
			assert.Equal(t, tc.wantNames, k.nameCalls())
		})
	}
}

func TestFallbackKillUtilityFailureStopsShort(t *testing.T) {
	w := newFakeWorld()
	k := &fakeKiller{pidErr: errors.New("taskkill missing")}
	m := newTestManager(w, k)

	assert.False(t, m.FallbackKill("app", 42))
	assert.Empty(t, k.nameCalls())
}

func TestCommandLine(t *testing.T) {
	w := newFakeWorld()
	m := newTestManager(w, &fakeKiller{})
	w.cmdlines[77] = `"C:\games\game.exe" --fullscreen`

	line, err := m.CommandLine(context.Background(), 77)
	assert.NoError(t, err)
	assert.Equal(t, `"C:\games\game.exe" --fullscreen`, line)
	assert.Equal(t, 1, w.queryCount())
}

func TestCommandLineUnknownPid(t *testing.T) {
	w := newFakeWorld()
	m := newTestManager(w, &fakeKiller{})

	line, err := m.CommandLine(context.Background(), 404)
	assert.NoError(t, err)
	assert.Empty(t, line)
}

func TestCommandLineCancelledBeforeQuery(t *testing.T) {
	w := newFakeWorld()
	m := newTestManager(w, &fakeKiller{})
	w.cmdlines[77] = "something"

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	line, err := m.CommandLine(ctx, 77)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, line)
	assert.Zero(t, w.queryCount())
}

func TestCommandLineCancelledDuringQuery(t *testing.T) {
	w := newFakeWorld()
	m := newTestManager(w, &fakeKiller{})
	w.cmdBlocks = true

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	line, err := m.CommandLine(ctx, 77)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, line)
}

func TestCommandLineErrorSwallowed(t *testing.T) {
	w := newFakeWorld()
	m := newTestManager(w, &fakeKiller{})
	w.cmdlineErr = errors.New("wmi unavailable")

	line, err := m.CommandLine(context.Background(), 77)
	assert.NoError(t, err)
	assert.Empty(t, line)
}

func TestOutcome(t *testing.T) {
	assert.True(t, OutcomeAlreadyGone.Ok())
	assert.True(t, OutcomeTerminated.Ok())
	assert.True(t, OutcomeFallback.Ok())
	assert.False(t, OutcomeFailed.Ok())

	assert.Equal(t, "AlreadyGone", OutcomeAlreadyGone.String())
	assert.Equal(t, "Terminated", OutcomeTerminated.String())
	assert.Equal(t, "Fallback", OutcomeFallback.String())
	assert.Equal(t, "Failed", OutcomeFailed.String())
	assert.Equal(t, "Unknown Outcome (9)", Outcome(9).String())
}
