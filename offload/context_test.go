package offload

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/baruch/xcoro"
	"github.com/baruch/xcoro/fiber"
)

// newWire builds a scheduler and an offload Context on it.
func newWire(t *testing.T, workers int) (*fiber.Scheduler, *Context, *xcoro.RecordingObserver) {
	t.Helper()
	s, err := fiber.New()
	require.NoError(t, err)
	obs := xcoro.NewRecordingObserver()
	c, err := Init(s, Config{NumWorkers: workers, Observer: obs})
	require.NoError(t, err)
	return s, c, obs
}

// runWire drives the wire loop to quiescence, failing the test on a
// deadlock (a lost wakeup shows up here as a timeout).
func runWire(t *testing.T, s *fiber.Scheduler) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("wire loop never went quiescent")
	}
}

func TestSubmitSingleOpenReadClose(t *testing.T) {
	s, c, _ := newWire(t, 2)

	f, err := os.CreateTemp(t.TempDir(), "offload-open-*")
	require.NoError(t, err)
	path := f.Name()
	_, err = f.WriteString("hello offload")
	require.NoError(t, err)
	f.Close()

	var content string
	s.Spawn("submitter", func(ctx context.Context) {
		open := &Action{tag: OpOpen, Path: path, Flags: unix.O_RDONLY}
		assert.NoError(t, Submit(ctx, c, open))
		if !assert.Zero(t, open.Errno, "open errno") {
			return
		}

		buf := make([]byte, 32)
		read := &Action{tag: OpRead, Fd: open.Result, Buf: buf}
		assert.NoError(t, Submit(ctx, c, read))
		assert.Zero(t, read.Errno, "read errno")
		content = string(buf[:read.Result])

		cl := &Action{tag: OpClose, Fd: open.Result}
		assert.NoError(t, Submit(ctx, c, cl))
	})
	runWire(t, s)

	assert.Equal(t, "hello offload", content)
	assert.Zero(t, c.ActiveIOs())
}

func TestSubmitOpenNonexistentReturnsErrno(t *testing.T) {
	s, c, _ := newWire(t, 1)

	a := &Action{tag: OpOpen, Path: "/nonexistent/path/for/offload/test", Flags: unix.O_RDONLY}
	s.Spawn("submitter", func(ctx context.Context) {
		assert.NoError(t, Submit(ctx, c, a))
	})
	runWire(t, s)

	assert.Equal(t, unix.ENOENT, a.Errno)
	assert.Equal(t, -1, a.Result)
}

func TestSubmitConcurrentOpens(t *testing.T) {
	s, c, obs := newWire(t, 4)

	const n = 50
	dir := t.TempDir()
	paths := make([]string, n)
	for i := range paths {
		f, err := os.CreateTemp(dir, "concurrent-*")
		require.NoError(t, err)
		paths[i] = f.Name()
		f.Close()
	}

	errnos := make([]error, n)
	for i := 0; i < n; i++ {
		i := i
		s.Spawn(fmt.Sprintf("open-%d", i), func(ctx context.Context) {
			a := &Action{tag: OpOpen, Path: paths[i], Flags: unix.O_RDONLY}
			assert.NoError(t, Submit(ctx, c, a))
			if a.Errno != 0 {
				errnos[i] = a.Errno
				return
			}
			cl := &Action{tag: OpClose, Fd: a.Result}
			assert.NoError(t, Submit(ctx, c, cl))
		})
	}
	runWire(t, s)

	for i, e := range errnos {
		assert.NoError(t, e, "open %d", i)
	}
	assert.Zero(t, c.ActiveIOs())
	assert.Positive(t, obs.MaxObservedActiveIOs())
}

func TestInitReturnsIndependentContexts(t *testing.T) {
	s, err := fiber.New()
	require.NoError(t, err)
	c1, err := Init(s, Config{NumWorkers: 1})
	require.NoError(t, err)
	c2, err := Init(s, Config{NumWorkers: 1})
	require.NoError(t, err)
	require.NotSame(t, c1, c2)

	a1 := &Action{tag: OpOpen, Path: "/dev/null", Flags: unix.O_RDONLY}
	a2 := &Action{tag: OpOpen, Path: "/dev/null", Flags: unix.O_RDONLY}
	s.Spawn("submitter", func(ctx context.Context) {
		assert.NoError(t, Submit(ctx, c1, a1))
		assert.NoError(t, Submit(ctx, c2, a2))
	})
	runWire(t, s)

	assert.Zero(t, a1.Errno)
	assert.Zero(t, a2.Errno)
	unix.Close(a1.Result)
	unix.Close(a2.Result)
}

func TestSubmitAfterFullSuspension(t *testing.T) {
	s, c, _ := newWire(t, 1)

	f, err := os.CreateTemp(t.TempDir(), "suspend-*")
	require.NoError(t, err)
	path := f.Name()
	_, err = f.WriteString("0123456789")
	require.NoError(t, err)
	f.Close()

	// Between the close and the lstat, the response fiber has
	// deterministically gone through its idle transition: it drains the
	// close's completion, readies this fiber, reads nothing more, sees
	// zero outstanding actions, and fully suspends, all before this
	// fiber runs again. The lstat's submission alone must wake it.
	stat := &Action{tag: OpLstat, Path: path}
	s.Spawn("submitter", func(ctx context.Context) {
		open := &Action{tag: OpOpen, Path: path, Flags: unix.O_RDONLY}
		assert.NoError(t, Submit(ctx, c, open))
		cl := &Action{tag: OpClose, Fd: open.Result}
		assert.NoError(t, Submit(ctx, c, cl))

		assert.NoError(t, Submit(ctx, c, stat))
	})
	runWire(t, s)

	assert.Zero(t, stat.Errno)
	assert.Equal(t, int64(10), stat.Stat.Size)
	assert.Zero(t, c.ActiveIOs())
}

func TestInterleavedPipeBursts(t *testing.T) {
	s, c, _ := newWire(t, 4)

	var p [2]int
	require.NoError(t, unix.Pipe(p[:]))
	defer unix.Close(p[0])
	defer unix.Close(p[1])

	const (
		rounds  = 300
		payload = "burst-io"
	)

	var written, read int
	s.Spawn("burst-writer", func(ctx context.Context) {
		for i := 0; i < rounds; i++ {
			a := &Action{tag: OpWrite, Fd: p[1], Buf: []byte(payload)}
			if !assert.NoError(t, Submit(ctx, c, a)) || !assert.Zero(t, a.Errno) {
				return
			}
			written += a.Result
		}
	})
	s.Spawn("burst-reader", func(ctx context.Context) {
		want := rounds * len(payload)
		buf := make([]byte, 64)
		for read < want {
			a := &Action{tag: OpRead, Fd: p[0], Buf: buf}
			if !assert.NoError(t, Submit(ctx, c, a)) || !assert.Zero(t, a.Errno) {
				return
			}
			read += a.Result
		}
	})
	runWire(t, s)

	assert.Equal(t, rounds*len(payload), written)
	assert.Equal(t, rounds*len(payload), read)
	assert.Zero(t, c.ActiveIOs())
}
