package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thruflo/reachy-remix/internal/logging"
	"github.com/thruflo/reachy-remix/internal/motion"
	"github.com/thruflo/reachy-remix/internal/robot"
	"github.com/thruflo/reachy-remix/internal/testutil"
)

var testAssets = fstest.MapFS{
	"index.html": &fstest.MapFile{Data: []byte("<html>motion builder</html>")},
}

func newTestApp(t *testing.T, r robot.Robot, opts ...Option) *UIApp {
	t.Helper()

	opts = append([]Option{
		WithAssets(testAssets),
		WithLogger(logging.Discard()),
		WithBrowserOpener(func(string) error { return nil }),
	}, opts...)

	a, err := NewApp(r, nil, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func launchTestApp(t *testing.T, a *UIApp) LaunchResult {
	t.Helper()

	res, err := a.Launch(LaunchOptions{
		ServerName:        "127.0.0.1",
		Port:              0,
		PreventThreadLock: true,
		ShowError:         true,
		Quiet:             true,
	})
	require.NoError(t, err)
	return res
}

func TestLaunchReportsLocalURL(t *testing.T) {
	a := newTestApp(t, nil)
	res := launchTestApp(t, a)

	port := res.Addr.(*net.TCPAddr).Port
	assert.Equal(t, "http://127.0.0.1:"+strconv.Itoa(port)+"/", res.LocalURL)
	assert.Equal(t, res.LocalURL, a.LocalURL())
	assert.Empty(t, res.ShareURL)

	resp, err := http.Get(res.LocalURL + "health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLaunchDefaultsToWildcardHost(t *testing.T) {
	a := newTestApp(t, nil)

	res, err := a.Launch(LaunchOptions{Port: 0, PreventThreadLock: true, Quiet: true})
	require.NoError(t, err)

	u, err := PublicURL(res.LocalURL)
	require.NoError(t, err)
	assert.Contains(t, res.LocalURL, "0.0.0.0")
	assert.Contains(t, u, "http://localhost:")

	resp, err := http.Get(u + "health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLaunchTwice(t *testing.T) {
	a := newTestApp(t, nil)
	launchTestApp(t, a)

	_, err := a.Launch(LaunchOptions{ServerName: "127.0.0.1", PreventThreadLock: true, Quiet: true})
	assert.ErrorIs(t, err, ErrAlreadyLaunched)
}

func TestLaunchAfterClose(t *testing.T) {
	a := newTestApp(t, nil)
	require.NoError(t, a.Close())

	_, err := a.Launch(LaunchOptions{ServerName: "127.0.0.1", PreventThreadLock: true, Quiet: true})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestLaunchOpensBrowserWithPublicURL(t *testing.T) {
	var (
		mu     sync.Mutex
		opened []string
	)
	a := newTestApp(t, nil, WithBrowserOpener(func(u string) error {
		mu.Lock()
		defer mu.Unlock()
		opened = append(opened, u)
		return errors.New("no browser")
	}))

	res, err := a.Launch(LaunchOptions{Port: 0, PreventThreadLock: true, Quiet: true, InBrowser: true})
	require.NoError(t, err)

	want, err := PublicURL(res.LocalURL)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{want}, opened)
}

func TestLaunchBlocksUntilClose(t *testing.T) {
	a := newTestApp(t, nil)

	resCh := make(chan LaunchResult, 1)
	go func() {
		res, err := a.Launch(LaunchOptions{ServerName: "127.0.0.1", Quiet: true})
		assert.NoError(t, err)
		resCh <- res
	}()

	require.Eventually(t, func() bool { return a.LocalURL() != "" }, 2*time.Second, 5*time.Millisecond)

	select {
	case <-resCh:
		t.Fatal("blocking Launch returned before Close")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, a.Close())

	select {
	case res := <-resCh:
		assert.Equal(t, a.LocalURL(), res.LocalURL)
	case <-time.After(2 * time.Second):
		t.Fatal("blocking Launch did not return after Close")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	a := newTestApp(t, nil)
	res := launchTestApp(t, a)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	select {
	case <-a.Done():
	default:
		t.Fatal("Done should be closed after Close")
	}

	_, err := http.Get(res.LocalURL + "health")
	assert.Error(t, err, "server should no longer accept connections")
}

func TestCloseConcurrent(t *testing.T) {
	a := newTestApp(t, nil)
	launchTestApp(t, a)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, a.Close())
		}()
	}
	wg.Wait()
}

func TestCloseWithoutLaunch(t *testing.T) {
	a := newTestApp(t, nil)
	a.Queue()
	assert.NoError(t, a.Close())
}

func TestCloseAbortsRecording(t *testing.T) {
	fake := testutil.NewFakeRobot()
	a := newTestApp(t, fake)
	launchTestApp(t, a)

	require.NoError(t, a.recorder.Start(context.Background()))
	assert.False(t, fake.Enabled())

	require.NoError(t, a.Close())
	assert.False(t, a.recorder.Recording())
	assert.True(t, fake.Enabled(), "torque restored on close")
}

func TestNewAppDefaults(t *testing.T) {
	a := newTestApp(t, nil)

	assert.Nil(t, a.recorder, "demo mode has no recorder")
	player, ok := a.ctrl.(*motion.Player)
	require.True(t, ok)
	assert.True(t, player.Simulated())

	withRobot := newTestApp(t, testutil.NewFakeRobot())
	assert.NotNil(t, withRobot.recorder)
}

func TestNewBuilder(t *testing.T) {
	build := NewBuilder(WithAssets(testAssets), WithLogger(logging.Discard()))

	app, err := build(nil, nil)
	require.NoError(t, err)
	_, ok := app.(*UIApp)
	assert.True(t, ok)
	assert.NoError(t, app.Close())
}

func TestQueueIsIdempotent(t *testing.T) {
	a := newTestApp(t, nil)
	a.Queue()
	q := a.jobQueue()
	require.NotNil(t, q)

	a.Queue()
	assert.Same(t, q, a.jobQueue())
}

func TestListenScansPastTakenPort(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()
	port := taken.Addr().(*net.TCPAddr).Port

	ln, err := listen("127.0.0.1", port, 20)
	if err != nil {
		// Every port in the window may be taken on a busy machine.
		require.ErrorIs(t, err, ErrNoFreePort)
		return
	}
	defer ln.Close()

	got := ln.Addr().(*net.TCPAddr).Port
	assert.Greater(t, got, port)
	assert.Less(t, got, port+20)
}

func TestListenNoFreePort(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()
	port := taken.Addr().(*net.TCPAddr).Port

	_, err = listen("127.0.0.1", port, 1)
	assert.ErrorIs(t, err, ErrNoFreePort)
}

func TestListenEphemeral(t *testing.T) {
	ln, err := listen("127.0.0.1", 0, 1)
	require.NoError(t, err)
	defer ln.Close()
	assert.NotZero(t, ln.Addr().(*net.TCPAddr).Port)
}

func TestPublicURL(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"ipv4 wildcard", "http://0.0.0.0:7860/", "http://localhost:7860/", false},
		{"ipv6 wildcard", "http://[::]:7860/", "http://localhost:7860/", false},
		{"empty host with port", "http://:7860/", "http://localhost:7860/", false},
		{"wildcard without port", "http://0.0.0.0/", "http://localhost/", false},
		{"concrete host unchanged", "http://192.168.1.20:7861/", "http://192.168.1.20:7861/", false},
		{"named host unchanged", "http://reachy.local:7860/", "http://reachy.local:7860/", false},
		{"path kept", "http://0.0.0.0:7860/app?x=1", "http://localhost:7860/app?x=1", false},
		{"missing scheme", "0.0.0.0:7860", "", true},
		{"not a url", "://bad", "", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PublicURL(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLaunchHookRunsBeforeBlocking(t *testing.T) {
	hook := make(chan LaunchResult, 1)
	a := newTestApp(t, nil, WithOnLaunch(func(res LaunchResult) { hook <- res }))

	go a.Launch(LaunchOptions{ServerName: "127.0.0.1", Quiet: true})

	select {
	case res := <-hook:
		assert.Equal(t, a.LocalURL(), res.LocalURL)
	case <-time.After(2 * time.Second):
		t.Fatal("launch hook not called")
	}
	require.NoError(t, a.Close())
}

// blockingController holds playback until release is closed.
type blockingController struct {
	started chan struct{}
	release chan struct{}
}

func (c blockingController) Play(context.Context, motion.Move, func(motion.Frame)) error {
	close(c.started)
	<-c.release
	return nil
}

func TestCloseForcesShutdownAfterTimeout(t *testing.T) {
	ctrl := blockingController{started: make(chan struct{}), release: make(chan struct{})}
	a, err := NewApp(nil, ctrl,
		WithAssets(testAssets),
		WithLogger(logging.Discard()),
		WithBrowserOpener(func(string) error { return nil }),
		WithCloseTimeout(50*time.Millisecond),
	)
	require.NoError(t, err)
	t.Cleanup(func() { close(ctrl.release) })

	m := motion.NewMove("hold", []motion.Keyframe{
		{At: 0, Positions: testutil.SampleNod(0)},
		{At: time.Second, Positions: testutil.SampleNod(20)},
	}, time.Now())
	require.NoError(t, a.library.Save(context.Background(), m))

	res := launchTestApp(t, a)
	go func() {
		resp, err := http.Post(res.LocalURL+"api/moves/"+m.ID.String()+"/play", "application/json", nil)
		if err == nil {
			resp.Body.Close()
		}
	}()

	select {
	case <-ctrl.started:
	case <-time.After(2 * time.Second):
		t.Fatal("play request never reached the controller")
	}

	start := time.Now()
	err = a.Close()
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)
	assertClosed(t, res.Addr.String())
}

func TestErrReportsServeFailure(t *testing.T) {
	a := newTestApp(t, nil)
	launchTestApp(t, a)

	a.mu.Lock()
	a.listener.Close()
	a.mu.Unlock()

	select {
	case err := <-a.Err():
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("serve failure was not reported")
	}
}

func TestErrSilentOnClose(t *testing.T) {
	a := newTestApp(t, nil)
	launchTestApp(t, a)
	require.NoError(t, a.Close())

	select {
	case err := <-a.Err():
		t.Fatalf("unexpected serve error after Close: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
}

func assertClosed(t *testing.T, addr string) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
	if err == nil {
		conn.Close()
		t.Fatalf("listener %s still accepting connections", addr)
	}
}
