//go:build !windows

package launcher

import (
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vearne/capsync/config"
	"github.com/vearne/capsync/consts"
	"github.com/vearne/capsync/protocol"
	slog "github.com/vearne/simplelog"
)

const helperEnv = "CAPSYNC_LAUNCHER_HELPER"

func TestMain(m *testing.M) {
	if mode := os.Getenv(helperEnv); mode != "" {
		os.Exit(helper(mode))
	}
	os.Exit(m.Run())
}

// helper plays the worker side inside the re-executed test binary.
func helper(mode string) int {
	sink := protocol.NewPipeSink(os.NewFile(consts.SyncPipeFD, "sync pipe"))
	defer sink.Close()
	switch mode {
	case "message":
		_ = sink.Send(protocol.CaptureStarted{})
		return 0
	case "args":
		_ = sink.Send(protocol.NewFile{Path: strings.Join(os.Args[1:], " ")})
		return 0
	case "exit3":
		return 3
	case "wait-stop":
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, StopSignal)
		_ = sink.Send(protocol.CaptureStarted{})
		select {
		case <-ch:
			return 0
		case <-time.After(10 * time.Second):
			return 9
		}
	case "hang":
		_ = sink.Send(protocol.CaptureStarted{})
		time.Sleep(time.Minute)
	}
	return 1
}

func helperLauncher(mode string) *Launcher {
	return &Launcher{Path: os.Args[0], Env: []string{helperEnv + "=" + mode}}
}

func opts() *config.CaptureOptions {
	return &config.CaptureOptions{Interface: "lo", Promiscuous: true, SavePath: "/tmp/capsync-test.pcap"}
}

func readMessage(t *testing.T, w *Worker) protocol.Message {
	m, err := protocol.Decode(w.Pipe(), make([]byte, consts.MaxControlPayload))
	require.Nil(t, err)
	return m
}

func TestLaunchAndExit(t *testing.T) {
	slog.SetLevel(slog.DebugLevel)
	w, err := helperLauncher("message").Launch(opts())
	require.Nil(t, err)
	assert.Greater(t, w.Pid(), 0)

	assert.Equal(t, protocol.CaptureStarted{}, readMessage(t, w))
	_, err = protocol.Decode(w.Pipe(), make([]byte, 16))
	assert.Equal(t, io.EOF, err)

	st, err := w.Wait()
	assert.Nil(t, err)
	assert.True(t, st.Success())
	assert.Equal(t, "exit status 0", st.String())
	st2, _ := w.Wait()
	assert.Equal(t, st, st2)
	assert.Nil(t, w.ClosePipe())
}

func TestWorkerReceivesArgs(t *testing.T) {
	w, err := helperLauncher("args").Launch(opts())
	require.Nil(t, err)
	m := readMessage(t, w)
	nf, ok := m.(protocol.NewFile)
	require.True(t, ok)
	assert.Equal(t, "-i lo -w /tmp/capsync-test.pcap -Z 3", nf.Path)
	_, _ = w.Wait()
}

func TestExitCode(t *testing.T) {
	w, err := helperLauncher("exit3").Launch(opts())
	require.Nil(t, err)
	st, err := w.Wait()
	assert.Nil(t, err)
	assert.False(t, st.Success())
	assert.Equal(t, 3, st.Code)
	assert.Equal(t, "exit status 3", st.String())
}

func TestGracefulStop(t *testing.T) {
	w, err := helperLauncher("wait-stop").Launch(opts())
	require.Nil(t, err)
	assert.Equal(t, protocol.CaptureStarted{}, readMessage(t, w))

	assert.Nil(t, w.Stop())
	st, err := w.Wait()
	assert.Nil(t, err)
	assert.True(t, st.Success())
}

func TestKillAndStats(t *testing.T) {
	w, err := helperLauncher("hang").Launch(opts())
	require.Nil(t, err)
	assert.Equal(t, protocol.CaptureStarted{}, readMessage(t, w))

	stats, err := w.Stats()
	assert.Nil(t, err)
	assert.Greater(t, stats.RSS, uint64(0))

	assert.Nil(t, w.Kill())
	st, err := w.Wait()
	assert.Nil(t, err)
	assert.True(t, st.Signaled)
	assert.Equal(t, "SIGKILL", st.Signal)
	assert.Equal(t, "killed by signal SIGKILL", st.String())
	assert.Nil(t, w.Kill())
}

func TestSpawnFailure(t *testing.T) {
	l := &Launcher{Path: filepath.Join(t.TempDir(), "no-such-binary")}
	_, err := l.Launch(opts())
	var le *LaunchError
	assert.ErrorAs(t, err, &le)
	assert.Equal(t, "spawn", le.Op)
}

func TestWorkerLog(t *testing.T) {
	dir := t.TempDir()
	lw, err := NewWorkerLog(filepath.Join(dir, "worker.log"), DefaultWorkerLogConfig)
	require.Nil(t, err)
	_, err = lw.Write([]byte("capture started\n"))
	assert.Nil(t, err)
	assert.Nil(t, lw.Close())
	data, err := os.ReadFile(filepath.Join(dir, "worker.log"))
	assert.Nil(t, err)
	assert.Equal(t, "capture started\n", string(data))

	_, err = NewWorkerLog(filepath.Join(dir, "missing", "worker.log"), DefaultWorkerLogConfig)
	assert.NotNil(t, err)
}
