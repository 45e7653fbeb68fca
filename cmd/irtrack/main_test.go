package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/irtrack/internal/optical/capture"
	"github.com/banshee-data/irtrack/internal/optical/l4pose"
	"github.com/banshee-data/irtrack/internal/optical/pipeline"
	"github.com/banshee-data/irtrack/internal/optical/storage/sqlite"
	"github.com/banshee-data/irtrack/internal/testutil"
)

func TestParseFlags(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		args    []string
		want    options
		version bool
		wantErr bool
	}{
		{
			name: "defaults",
			args: []string{"-replay", "rec"},
			want: options{ReplayDir: "rec", Interval: -1, FocalLength: 365},
		},
		{
			name: "everything",
			args: []string{"-replay", "rec", "-loop", "-interval", "33ms", "-db", "log.db", "-grpc", ":50061",
				"-listen", ":8090", "-preview-dir", "p", "-preview-width", "128", "-cloud", "c.xyz", "-cloud-frame", "4", "-max-frames", "9"},
			want: options{
				ReplayDir: "rec", Loop: true, Interval: 33 * time.Millisecond, FocalLength: 365,
				DBPath: "log.db", GRPCAddr: ":50061", Listen: ":8090", PreviewDir: "p", PreviewW: 128,
				CloudPath: "c.xyz", CloudFrame: 4, MaxFrames: 9,
			},
		},
		{name: "version", args: []string{"-version"}, version: true},
		{name: "missing replay", args: []string{"-db", "x.db"}, wantErr: true},
		{name: "bad flag", args: []string{"-nope"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := flag.NewFlagSet("irtrack", flag.ContinueOnError)
			fs.SetOutput(io.Discard)
			got, version, err := parseFlags(fs, tt.args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.version, version)
			if tt.version {
				return
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("options mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func writeRecording(t *testing.T, n int) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "rec")
	rec, err := capture.NewRecorder(dir)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		require.NoError(t, rec.Write(testutil.NewFrame(uint64(i), testutil.RigBlobs(250+i, 256)...)))
	}
	return dir
}

func TestRun_ReplayToDetectionLog(t *testing.T) {
	t.Parallel()
	tmp := t.TempDir()
	o := options{
		ReplayDir:   writeRecording(t, 4),
		Interval:    0,
		FocalLength: testutil.FocalLength,
		DBPath:      filepath.Join(tmp, "log.db"),
		RecordDir:   filepath.Join(tmp, "rerecord"),
		PreviewDir:  filepath.Join(tmp, "preview"),
		PreviewW:    64,
		CloudPath:   filepath.Join(tmp, "frame.xyz"),
		CloudFrame:  1,
	}
	require.NoError(t, run(context.Background(), o))

	store, err := sqlite.Open(o.DBPath)
	require.NoError(t, err)
	defer store.Close()
	frames, err := store.Frames(context.Background(), "", 0)
	require.NoError(t, err)
	require.Len(t, frames, 4)
	for _, fr := range frames {
		assert.True(t, fr.Valid, "frame %d", fr.Index)
		assert.Equal(t, l4pose.PhaseTracking, fr.Phase)
	}
	sessions, err := store.Sessions(context.Background())
	require.NoError(t, err)
	assert.Len(t, sessions, 1)

	replay, err := capture.OpenReplay(o.RecordDir, capture.ReplayOptions{})
	require.NoError(t, err)
	assert.Equal(t, 4, replay.Len())

	previews, err := filepath.Glob(filepath.Join(o.PreviewDir, "*_preview.png"))
	require.NoError(t, err)
	assert.Len(t, previews, 8)

	cloud, err := os.ReadFile(o.CloudPath)
	require.NoError(t, err)
	assert.Greater(t, strings.Count(string(cloud), "\n"), 0, "the marker pixels are inside the depth band")
}

func TestRun_MaxFramesAndConfig(t *testing.T) {
	t.Parallel()
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "tuning.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{"grace_frames": 3, "replay_interval": "0s"}`), 0o644))

	o := options{
		ReplayDir:   writeRecording(t, 5),
		Interval:    -1,
		ConfigPath:  cfgPath,
		FocalLength: testutil.FocalLength,
		DBPath:      filepath.Join(tmp, "log.db"),
		MaxFrames:   2,
	}
	require.NoError(t, run(context.Background(), o))

	store, err := sqlite.Open(o.DBPath)
	require.NoError(t, err)
	defer store.Close()
	frames, err := store.Frames(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Len(t, frames, 2)
}

func TestRun_Errors(t *testing.T) {
	t.Parallel()
	tmp := t.TempDir()

	err := run(context.Background(), options{ReplayDir: filepath.Join(tmp, "missing"), FocalLength: 365})
	assert.Error(t, err)

	err = run(context.Background(), options{ReplayDir: writeRecording(t, 1), FocalLength: 365, ConfigPath: filepath.Join(tmp, "tuning.yaml")})
	assert.Error(t, err)

	err = run(context.Background(), options{ReplayDir: writeRecording(t, 1), FocalLength: 365, CalibPath: filepath.Join(tmp, "calib.json")})
	assert.Error(t, err)
}

// runReturns fails the test if run has not returned within a few seconds.
func runReturns(t *testing.T, o options) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- run(context.Background(), o) }()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return")
		return nil
	}
}

func TestRun_ErrorsShutDownDebugServer(t *testing.T) {
	t.Parallel()

	t.Run("corrupt frame", func(t *testing.T) {
		dir := writeRecording(t, 3)
		require.NoError(t, os.WriteFile(capture.IRPath(dir, 1), []byte("not a png"), 0o644))
		err := runReturns(t, options{ReplayDir: dir, FocalLength: 365, Listen: "127.0.0.1:0"})
		assert.Error(t, err)
	})

	t.Run("record dir is a file", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "taken")
		require.NoError(t, os.WriteFile(file, nil, 0o644))
		err := runReturns(t, options{ReplayDir: writeRecording(t, 1), FocalLength: 365, Listen: "127.0.0.1:0", RecordDir: file})
		assert.Error(t, err)
	})
}

func TestRun_CancelledLoop(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	o := options{ReplayDir: writeRecording(t, 2), Interval: 10 * time.Millisecond, Loop: true, FocalLength: 365}
	err := run(ctx, o)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStartHTTP(t *testing.T) {
	t.Parallel()
	store, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	det, err := pipeline.NewDetector(pipeline.DefaultDetectorConfig(), testutil.PinholeLUT(), store)
	require.NoError(t, err)
	ctx := context.Background()
	for i := uint64(1); i <= 3; i++ {
		_, err := det.ProcessFrame(ctx, testutil.NewFrame(i, testutil.RigBlobs(256, 256)...))
		require.NoError(t, err)
	}

	srv, err := startHTTP("127.0.0.1:0", det, store)
	require.NoError(t, err)
	defer srv.Shutdown(ctx)

	get := func(path string) *http.Response {
		w := testutil.NewTestRecorder()
		req := testutil.NewTestRequest(http.MethodGet, path)
		req.RemoteAddr = "127.0.0.1:40000"
		srv.Handler.ServeHTTP(w, req)
		return w.Result()
	}

	t.Run("health", func(t *testing.T) {
		resp := get("/health")
		testutil.AssertStatusCode(t, resp.StatusCode, http.StatusOK)
		var body map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "ok", body["status"])
	})

	t.Run("counters", func(t *testing.T) {
		resp := get("/counters")
		testutil.AssertStatusCode(t, resp.StatusCode, http.StatusOK)
		var c pipeline.Counters
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&c))
		assert.Equal(t, uint64(3), c.Frames)
	})

	t.Run("trajectory", func(t *testing.T) {
		resp := get("/trajectory")
		testutil.AssertStatusCode(t, resp.StatusCode, http.StatusOK)
		assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	})

	t.Run("debug sessions", func(t *testing.T) {
		resp := get("/debug/sessions")
		testutil.AssertStatusCode(t, resp.StatusCode, http.StatusOK)
	})
}
