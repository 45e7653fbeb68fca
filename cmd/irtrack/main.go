// Command irtrack replays recorded depth/IR footage through the marker
// detector and publishes the resolved rig pose.
//
// Usage:
//
//	irtrack -replay <dir> [flags]
//
// Every frame goes through labeling, disk extraction, pruning and the
// correspondence tracker. Results can be logged to SQLite (-db), streamed
// over gRPC (-grpc), browsed on a debug HTTP server (-listen), and frames
// can be re-recorded (-record) or exported as previews and point clouds.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/irtrack/internal/config"
	"github.com/banshee-data/irtrack/internal/httputil"
	"github.com/banshee-data/irtrack/internal/optical"
	"github.com/banshee-data/irtrack/internal/optical/calib"
	"github.com/banshee-data/irtrack/internal/optical/capture"
	"github.com/banshee-data/irtrack/internal/optical/l1frames"
	"github.com/banshee-data/irtrack/internal/optical/pipeline"
	"github.com/banshee-data/irtrack/internal/optical/posemath"
	"github.com/banshee-data/irtrack/internal/optical/report"
	"github.com/banshee-data/irtrack/internal/optical/storage/sqlite"
	"github.com/banshee-data/irtrack/internal/optical/visualiser"
	"github.com/banshee-data/irtrack/internal/version"
)

var errFrameLimit = errors.New("frame limit reached")

const logs optical.Scope = "irtrack"

// options holds everything main parses from flags.
type options struct {
	ReplayDir   string
	Loop        bool
	Interval    time.Duration // negative: use the tuning config
	ConfigPath  string
	CalibPath   string
	FocalLength float64
	DBPath      string
	Listen      string
	GRPCAddr    string
	RecordDir   string
	PreviewDir  string
	PreviewW    int
	CloudPath   string
	CloudFrame  int
	DiagLog     string
	TraceLog    string
	MaxFrames   int
}

func parseFlags(fs *flag.FlagSet, args []string) (options, bool, error) {
	var o options
	showVersion := fs.Bool("version", false, "Print version and exit")
	fs.StringVar(&o.ReplayDir, "replay", "", "Recording directory to replay (required)")
	fs.BoolVar(&o.Loop, "loop", false, "Restart the recording after the last frame")
	fs.DurationVar(&o.Interval, "interval", -1, "Replay frame interval (default from tuning config, 0 = unpaced)")
	fs.StringVar(&o.ConfigPath, "config", "", "Tuning config JSON (default: built-in defaults)")
	fs.StringVar(&o.CalibPath, "calib", "", "Calibration bundle JSON (default: pinhole camera)")
	fs.Float64Var(&o.FocalLength, "focal", 365, "Pinhole focal length in pixels when -calib is not set")
	fs.StringVar(&o.DBPath, "db", "", "SQLite detection log path (disabled when empty)")
	fs.StringVar(&o.Listen, "listen", "", "Debug HTTP listen address (disabled when empty)")
	fs.StringVar(&o.GRPCAddr, "grpc", "", "gRPC detection stream listen address (disabled when empty)")
	fs.StringVar(&o.RecordDir, "record", "", "Re-record every replayed frame, with its resolved pose, to this directory")
	fs.StringVar(&o.PreviewDir, "preview-dir", "", "Write 8-bit depth/IR previews of every frame to this directory")
	fs.IntVar(&o.PreviewW, "preview-width", 0, "Scale previews to this width (0 = sensor resolution)")
	fs.StringVar(&o.CloudPath, "cloud", "", "Write the point cloud of -cloud-frame to this XYZ file")
	fs.IntVar(&o.CloudFrame, "cloud-frame", 0, "Position in the replay of the frame exported with -cloud")
	fs.StringVar(&o.DiagLog, "diag-log", "", "File for diagnostic logs (disabled when empty)")
	fs.StringVar(&o.TraceLog, "trace-log", "", "File for per-frame trace logs (disabled when empty)")
	fs.IntVar(&o.MaxFrames, "max-frames", 0, "Stop after this many frames (0 = no limit)")
	if err := fs.Parse(args); err != nil {
		return o, false, err
	}
	if *showVersion {
		return o, true, nil
	}
	if o.ReplayDir == "" {
		return o, false, errors.New("-replay is required")
	}
	return o, false, nil
}

func main() {
	opts, showVersion, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}
	if showVersion {
		fmt.Println(version.String())
		return
	}

	closeLogs, err := setupLogging(opts)
	if err != nil {
		log.Fatalf("Failed to open log files: %v", err)
	}
	defer closeLogs()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("Starting %s", version.String())
	if err := run(ctx, opts); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("irtrack: %v", err)
	}
}

// setupLogging routes ops to stderr and diag/trace to optional files.
func setupLogging(o options) (func(), error) {
	var files []*os.File
	open := func(path string) (io.Writer, error) {
		if path == "" {
			return nil, nil
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
		return f, nil
	}
	closeAll := func() {
		for _, f := range files {
			f.Close()
		}
	}
	diag, err := open(o.DiagLog)
	if err != nil {
		closeAll()
		return nil, err
	}
	trace, err := open(o.TraceLog)
	if err != nil {
		closeAll()
		return nil, err
	}
	optical.SetLogWriters(optical.LogWriters{Ops: os.Stderr, Diag: diag, Trace: trace})
	pipeline.SetLogWriters(os.Stderr, diag, trace)
	return closeAll, nil
}

func loadTuning(path string) (*config.TuningConfig, error) {
	if path == "" {
		return config.EmptyTuningConfig(), nil
	}
	return config.LoadTuningConfig(path)
}

func pointCloudConfig(cfg *config.TuningConfig) posemath.PointCloudConfig {
	return posemath.PointCloudConfig{
		Spacing:  cfg.GetPointCloudSpacing(),
		Border:   cfg.GetPointCloudBorder(),
		MinDepth: uint16(cfg.GetPointCloudMinDepth()),
		MaxDepth: uint16(cfg.GetPointCloudMaxDepth()),
	}
}

// run wires the replay source, detector and sinks, and blocks until the
// replay ends or ctx is cancelled.
func run(ctx context.Context, o options) error {
	tuning, err := loadTuning(o.ConfigPath)
	if err != nil {
		return err
	}

	var bundle *calib.Bundle
	lut := posemath.NewPinholeLUT(l1frames.Width, l1frames.Height, o.FocalLength, o.FocalLength, l1frames.Width/2, l1frames.Height/2)
	if o.CalibPath != "" {
		if bundle, err = calib.Load(o.CalibPath); err != nil {
			return err
		}
		lut = bundle.LUT
		log.Printf("Loaded calibration %s: %d rig poses", o.CalibPath, len(bundle.Timestamps()))
	}

	interval := o.Interval
	if interval < 0 {
		interval = tuning.GetReplayInterval()
	}
	replay, err := capture.OpenReplay(o.ReplayDir, capture.ReplayOptions{Interval: interval, Loop: o.Loop})
	if err != nil {
		return err
	}
	log.Printf("Replaying %d frames from %s (interval %s, loop %v)", replay.Len(), o.ReplayDir, interval, o.Loop)

	var sinks []pipeline.DetectionSink

	var store *sqlite.Store
	if o.DBPath != "" {
		if store, err = sqlite.Open(o.DBPath); err != nil {
			return err
		}
		defer store.Close()
		sinks = append(sinks, store)
	}

	if o.GRPCAddr != "" {
		vcfg := visualiser.DefaultConfig()
		vcfg.ListenAddr = o.GRPCAddr
		pub := visualiser.NewPublisher(vcfg)
		if err := pub.Start(); err != nil {
			return err
		}
		defer pub.Stop()
		sinks = append(sinks, pub)
		log.Printf("Streaming detections on %s", pub.Addr())
	}

	det, err := pipeline.NewDetector(pipeline.DetectorConfigFromTuning(tuning), lut, sinks...)
	if err != nil {
		return err
	}

	// runCtx bounds the debug server too, so every return below shuts it down.
	runCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	if o.Listen != "" {
		srv, err := startHTTP(o.Listen, det, store)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-runCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Printf("HTTP server shutdown error: %v", err)
			}
		}()
	}

	var rec *capture.Recorder
	if o.RecordDir != "" {
		if rec, err = capture.NewRecorder(o.RecordDir); err != nil {
			return err
		}
	}

	processed := 0
	err = replay.Run(runCtx, func(f *l1frames.Frame) error {
		if bundle != nil {
			if m, err := bundle.CamToWorld(int64(f.Index)); err == nil {
				f.CamToWorld = m
			} else {
				logs.Framef(f.Index, "no rig pose: %v", err)
			}
		}
		if rec != nil {
			if err := rec.Write(f); err != nil {
				return err
			}
		}
		if o.PreviewDir != "" {
			popts := capture.PreviewOptions{MinIR: uint16(tuning.GetMinIR()), MaxIR: uint16(tuning.GetMaxIR()), Width: o.PreviewW}
			if err := capture.SavePreview(o.PreviewDir, f, popts); err != nil {
				return err
			}
		}
		if o.CloudPath != "" && processed == o.CloudFrame {
			if err := exportCloud(o.CloudPath, f, lut, tuning, det.Config().Extractor.UseWorldSpace); err != nil {
				return err
			}
		}

		fr, err := det.ProcessFrame(runCtx, f)
		if err != nil {
			return err
		}
		if optical.TraceEnabled() {
			c := fr.Pose.Detection.Center
			logs.Framef(fr.Index, "phase=%s valid=%v center=(%.4f, %.4f, %.4f)", fr.Pose.Phase, fr.Pose.Detection.Valid, c.X, c.Y, c.Z)
		}

		processed++
		if o.MaxFrames > 0 && processed >= o.MaxFrames {
			return errFrameLimit
		}
		return nil
	})
	if errors.Is(err, errFrameLimit) {
		err = nil
	}

	c := det.Counters()
	log.Printf("Processed %d frames: insufficient=%d grace=%d resets=%d recoveries=%d overflows=%d sink_errors=%d",
		c.Frames, c.Insufficient, c.GraceFrames, c.Resets, c.Recoveries, c.Overflows, c.SinkErrors)

	// a debug server keeps serving the log until interrupted
	if err == nil && o.Listen != "" {
		log.Printf("Replay finished; debug server still running on %s", o.Listen)
		<-ctx.Done()
	}
	return err
}

func exportCloud(path string, f *l1frames.Frame, lut posemath.LUT, tuning *config.TuningConfig, world bool) error {
	var toWorld *posemath.Mat4
	if world {
		toWorld = &f.CamToWorld
	}
	pts := posemath.SamplePointCloud(make([]r3.Vec, 0, 4096), f.Depth, lut, toWorld, pointCloudConfig(tuning))
	if err := capture.SaveXYZ(path, pts); err != nil {
		return err
	}
	log.Printf("Wrote %d points of frame %d to %s", len(pts), f.Index, path)
	return nil
}

// startHTTP serves health, counters, the trajectory report and, with a
// detection log, the /debug/ pages.
func startHTTP(addr string, det *pipeline.Detector, store *sqlite.Store) (*http.Server, error) {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, map[string]string{
			"status":    "ok",
			"service":   "irtrack",
			"version":   version.Version,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("/counters", func(w http.ResponseWriter, r *http.Request) {
		if !httputil.RequireGET(w, r) {
			return
		}
		httputil.WriteJSONOK(w, det.Counters())
	})
	if store != nil {
		if err := store.AttachAdminRoutes(mux); err != nil {
			return nil, err
		}
		mux.Handle("/trajectory", report.Handler(store))
	}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Printf("Starting HTTP server on %s", lis.Addr())
		if err := srv.Serve(lis); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()
	return srv, nil
}
