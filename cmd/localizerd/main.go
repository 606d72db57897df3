// Command localizerd is the localization daemon: it drives the scan
// head over serial, listens for odometry over UDP, runs the particle
// filter, and serves pose estimates over HTTP, UDP, and SQLite.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/pose.report/internal/api"
	"github.com/banshee-data/pose.report/internal/config"
	"github.com/banshee-data/pose.report/internal/lidario"
	"github.com/banshee-data/pose.report/internal/mcl"
	"github.com/banshee-data/pose.report/internal/monitor"
	"github.com/banshee-data/pose.report/internal/monitoring"
	"github.com/banshee-data/pose.report/internal/netio"
	"github.com/banshee-data/pose.report/internal/posedb"
	"github.com/banshee-data/pose.report/internal/serialmux"
	"github.com/banshee-data/pose.report/internal/version"
	"github.com/banshee-data/pose.report/internal/worldmap"
)

var (
	listen      = flag.String("listen", ":8080", "HTTP listen address")
	mapPath     = flag.String("map", "", "Path to map JSON (required)")
	dbFile      = flag.String("db", "poses.db", "Path to pose database")
	serialPort  = flag.String("serial", "/dev/ttyUSB0", "Scan head serial port")
	baudRate    = flag.Int("baud", 115200, "Scan head baud rate")
	odomListen  = flag.String("odometry-listen", ":9001", "UDP odometry listen address")
	forward     = flag.String("forward", "", "UDP address to forward pose estimates to (optional)")
	tuningPath  = flag.String("tuning", "", "Path to tuning JSON overrides (optional)")
	devMode     = flag.Bool("dev", false, "Replay scan fixtures instead of opening the serial port")
	fixtures    = flag.String("fixtures", "fixtures.txt", "Scan fixture file for -dev")
	debugLog    = flag.Bool("debug", false, "Enable debug logging")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		log.Printf("localizerd %s (%s, built %s)", version.Version, version.GitSHA, version.BuildTime)
		return
	}
	if *mapPath == "" {
		log.Fatal("-map is required")
	}
	if *debugLog {
		monitoring.EnableDebug()
	}

	worldMap, err := worldmap.Load(*mapPath)
	if err != nil {
		log.Fatalf("failed to load map: %v", err)
	}

	cfg := mcl.DefaultConfig()
	if *tuningPath != "" {
		tuning, err := config.LoadTuningConfig(*tuningPath)
		if err != nil {
			log.Fatalf("failed to load tuning: %v", err)
		}
		cfg = tuning.Apply(cfg)
	}

	db, err := posedb.NewPoseDB(*dbFile)
	if err != nil {
		log.Fatalf("failed to open pose database: %v", err)
	}
	defer db.Close()

	cfgJSON, _ := json.Marshal(cfg)
	runID, err := db.CreateRun(*mapPath, string(cfgJSON), time.Now())
	if err != nil {
		log.Fatalf("failed to create run: %v", err)
	}
	log.Printf("recording run %s", runID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Publishers fed by every completed filter cycle.
	recorder := posedb.NewRecorder(db, runID, time.Second)
	stats := monitor.NewStatsTracker()
	publishers := []mcl.Publisher{recorder, stats}

	var forwarder *netio.PoseForwarder
	if *forward != "" {
		forwarder, err = netio.NewPoseForwarder(*forward)
		if err != nil {
			log.Fatalf("failed to create pose forwarder: %v", err)
		}
		defer forwarder.Close()
		forwarder.Start(ctx)
		publishers = append(publishers, forwarder)
	}

	ctrl, err := mcl.NewController(cfg, worldMap, publishers...)
	if err != nil {
		log.Fatalf("failed to create filter: %v", err)
	}

	var mux serialmux.SerialMuxInterface
	if *devMode {
		mockMux, port := serialmux.NewMockSerialMux()
		mux = mockMux
		go replayFixtures(ctx, port, *fixtures)
	} else {
		realMux, err := serialmux.NewRealSerialMux(*serialPort, serialmux.PortOptions{BaudRate: *baudRate})
		if err != nil {
			log.Fatalf("failed to open serial port %s: %v", *serialPort, err)
		}
		mux = realMux
	}
	defer mux.Close()

	driver, err := lidario.NewDriver(mux, lidario.DriverConfig{
		MaxRange:    cfg.Beam.MaxRange,
		LogInterval: 30 * time.Second,
	})
	if err != nil {
		log.Fatalf("failed to create scan driver: %v", err)
	}

	odometry, err := netio.NewOdometryListener(netio.OdometryListenerConfig{
		Address:     *odomListen,
		LogInterval: 30 * time.Second,
	}, ctrl)
	if err != nil {
		log.Fatalf("failed to create odometry listener: %v", err)
	}

	var wg sync.WaitGroup

	// serial IO
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := mux.Monitor(ctx); err != nil && err != context.Canceled {
			log.Printf("serial monitor terminated: %v", err)
		}
	}()

	// scan head driver
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := driver.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("scan driver terminated: %v", err)
		}
	}()

	// scan delivery into the filter
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case s, ok := <-driver.Scans():
				if !ok {
					return
				}
				if err := ctrl.OfferScan(s); err != nil {
					log.Printf("scan rejected: %v", err)
				}
			}
		}
	}()

	// odometry listener
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := odometry.Start(ctx); err != nil && err != context.Canceled {
			log.Printf("odometry listener terminated: %v", err)
		}
	}()

	// the filter itself
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ctrl.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("filter terminated: %v", err)
		}
	}()

	// pose recorder
	wg.Add(1)
	go func() {
		defer wg.Done()
		recorder.Run(ctx)
	}()

	// HTTP server
	wg.Add(1)
	go func() {
		defer wg.Done()
		runHTTPServer(ctx, ctrl, cfg, db, worldMap, stats)
	}()

	wg.Wait()

	if err := db.FinishRun(runID, time.Now()); err != nil {
		log.Printf("failed to finish run: %v", err)
	}
	log.Printf("graceful shutdown complete: run %s, %d poses stored", runID, recorder.Stored())
}

func runHTTPServer(ctx context.Context, ctrl *mcl.Controller, cfg mcl.Config, db *posedb.PoseDB, worldMap worldmap.Map, stats *monitor.StatsTracker) {
	params, err := api.NewParamStore(cfg)
	if err != nil {
		log.Fatalf("failed to create param store: %v", err)
	}

	mux := http.NewServeMux()
	api.NewServer(ctrl, params, db).AttachRoutes(mux)
	db.AttachDebugRoutes(mux)

	var walls []worldmap.Segment
	if sm, ok := worldMap.(*worldmap.SegmentMap); ok {
		walls = sm.Segments()
	}
	monitor.NewWebServer(ctrl, walls, stats).AttachRoutes(mux)

	server := &http.Server{
		Addr:    *listen,
		Handler: api.LoggingMiddleware(mux),
	}

	go func() {
		log.Printf("HTTP server listening on %s", *listen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start HTTP server: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
}

// replayFixtures loops a file of $SCAN lines into the mock port at
// 10Hz so -dev behaves like live hardware.
func replayFixtures(ctx context.Context, port *serialmux.MockSerialPort, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("failed to open fixtures file: %v", err)
	}

	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		log.Fatalf("fixtures file %s has no scan lines", path)
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := port.PushLine(lines[i%len(lines)]); err != nil {
				return
			}
		}
	}
}
