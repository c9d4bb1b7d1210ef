package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mfeld/recentws/internal/cache"
	"github.com/mfeld/recentws/internal/config"
	"github.com/mfeld/recentws/internal/engine"
	"github.com/mfeld/recentws/internal/events"
	"github.com/mfeld/recentws/internal/logfields"
	"github.com/mfeld/recentws/internal/metrics"
)

var CLI struct {
	Settings string `short:"s" help:"Settings file path (default: user config dir)"`
	Verbose  bool   `short:"v" help:"Enable verbose logging"`

	List struct {
		All bool `help:"Include full paths and editors"`
	} `cmd:"" help:"Scan once and list recent workspaces, favorites first"`

	Scan struct{} `cmd:"" help:"Run a single discovery cycle and report what was found"`

	Open struct {
		Target string `arg:"" help:"Workspace name or URI"`
	} `cmd:"" help:"Launch the active editor on a recent workspace"`

	Favorite struct {
		Target string `arg:"" help:"Workspace name or URI"`
	} `cmd:"" help:"Toggle a workspace's favorite flag"`

	Remove struct {
		Target string `arg:"" help:"Workspace name or URI"`
		Hard   bool   `help:"Delete the store record instead of archiving it"`
	} `cmd:"" help:"Remove a workspace from the history store"`

	Serve struct {
		Metrics string `help:"Address to serve Prometheus metrics on (e.g. :9187)"`
	} `cmd:"" help:"Run the engine continuously with adaptive refresh"`
}

var (
	starColor   = color.New(color.FgYellow, color.Bold)
	nameColor   = color.New(color.FgCyan, color.Bold)
	pathColor   = color.New(color.FgHiBlack)
	editorColor = color.New(color.FgGreen)
)

func main() {
	ctx := kong.Parse(&CLI)

	logLevel := slog.LevelWarn
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))

	settingsPath := CLI.Settings
	if settingsPath == "" {
		p, err := config.DefaultPath()
		if err != nil {
			slog.Error("No settings path available", logfields.Error(err))
			os.Exit(1)
		}
		settingsPath = p
	}

	var err error
	switch ctx.Command() {
	case "list":
		err = runList(settingsPath, CLI.List.All)
	case "scan":
		err = runScan(settingsPath)
	case "open <target>":
		err = runOpen(settingsPath, CLI.Open.Target)
	case "favorite <target>":
		err = runFavorite(settingsPath, CLI.Favorite.Target)
	case "remove <target>":
		err = runRemove(settingsPath, CLI.Remove.Target, CLI.Remove.Hard)
	case "serve":
		err = runServe(settingsPath, CLI.Serve.Metrics)
	}
	if err != nil {
		slog.Error("Command failed", logfields.Error(err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newEngine(settingsPath string) (*engine.Engine, error) {
	return engine.New(settingsPath)
}

func runList(settingsPath string, all bool) error {
	eng, err := newEngine(settingsPath)
	if err != nil {
		return err
	}
	eng.ScanOnce()

	view := eng.RecentWorkspaces()
	if len(view) == 0 {
		fmt.Println("No recent workspaces found.")
		return nil
	}

	for _, v := range view {
		star := " "
		if v.Favorite {
			star = starColor.Sprint("*")
		}
		line := fmt.Sprintf("%s %s", star, nameColor.Sprint(v.Name))
		if all {
			line += fmt.Sprintf("  %s  %s", editorColor.Sprint(v.Editor), pathColor.Sprint(v.FullPath))
		}
		if !v.LastAccessed.IsZero() {
			line += "  " + pathColor.Sprint(humanize.Time(v.LastAccessed))
		}
		fmt.Println(line)
	}
	return nil
}

func runScan(settingsPath string) error {
	eng, err := newEngine(settingsPath)
	if err != nil {
		return err
	}

	finished, cancel := events.Subscribe[events.CycleFinished](eng.Bus(), 1)
	defer cancel()

	eng.ScanOnce()

	select {
	case evt := <-finished:
		fmt.Printf("Discovered %d workspaces in %s (%d cached).\n",
			evt.Discovered, evt.Duration.Round(time.Millisecond), len(eng.RecentWorkspaces()))
	default:
		fmt.Println("Scan did not complete.")
	}
	return nil
}

// resolveTarget maps a workspace name or URI to the cached URI.
func resolveTarget(view []cache.View, target string) (string, bool) {
	for _, v := range view {
		if v.URI == target {
			return v.URI, true
		}
	}
	for _, v := range view {
		if v.Name == target {
			return v.URI, true
		}
	}
	return "", false
}

func runOpen(settingsPath, target string) error {
	eng, err := newEngine(settingsPath)
	if err != nil {
		return err
	}
	eng.ScanOnce()

	uri, ok := resolveTarget(eng.RecentWorkspaces(), target)
	if !ok {
		return fmt.Errorf("no recent workspace matches %q", target)
	}

	argv, err := eng.Open(uri)
	if err != nil {
		return err
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch %s: %w", argv[0], err)
	}
	// The editor keeps running after we exit.
	return cmd.Process.Release()
}

func runFavorite(settingsPath, target string) error {
	eng, err := newEngine(settingsPath)
	if err != nil {
		return err
	}
	eng.ScanOnce()

	uri, ok := resolveTarget(eng.RecentWorkspaces(), target)
	if !ok {
		return fmt.Errorf("no recent workspace matches %q", target)
	}
	if err := eng.ToggleFavorite(uri); err != nil {
		return err
	}

	if eng.Favorites()[uri] {
		fmt.Printf("Favorited %s.\n", nameColor.Sprint(cache.DisplayName(uri)))
	} else {
		fmt.Printf("Unfavorited %s.\n", cache.DisplayName(uri))
	}
	return nil
}

func runRemove(settingsPath, target string, hard bool) error {
	eng, err := newEngine(settingsPath)
	if err != nil {
		return err
	}
	eng.ScanOnce()

	uri, ok := resolveTarget(eng.RecentWorkspaces(), target)
	if !ok {
		return fmt.Errorf("no recent workspace matches %q", target)
	}

	if hard {
		err = eng.HardRemove(uri)
	} else {
		err = eng.SoftRemove(uri)
	}
	if err != nil {
		return err
	}
	fmt.Printf("Removed %s.\n", cache.DisplayName(uri))
	return nil
}

func runServe(settingsPath, metricsAddr string) error {
	opts := []engine.Option{}
	if metricsAddr != "" {
		reg := prometheus.NewRegistry()
		opts = append(opts, engine.WithRecorder(metrics.NewPrometheusRecorder(reg)))

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true}))
		go func() {
			slog.Info("Metrics listener starting", slog.String("addr", metricsAddr))
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				slog.Error("Metrics listener failed", logfields.Error(err))
			}
		}()
	}

	eng, err := engine.New(settingsPath, opts...)
	if err != nil {
		return err
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	if err := eng.Start(ctx); err != nil {
		return err
	}
	slog.Info("Engine started", slog.String("settings", settingsPath))

	changed, cancel := events.Subscribe[events.RecentsChanged](eng.Bus(), 16)
	defer cancel()
	go func() {
		for evt := range changed {
			slog.Debug("Recents changed", logfields.Count(evt.Count))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	slog.Info("Shutting down")
	eng.Stop()
	return nil
}
