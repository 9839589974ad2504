package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/giledward/wallmusic/internal/config"
	"github.com/giledward/wallmusic/internal/engine"
	"github.com/giledward/wallmusic/internal/media"
	"github.com/giledward/wallmusic/internal/rules"
	"github.com/giledward/wallmusic/internal/session"
	"github.com/giledward/wallmusic/internal/util"
)

// benchEvent is one media session observation; Present=false means no session.
type benchEvent struct {
	Props   media.Properties
	Present bool
	Delay   time.Duration
}

type benchFixture struct {
	Name   string
	Events []benchEvent
}

type benchLatencyStats struct {
	Min    float64 `json:"minMs"`
	Mean   float64 `json:"meanMs"`
	Median float64 `json:"medianMs"`
	P95    float64 `json:"p95Ms"`
	Max    float64 `json:"maxMs"`
}

type benchAllocationStats struct {
	Total         uint64  `json:"totalAllocations"`
	PerEvent      float64 `json:"allocationsPerEvent"`
	BytesTotal    uint64  `json:"bytesTotal"`
	BytesPerEvent float64 `json:"bytesPerEvent"`
}

type benchApplyStats struct {
	Total        int     `json:"total"`
	PerIteration float64 `json:"perIteration"`
	PerEvent     float64 `json:"perEvent"`
}

type benchSummary struct {
	Fixture            string               `json:"fixture"`
	Iterations         int                  `json:"iterations"`
	EventsPerIteration int                  `json:"eventsPerIteration"`
	TotalEvents        int                  `json:"totalEvents"`
	WarmupIterations   int                  `json:"warmupIterations"`
	Applies            benchApplyStats      `json:"applies"`
	Latency            benchLatencyStats    `json:"latency"`
	IterationDuration  benchLatencyStats    `json:"iterationDuration"`
	Allocations        benchAllocationStats `json:"allocations"`
	TotalDurationMs    float64              `json:"totalDurationMs"`
	EventsPerSecond    float64              `json:"eventsPerSecond"`
}

type benchReport struct {
	Summary     benchSummary     `json:"summary"`
	DurationsMs []float64        `json:"durationsMs"`
	Iterations  []benchIteration `json:"iterations,omitempty"`
}

type benchIteration struct {
	Index      int     `json:"index"`
	DurationMs float64 `json:"durationMs"`
	Applies    int     `json:"applies"`
	Events     int     `json:"events"`
}

type benchEventTrace struct {
	Iteration  int     `json:"iteration"`
	EventIndex int     `json:"eventIndex"`
	Track      string  `json:"track"`
	Wallpaper  string  `json:"wallpaper,omitempty"`
	DurationMs float64 `json:"durationMs"`
	Applied    bool    `json:"applied"`
}

// scriptedSource replays fixture events as the current media session.
type scriptedSource struct {
	mu      sync.Mutex
	props   media.Properties
	present bool
}

func (s *scriptedSource) Connect(context.Context) error        { return nil }
func (s *scriptedSource) RefreshSession(context.Context) error { return nil }
func (s *scriptedSource) Close() error                         { return nil }

func (s *scriptedSource) Current(context.Context) (media.Properties, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.props, s.present, nil
}

func (s *scriptedSource) set(ev benchEvent) {
	s.mu.Lock()
	s.props, s.present = ev.Props, ev.Present
	s.mu.Unlock()
}

// dryRunApplier records wallpaper changes without touching the desktop.
type dryRunApplier struct {
	mu      sync.Mutex
	current string
	applies int
}

func (a *dryRunApplier) SetWallpaper(_ context.Context, path string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if path == a.current {
		return false, nil
	}
	a.current = path
	a.applies++
	return true, nil
}

func (a *dryRunApplier) snapshot() (string, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current, a.applies
}

func main() {
	cfgPath := flag.String("config", config.DefaultConfigPath(), "path to the rules settings file")
	fixturePath := flag.String("fixture", "", "path to replay fixture (JSON/YAML or track log); empty uses a built-in stream")
	iterations := flag.Int("iterations", 10, "number of times to replay the fixture")
	warmup := flag.Int("warmup", 0, "number of warm-up iterations to run before timing")
	cpuProfile := flag.String("cpu-profile", "", "write CPU profile to file")
	spotifyOnly := flag.Bool("spotify-only", false, "ignore tracks from other players")
	logLevel := flag.String("log-level", "warn", "log level (trace|debug|info|warn|error)")
	respectDelays := flag.Bool("respect-delays", false, "sleep for event delays declared in the fixture")
	outputPath := flag.String("output", "-", "write JSON report to file ('-' for stdout)")
	humanSummary := flag.Bool("human", false, "print a tabular summary alongside the JSON output")
	eventTracePath := flag.String("event-trace", "", "write per-event timings to file (JSON array, '-' for stdout)")
	explain := flag.Bool("explain", false, "log rule evaluation for each event during replay")
	flag.Parse()

	if *iterations <= 0 {
		fmt.Fprintln(os.Stderr, "iterations must be positive")
		os.Exit(1)
	}
	if *warmup < 0 {
		fmt.Fprintln(os.Stderr, "warmup must be zero or positive")
		os.Exit(1)
	}

	logger := util.NewLogger(util.ParseLogLevel(*logLevel))
	traceEnabled := strings.TrimSpace(*eventTracePath) != ""

	cfg, err := config.LoadRules(*cfgPath)
	if err != nil {
		exitErr(fmt.Errorf("load config: %w", err))
	}
	rs, err := rules.Build(cfg)
	if err != nil {
		exitErr(fmt.Errorf("compile rules: %w", err))
	}

	fixture := defaultFixture()
	if *fixturePath != "" {
		loaded, err := loadFixture(*fixturePath)
		if err != nil {
			exitErr(fmt.Errorf("load fixture: %w", err))
		}
		fixture = loaded
	}

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			exitErr(fmt.Errorf("create cpu profile: %w", err))
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			exitErr(fmt.Errorf("start cpu profile: %w", err))
		}
		defer pprof.StopCPUProfile()
	}

	opts := replayOptions{
		rules:         rs,
		spotifyOnly:   *spotifyOnly,
		respectDelays: *respectDelays,
		explain:       *explain,
	}
	ctx := context.Background()
	for i := 0; i < *warmup; i++ {
		if _, err := replayIteration(ctx, fixture, logger, opts, i+1, false); err != nil {
			exitErr(fmt.Errorf("warmup iteration %d: %w", i+1, err))
		}
	}

	runtime.GC()
	var startMem runtime.MemStats
	runtime.ReadMemStats(&startMem)

	var (
		durations          []time.Duration
		iterationDurations []time.Duration
		iterationApplies   []int
		totalApplies       int
		eventTraces        []benchEventTrace
	)
	for i := 0; i < *iterations; i++ {
		res, err := replayIteration(ctx, fixture, logger, opts, i+1, traceEnabled)
		if err != nil {
			exitErr(fmt.Errorf("iteration %d: %w", i+1, err))
		}
		iterationDurations = append(iterationDurations, res.duration)
		iterationApplies = append(iterationApplies, res.applies)
		totalApplies += res.applies
		durations = append(durations, res.eventDurations...)
		eventTraces = append(eventTraces, res.traces...)
	}

	runtime.GC()
	var endMem runtime.MemStats
	runtime.ReadMemStats(&endMem)

	report := buildReport(fixture, *iterations, *warmup, durations, iterationDurations, iterationApplies, totalApplies, startMem, endMem)
	if err := writeJSON(report, *outputPath); err != nil {
		exitErr(fmt.Errorf("encode report: %w", err))
	}
	if traceEnabled {
		if err := writeJSON(eventTraces, *eventTracePath); err != nil {
			exitErr(fmt.Errorf("write event trace: %w", err))
		}
	}
	if *humanSummary {
		if err := printHumanSummary(report.Summary, os.Stdout); err != nil {
			exitErr(fmt.Errorf("print human summary: %w", err))
		}
	}
}

type replayOptions struct {
	rules         *rules.RuleSet
	spotifyOnly   bool
	respectDelays bool
	explain       bool
}

type iterationResult struct {
	duration       time.Duration
	applies        int
	eventDurations []time.Duration
	traces         []benchEventTrace
}

// replayIteration feeds every fixture event through a fresh watcher and
// dispatcher, timing each detection pass end to end.
func replayIteration(ctx context.Context, fixture benchFixture, logger *util.Logger, opts replayOptions, iteration int, trace bool) (iterationResult, error) {
	iterationStart := time.Now()
	src := &scriptedSource{}
	applier := &dryRunApplier{}
	d := engine.New(applier, logger, engine.Options{
		Mode:        config.ModeRules,
		SpotifyOnly: opts.spotifyOnly,
		Rules:       opts.rules,
	})
	w := session.NewWatcher(src, logger, session.Options{})
	w.Subscribe(d.HandleTrack)

	res := iterationResult{eventDurations: make([]time.Duration, 0, len(fixture.Events))}
	for idx, ev := range fixture.Events {
		if opts.respectDelays && ev.Delay > 0 {
			time.Sleep(ev.Delay)
		}
		_, before := applier.snapshot()
		src.set(ev)
		start := time.Now()
		if err := w.PollOnce(ctx); err != nil {
			return iterationResult{}, fmt.Errorf("event %d: %w", idx+1, err)
		}
		elapsed := time.Since(start)
		res.eventDurations = append(res.eventDurations, elapsed)

		track := w.Current()
		if opts.explain && track != nil {
			logger.Infof("explain iteration %d event %d (%s)", iteration, idx+1, track)
			for _, line := range rules.SummarizeExplanation(d.Explain(track)) {
				logger.Infof("  %s", line)
			}
		}
		if trace {
			current, after := applier.snapshot()
			res.traces = append(res.traces, benchEventTrace{
				Iteration:  iteration,
				EventIndex: idx + 1,
				Track:      track.String(),
				Wallpaper:  current,
				DurationMs: toMillis(elapsed),
				Applied:    after > before,
			})
		}
	}
	if err := w.Stop(); err != nil {
		return iterationResult{}, err
	}
	res.duration = time.Since(iterationStart)
	_, res.applies = applier.snapshot()
	return res, nil
}

func buildReport(fixture benchFixture, iterations int, warmup int, durations []time.Duration, iterationDurations []time.Duration, iterationApplies []int, applies int, start, end runtime.MemStats) benchReport {
	totalEvents := len(fixture.Events) * iterations
	latencyStats, totalEventDuration := buildLatencyStats(durations)
	iterationStats, _ := buildLatencyStats(iterationDurations)

	allocs := end.Mallocs - start.Mallocs
	bytesAllocated := end.TotalAlloc - start.TotalAlloc

	durationsMs := make([]float64, len(durations))
	for i, d := range durations {
		durationsMs[i] = toMillis(d)
	}

	iterationsData := make([]benchIteration, 0, len(iterationDurations))
	for i, d := range iterationDurations {
		count := 0
		if i < len(iterationApplies) {
			count = iterationApplies[i]
		}
		iterationsData = append(iterationsData, benchIteration{
			Index:      i + 1,
			DurationMs: toMillis(d),
			Applies:    count,
			Events:     len(fixture.Events),
		})
	}

	summary := benchSummary{
		Fixture:            fixture.Name,
		Iterations:         iterations,
		WarmupIterations:   warmup,
		EventsPerIteration: len(fixture.Events),
		TotalEvents:        totalEvents,
		Applies: benchApplyStats{
			Total:        applies,
			PerIteration: safeDivide(applies, iterations),
			PerEvent:     safeDivide(applies, totalEvents),
		},
		Latency:           latencyStats,
		IterationDuration: iterationStats,
		Allocations: benchAllocationStats{
			Total:         allocs,
			PerEvent:      safeDivide(int(allocs), totalEvents),
			BytesTotal:    bytesAllocated,
			BytesPerEvent: safeDivide(int(bytesAllocated), totalEvents),
		},
		TotalDurationMs: toMillis(totalEventDuration),
		EventsPerSecond: eventsPerSecond(totalEventDuration, totalEvents),
	}
	return benchReport{Summary: summary, DurationsMs: durationsMs, Iterations: iterationsData}
}

func buildLatencyStats(durations []time.Duration) (benchLatencyStats, time.Duration) {
	stats := benchLatencyStats{}
	if len(durations) == 0 {
		return stats, 0
	}
	total := time.Duration(0)
	for _, d := range durations {
		total += d
	}
	mean := total / time.Duration(len(durations))
	sorted := append([]time.Duration(nil), durations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	stats.Min = toMillis(sorted[0])
	stats.Mean = toMillis(mean)
	stats.Median = toMillis(percentile(sorted, 0.50))
	stats.P95 = toMillis(percentile(sorted, 0.95))
	stats.Max = toMillis(sorted[len(sorted)-1])
	return stats, total
}

func safeDivide(total int, count int) float64 {
	if count == 0 {
		return 0
	}
	return float64(total) / float64(count)
}

func writeJSON(v any, outputPath string) error {
	var w io.Writer
	switch strings.TrimSpace(outputPath) {
	case "", "-":
		w = os.Stdout
	default:
		dir := filepath.Dir(outputPath)
		if dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}
		}
		out, err := os.Create(outputPath)
		if err != nil {
			return err
		}
		defer out.Close()
		w = out
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printHumanSummary(summary benchSummary, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	latency := summary.Latency
	iterationLatency := summary.IterationDuration
	allocs := summary.Allocations
	lines := []string{
		fmt.Sprintf("Fixture:\t%s\n", summary.Fixture),
		fmt.Sprintf("Iterations:\t%d\n", summary.Iterations),
		fmt.Sprintf("Warmup iterations:\t%d\n", summary.WarmupIterations),
		fmt.Sprintf("Events/iteration:\t%d\n", summary.EventsPerIteration),
		fmt.Sprintf("Total events:\t%d\n", summary.TotalEvents),
		fmt.Sprintf("Wallpaper changes:\t%d (%.2f / iter, %.2f / event)\n", summary.Applies.Total, summary.Applies.PerIteration, summary.Applies.PerEvent),
		fmt.Sprintf("Latency (ms):\tmin %.2f | mean %.2f | median %.2f | p95 %.2f | max %.2f\n", latency.Min, latency.Mean, latency.Median, latency.P95, latency.Max),
		fmt.Sprintf("Iteration duration (ms):\tmin %.2f | mean %.2f | median %.2f | p95 %.2f | max %.2f\n", iterationLatency.Min, iterationLatency.Mean, iterationLatency.Median, iterationLatency.P95, iterationLatency.Max),
		fmt.Sprintf("Allocations:\t%d total (%.2f / event)\n", allocs.Total, allocs.PerEvent),
		fmt.Sprintf("Bytes allocated:\t%s (%.2f / event)\n", humanize.IBytes(allocs.BytesTotal), allocs.BytesPerEvent),
		fmt.Sprintf("Events/sec:\t%.2f\n", summary.EventsPerSecond),
	}
	for _, line := range lines {
		if _, err := io.WriteString(tw, line); err != nil {
			return err
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w)
	return err
}

func eventsPerSecond(total time.Duration, events int) float64 {
	if total <= 0 || events == 0 {
		return 0
	}
	return float64(events) / total.Seconds()
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	idx := int(p*float64(len(sorted)-1) + 0.5)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

type fixtureEvent struct {
	Title  string `yaml:"title"`
	Artist string `yaml:"artist"`
	Album  string `yaml:"album"`
	AppID  string `yaml:"app_id"`
	Status string `yaml:"status"`
	// None marks an observation with no media session at all.
	None   bool   `yaml:"none"`
	Delay  string `yaml:"delay"`
}

// loadFixture reads a structured fixture (JSON or YAML) or, for .log/.txt
// files, a track log.
func loadFixture(path string) (benchFixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return benchFixture{}, err
	}
	fixture := benchFixture{Name: filepath.Base(path)}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".log", ".txt":
		events, err := parseTrackLog(string(data))
		if err != nil {
			return benchFixture{}, err
		}
		fixture.Events = events
		return fixture, nil
	}

	var payload struct {
		Name   string         `yaml:"name"`
		Events []fixtureEvent `yaml:"events"`
	}
	if err := yaml.Unmarshal(data, &payload); err != nil {
		return benchFixture{}, err
	}
	fixture.Name = fallback(payload.Name, fixture.Name)
	for i, ev := range payload.Events {
		delay := time.Duration(0)
		if ev.Delay != "" {
			d, err := time.ParseDuration(ev.Delay)
			if err != nil {
				return benchFixture{}, fmt.Errorf("event %d: parse delay %q: %w", i+1, ev.Delay, err)
			}
			delay = d
		}
		status := media.StatusPlaying
		if ev.Status != "" {
			status = media.ParsePlaybackStatus(ev.Status)
		}
		fixture.Events = append(fixture.Events, benchEvent{
			Props: media.Properties{
				Title:  strings.TrimSpace(ev.Title),
				Artist: strings.TrimSpace(ev.Artist),
				Album:  strings.TrimSpace(ev.Album),
				AppID:  strings.TrimSpace(ev.AppID),
				Status: status,
			},
			Present: !ev.None,
			Delay:   delay,
		})
	}
	if len(fixture.Events) == 0 {
		return benchFixture{}, errors.New("fixture contains no events")
	}
	return fixture, nil
}

// parseTrackLog reads lines of the form "app>>Artist - Title". A bare "-"
// line stands for "no media".
func parseTrackLog(input string) ([]benchEvent, error) {
	lines := strings.Split(input, "\n")
	events := make([]benchEvent, 0, len(lines))
	for idx, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if trimmed == "-" {
			events = append(events, benchEvent{})
			continue
		}
		app, track, ok := strings.Cut(trimmed, ">>")
		if !ok {
			app, track = "", trimmed
		}
		artist, title, ok := strings.Cut(track, " - ")
		if !ok {
			return nil, fmt.Errorf("line %d: want \"Artist - Title\", got %q", idx+1, track)
		}
		events = append(events, benchEvent{
			Props: media.Properties{
				Title:  strings.TrimSpace(title),
				Artist: strings.TrimSpace(artist),
				AppID:  strings.TrimSpace(app),
				Status: media.StatusPlaying,
			},
			Present: true,
		})
	}
	if len(events) == 0 {
		return nil, errors.New("track log produced no events")
	}
	return events, nil
}

func defaultFixture() benchFixture {
	playing := func(app, artist, title, album string) benchEvent {
		return benchEvent{Present: true, Props: media.Properties{
			Title: title, Artist: artist, Album: album, AppID: app, Status: media.StatusPlaying,
		}}
	}
	paused := playing("spotify", "Nightwish", "Ghost Love Score", "Once")
	paused.Props.Status = media.StatusPaused
	return benchFixture{
		Name: "synthetic-listening",
		Events: []benchEvent{
			playing("spotify", "Nightwish", "Ghost Love Score", "Once"),
			playing("spotify", "Nightwish", "Ghost Love Score", "Once"),
			paused,
			playing("spotify", "Nightwish", "Ghost Love Score", "Once"),
			playing("spotify", "Bonobo", "Kerala", "Migration"),
			playing("firefox", "Lo-Fi Radio", "beats to relax to", ""),
			{},
			playing("spotify", "Daft Punk", "Veridis Quo", "Discovery"),
		},
	}
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return def
}

func exitErr(err error) {
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		fmt.Fprintf(os.Stderr, "error: %v\n", pathErr)
	} else {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	os.Exit(1)
}
