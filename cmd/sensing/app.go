package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/golang/geo/r3"
	"github.com/invopop/jsonschema"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"
	"golang.org/x/term"

	"go.viam.com/sensing/config"
	"go.viam.com/sensing/driver"
	"go.viam.com/sensing/driver/phy3d"
	"go.viam.com/sensing/driver/phy3d/simchip"
	"go.viam.com/sensing/logging"
	"go.viam.com/sensing/registry"
	"go.viam.com/sensing/sensing"
	"go.viam.com/sensing/sensor"
)

const (
	// Flags.
	flagConfig      = "config"
	flagDebug       = "debug"
	flagSensor      = "sensor"
	flagInterval    = "interval"
	flagDuration    = "duration"
	flagSensitivity = "sensitivity"
	flagMetricsAddr = "metrics-addr"
	flagWatch       = "watch"
	flagSummary     = "summary"
)

func newApp(logger logging.Logger) *cli.App {
	return &cli.App{
		Name:            "sensing",
		Usage:           "inspect and stream the sensors of a sensing config",
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     flagConfig,
				Aliases:  []string{"c"},
				Usage:    "load configuration from `FILE`",
				Required: true,
			},
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool(flagDebug) {
				logger.SetLevel(logging.DEBUG)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "list the configured sensors",
				Action: func(c *cli.Context) error {
					return listAction(c, logger)
				},
			},
			{
				Name:  "schema",
				Usage: "print the JSON schema of the config file",
				Action: func(c *cli.Context) error {
					return schemaAction(c)
				},
			},
			{
				Name:      "stream",
				Usage:     "stream samples from one or more sensors, one session each",
				UsageText: "sensing --config FILE stream --sensor NAME [--sensor NAME ...] [--interval 100ms] [--duration 10s]",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:     flagSensor,
						Aliases:  []string{"s"},
						Usage:    "sensor name or underlying device, repeat to stream several",
						Required: true,
					},
					&cli.DurationFlag{
						Name:  flagInterval,
						Usage: "requested time between samples",
						Value: 100 * time.Millisecond,
					},
					&cli.DurationFlag{
						Name:  flagDuration,
						Usage: "stop after this long (0 streams until interrupted)",
					},
					&cli.Uint64Flag{
						Name:  flagSensitivity,
						Usage: "report-on-change threshold applied to every field, in Q31 units",
					},
					&cli.StringFlag{
						Name:  flagMetricsAddr,
						Usage: "serve prometheus metrics on `ADDR` while streaming",
					},
					&cli.BoolFlag{
						Name:  flagWatch,
						Usage: "re-apply the log section whenever the config file changes",
					},
					&cli.BoolFlag{
						Name:  flagSummary,
						Usage: "print per field statistics when streaming stops",
					},
				},
				Action: func(c *cli.Context) error {
					return streamAction(c, logger)
				},
			},
		},
	}
}

func loadRegistry(c *cli.Context, logger logging.Logger) (*config.Config, *registry.Registry, error) {
	cfg, err := config.Read(c.String(flagConfig), logger)
	if err != nil {
		return nil, nil, err
	}
	reg, err := registry.FromConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, reg, nil
}

func listAction(c *cli.Context, logger logging.Logger) error {
	cfg, reg, err := loadRegistry(c, logger)
	if err != nil {
		return err
	}
	t := table.NewWriter()
	t.AppendHeader(table.Row{"#", "Name", "Friendly Name", "Type", "Model", "Device", "Min Interval", "Fields", "On Change", "Attributes"})
	for i, desc := range reg.List() {
		t.AppendRow(table.Row{
			i,
			desc.Name,
			desc.FriendlyName,
			desc.Type.String(),
			desc.Model,
			desc.PhysicalRef,
			desc.MinInterval.String(),
			desc.FieldCount,
			desc.ReportOnChange,
			cfg.Sensors[i].Attributes.Format(),
		})
	}
	if width := terminalWidth(c.App.Writer); width > 0 {
		t.SetAllowedRowLength(width)
	}
	_, err = fmt.Fprintln(c.App.Writer, t.Render())
	return err
}

// terminalWidth returns the column count of w when it is a terminal, or 0.
func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) { //nolint:gosec
		return 0
	}
	width, _, err := term.GetSize(int(f.Fd())) //nolint:gosec
	if err != nil {
		return 0
	}
	return width
}

// The config file is JSON5, so comments and trailing commas are accepted on top of this schema.
func schemaAction(c *cli.Context) error {
	schema := jsonschema.Reflect(&config.Config{})
	out, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.App.Writer, string(out))
	return err
}

// A stream is one session of the stream command. Its handle stays zero until it is opened.
type stream struct {
	desc    *sensor.Descriptor
	prefix  string
	handle  sensing.Handle
	summary *summary
}

// lockedWriter serializes the lines written by concurrent sessions.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (lw *lockedWriter) println(line string) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	_, _ = fmt.Fprintln(lw.w, line)
}

var prefixColors = []color.Attribute{color.FgCyan, color.FgMagenta, color.FgYellow, color.FgGreen, color.FgBlue}

// resolveStreams looks up every requested sensor by name and then by physical reference. Lines of
// a multi-sensor stream are prefixed with the sensor name.
func resolveStreams(reg *registry.Registry, names []string) ([]*stream, error) {
	streams := make([]*stream, 0, len(names))
	for i, name := range names {
		desc, ok := reg.Lookup(name)
		if !ok {
			if desc, ok = reg.LookupRef(name); !ok {
				return nil, errors.Errorf("no sensor named %q", name)
			}
		}
		st := &stream{desc: desc, summary: newSummary(desc.FieldCount)}
		if len(names) > 1 {
			st.prefix = color.New(prefixColors[i%len(prefixColors)]).Sprint(desc.Name) + "\t"
		}
		streams = append(streams, st)
	}
	return streams, nil
}

func closeStreams(mgr *sensing.Manager, streams []*stream) error {
	var errs error
	for _, st := range streams {
		if st.handle != 0 {
			errs = multierr.Append(errs, mgr.Close(st.handle))
		}
	}
	return errs
}

func streamAction(c *cli.Context, logger logging.Logger) (err error) {
	cfg, reg, err := loadRegistry(c, logger)
	if err != nil {
		return err
	}
	closeLogs, err := cfg.Log.Apply(logger)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, closeLogs())
	}()

	streams, err := resolveStreams(reg, c.StringSlice(flagSensor))
	if err != nil {
		return err
	}
	entries := []sensing.ConfigEntry{{Attribute: sensing.AttrInterval, Interval: c.Duration(flagInterval)}}
	if sensitivity := c.Uint64(flagSensitivity); sensitivity > 0 {
		if sensitivity > math.MaxUint32 {
			return errors.Errorf("sensitivity %d out of range", sensitivity)
		}
		entries = append(entries, sensing.ConfigEntry{
			Attribute:   sensing.AttrSensitivity,
			Index:       sensor.IndexAll,
			Sensitivity: uint32(sensitivity),
		})
	}

	deps, chips := simulatedDevices(reg)
	defer func() {
		for _, chip := range chips {
			chip.Close()
		}
	}()

	promReg := prometheus.NewRegistry()
	mgr, err := sensing.New(reg,
		sensing.WithLogger(logger),
		sensing.WithRegisterer(promReg),
		sensing.WithDriverDeps(deps),
	)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, mgr.Shutdown(context.Background()))
	}()

	if addr := c.String(flagMetricsAddr); addr != "" {
		stopMetrics := serveMetrics(addr, promReg, logger)
		defer stopMetrics()
	}

	out := &lockedWriter{w: c.App.Writer}
	for _, st := range streams {
		h, openErr := mgr.Open(st.desc, &sensing.Callbacks{OnData: func(h sensing.Handle, sample sensor.Sample) {
			st.summary.add(sample)
			out.println(st.prefix + formatSample(sample))
		}})
		if openErr != nil {
			return multierr.Combine(openErr, closeStreams(mgr, streams))
		}
		st.handle = h
		if err := mgr.SetConfig(h, entries); err != nil {
			return multierr.Combine(err, closeStreams(mgr, streams))
		}
		logger.CInfow(c.Context, "streaming", "sensor", st.desc.Name, "handle", h, "interval", c.Duration(flagInterval))
	}

	var changes <-chan *config.Config
	if c.Bool(flagWatch) {
		watcher, watchErr := config.NewWatcher(c.Context, cfg, logger)
		if watchErr != nil {
			return multierr.Combine(watchErr, closeStreams(mgr, streams))
		}
		defer func() {
			err = multierr.Combine(err, watcher.Close())
		}()
		changes = watcher.Config()
	}
	var deadline <-chan time.Time
	if d := c.Duration(flagDuration); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		deadline = timer.C
	}

	for streaming := true; streaming; {
		select {
		case <-c.Context.Done():
			streaming = false
		case <-deadline:
			streaming = false
		case newCfg, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			if err := newCfg.Log.ApplyLevels(logger); err != nil {
				logger.CWarnw(c.Context, "could not apply changed log config", "error", err)
				continue
			}
			logger.CInfow(c.Context, "applied changed log config", "level", newCfg.Log.Level)
		}
	}
	if err := closeStreams(mgr, streams); err != nil {
		return err
	}
	if !c.Bool(flagSummary) {
		return nil
	}
	for _, st := range streams {
		if len(streams) > 1 {
			out.println(strings.TrimSuffix(st.prefix, "\t"))
		}
		out.println(st.summary.render())
	}
	return nil
}

// simulatedDevices backs every phy3d sensor with a simulated chip so the tool runs without
// hardware.
func simulatedDevices(reg *registry.Registry) (driver.Dependencies, []*simchip.Chip) {
	deps := driver.Dependencies{}
	var chips []*simchip.Chip
	for _, desc := range reg.List() {
		if desc.Model != phy3d.Model {
			continue
		}
		ref := desc.PhysicalRef
		if ref == "" {
			ref = desc.Name
		}
		signal := simchip.Gravity
		if desc.Type == sensor.TypeGyrometer3D {
			signal = wobble
		}
		chip := simchip.New(ref, simchip.WithSignal(signal))
		deps[ref] = chip
		chips = append(chips, chip)
	}
	return deps, chips
}

// wobble is a slow rotation about the z axis in degrees per second.
func wobble(elapsed time.Duration) r3.Vector {
	return r3.Vector{Z: 30 * math.Sin(2*math.Pi*elapsed.Seconds()/4)}
}

func formatSample(sample sensor.Sample) string {
	values := make([]string, len(sample.Readings))
	for i := range sample.Readings {
		values[i] = fmt.Sprintf("%.4f", sample.Float(i))
	}
	return fmt.Sprintf("%s\t%s", sample.Timestamp.Format(time.RFC3339Nano), strings.Join(values, "\t"))
}

func serveMetrics(addr string, reg *prometheus.Registry, logger logging.Logger) func() {
	server := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	done := make(chan struct{})
	goutils.PanicCapturingGo(func() {
		defer close(done)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorw("metrics server stopped", "error", err)
		}
	})
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Warnw("error shutting down metrics server", "error", err)
		}
		<-done
	}
}
