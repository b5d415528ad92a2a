package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sort"
	"time"

	"github.com/awesome-gocui/gocui"
	. "github.com/logrusorgru/aurora"
	"github.com/sirupsen/logrus"

	"github.com/km4kfl/beamrecv/beamform"
	"github.com/km4kfl/beamrecv/entity"
	"github.com/km4kfl/beamrecv/ingest"
	"github.com/km4kfl/beamrecv/internal/config"
	"github.com/km4kfl/beamrecv/modes/crc"
	"github.com/km4kfl/beamrecv/modes/decode"
	"github.com/km4kfl/beamrecv/pipe"
	"github.com/km4kfl/beamrecv/sink"
)

const sampleSourceAddr = "127.0.0.1:7878"

type Context struct {
	orch  *ingest.Orchestrator
	table *entity.Table
}

func (ctx *Context) update(g *gocui.Gui) error {
	stats := ctx.orch.Stats()

	s, err := g.View("status")
	if err != nil {
		return nil
	}
	s.Clear()
	fmt.Fprintf(s, " BUFFERS: %d  LAST: %.3fs  UPDATED: %s\n",
		Green(stats.BuffersProcessed),
		stats.LastBufferSeconds,
		Bold(Green(time.Now().Format("2006-01-02 15:04:05"))))

	if stats.LastBufferTooSlow {
		fmt.Fprintln(s, Bold(Red(" TOO SLOW")))
	}

	fmt.Fprintf(s, " DF17/18: id=%d surf=%d air=%d vel_gs=%d vel_as=%d other=%d total=%d\n",
		stats.Combined.Identity, stats.Combined.Surface, stats.Combined.Airborne,
		stats.Combined.VelocityGS, stats.Combined.VelocityAS, stats.Combined.Other, stats.Combined.Total)

	for i, ps := range stats.PerStream {
		fmt.Fprintf(s, " ANT%d: df11=%d df17=%d df18=%d other=%d\n", i, ps.DF11, ps.DF17, ps.DF18, ps.Other)
	}

	l, err := g.View("list")
	if err != nil {
		return nil
	}
	l.Clear()

	fmt.Fprintln(l, " ICAO ADDR  FLIGHT     ALT    LAT      LON    MSGS  INBEAM")
	fmt.Fprintln(l, " ===================================================================")

	entities := ctx.table.Snapshot()
	sort.Slice(entities, func(i, j int) bool { return entities[i].Addr < entities[j].Addr })

	for _, e := range entities {
		fmt.Fprintln(l, Sprintf(Yellow(" %06X  %-9s  %-5.0f  %7.3f  %7.3f  %5d  %5d"),
			e.Addr, e.Flight, e.Alt, e.Lat, e.Lon, e.MessageCount, e.Inbeam))
	}

	return nil
}

func layout(g *gocui.Gui) error {
	const maxX = 90
	_, maxY := g.Size()

	v, _ := g.SetView("status", 0, 0, maxX-2, 5, 0)
	v.Title = " STATUS "

	v, _ = g.SetView("list", 0, 6, maxX-2, maxY-1, 0)
	v.Title = " ENTITIES "
	return nil
}

func quit(g *gocui.Gui, v *gocui.View) error {
	return gocui.ErrQuit
}

func main() {
	log := logrus.New()

	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	log.WithFields(logrus.Fields{
		"thread_count": cfg.ThreadCount,
		"cycle_count":  cfg.CycleCount,
	}).Info("starting beamrecv")

	pipes := pipe.NewManager(cfg.ThreadCount, cfg.CycleCount)
	table := entity.NewTable(pipes, cfg.SNRScaler, cfg.WeightedAvgDepth, beamform.SampleRateHz)
	seen := decode.NewSeenMap()
	errTable := crc.BuildErrorTable()

	var sinks ingest.Sinks
	if cfg.FileOutput != "" {
		f, err := os.Create(cfg.FileOutput)
		if err != nil {
			log.WithError(err).Fatal("failed to create file sink")
		}
		defer f.Close()
		sinks.File = sink.NewFileSink(f)
	}
	if cfg.NetRawOut != "" {
		rh, err := sink.DialRawHex(cfg.NetRawOut)
		if err != nil {
			log.WithError(err).Fatal("failed to dial raw-hex sink")
		}
		sinks.RawHex = rh
	}

	orch := ingest.NewOrchestrator(pipes, table, seen, errTable, sinks, log, cfg.RandomizeAmplitudes, cfg.ULAEnabled, cfg.ULASpacingWavelength)

	conn, err := net.Dial("tcp", sampleSourceAddr)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to sample source")
	}

	go func() {
		if err := orch.Run(conn); err != nil {
			log.WithError(err).Fatal("ingest pipeline stopped")
		}
	}()

	g, err := gocui.NewGui(gocui.OutputNormal, false)
	if err != nil {
		log.WithError(err).Fatal("failed to start status UI")
	}
	defer g.Close()

	g.SetManagerFunc(layout)
	if err := g.SetKeybinding("", gocui.KeyCtrlC, gocui.ModNone, quit); err != nil {
		log.WithError(err).Fatal("failed to bind quit key")
	}

	ctx := &Context{orch: orch, table: table}

	go func() {
		for range time.Tick(time.Second) {
			g.Update(ctx.update)
		}
	}()

	if err := g.MainLoop(); err != nil && !errors.Is(err, gocui.ErrQuit) {
		log.WithError(err).Fatal("status UI exited")
	}
}
