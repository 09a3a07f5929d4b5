// Command srcpd is the SRCP 0.8.4 command-station daemon: it accepts
// SRCP sessions over TCP and drives one DDL bus per configured DDL section,
// each carrying every digital protocol enabled for it, plus an optional S88
// feedback chain.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dsigg/srcpd/internal/codec"
	"github.com/dsigg/srcpd/internal/config"
	"github.com/dsigg/srcpd/internal/ddl"
	"github.com/dsigg/srcpd/internal/ddlio"
	"github.com/dsigg/srcpd/internal/mfxstate"
	"github.com/dsigg/srcpd/internal/s88"
	"github.com/dsigg/srcpd/internal/srcp"
)

const defaultConfigFile = "/etc/srcpd.conf"
const pidFilePath = "/var/run/srcpd.pid"

func main() {
	opts, showUsage := config.ParseCLI(os.Args[1:], defaultConfigFile)
	if showUsage {
		fmt.Print(config.Usage(os.Args[0]))
		os.Exit(0)
	}

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		log.WithError(err).Fatal("loading configuration")
	}

	if !opts.Foreground {
		daemonize(log)
	}

	registry := srcp.NewRegistry()
	server, err := srcp.NewServer(cfg.SRCP.Port, registry, log)
	if err != nil {
		log.WithError(err).Fatal("binding SRCP listener")
	}

	var schedulers []*ddl.Scheduler
	var closers []func()

	for _, ddlCfg := range cfg.DDL {
		events := srcp.NewEventBus(server.Bus().NewConnection(fmt.Sprintf("ddl-%d", ddlCfg.Bus)))
		sched, teardown, err := buildDDLBus(ddlCfg, events, log)
		if err != nil {
			log.WithError(err).WithField("bus", ddlCfg.Bus).Fatal("starting DDL bus")
		}
		registry.Add(ddlCfg.Bus, sched)
		schedulers = append(schedulers, sched)
		closers = append(closers, teardown)
		go sched.Run()
	}

	for _, s88Cfg := range cfg.S88 {
		events := srcp.NewEventBus(server.Bus().NewConnection(fmt.Sprintf("s88-%d", s88Cfg.Bus)))
		fbBus, teardown, err := buildS88Bus(s88Cfg, events, log)
		if err != nil {
			log.WithError(err).WithField("bus", s88Cfg.Bus).Fatal("starting S88 bus")
		}
		registry.Add(s88Cfg.Bus, fbBus)
		closers = append(closers, teardown)
	}

	go func() {
		if err := server.Serve(); err != nil {
			log.WithError(err).Error("SRCP listener stopped")
		}
	}()
	log.WithField("port", cfg.SRCP.Port).Info("srcpd listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP, syscall.SIGQUIT)
	<-sigCh

	log.Info("shutting down: broadcasting POWER OFF")
	for _, sched := range schedulers {
		sched.Commands() <- &srcp.Command{Verb: srcp.VerbSet, Device: srcp.KindPower, Params: []string{"OFF"}}
	}
	time.Sleep(200 * time.Millisecond)

	_ = server.Close()
	for _, c := range closers {
		c()
	}
	removePIDFile()
}

func buildDDLBus(cfg config.DDLConfig, events *srcp.EventBus, log *logrus.Logger) (*ddl.Scheduler, func(), error) {
	spiPort, err := ddlio.OpenSPI(cfg.SPIPort+".0", ddlio.SPIConfig{Mode: 1, Bits: 8, Speed: 2000000})
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", cfg.SPIPort, err)
	}

	var trigger ddl.TriggerLine
	if cfg.TriggerPort != "" {
		if line, err := ddlio.OpenOutput("/dev/gpiochip0", 26, "srcpd-trigger", 0); err == nil {
			trigger = line
		}
	}

	codecs := map[codec.ProtocolID]codec.Codec{}
	if cfg.Maerklin {
		codecs[codec.ProtoMM] = codec.NewMM(codec.MM2)
	}
	if cfg.DCC {
		codecs[codec.ProtoDCC] = codec.NewDCC()
	}
	var mfxCounter *mfxstate.Counter
	if cfg.MFXEnabled {
		mfxCounter, err = mfxstate.Load(cfg.MFXRegCountFile)
		if err != nil {
			return nil, nil, fmt.Errorf("loading mfx registration counter: %w", err)
		}
		codecs[codec.ProtoMFX] = codec.NewMFX(cfg.MFXCentralUID, mfxCounter.Value())
	}

	var ackLine ddl.AckLine
	if line, err := ddlio.OpenInput("/dev/gpiochip0", ddlio.LineDCCAck, "srcpd-dcc-ack"); err == nil {
		ackLine = line
	}

	var dsr ddl.DSRLine
	var rts, dtr ddl.TriggerLine
	if cfg.Siggmode {
		if line, err := ddlio.OpenInput("/dev/gpiochip0", ddlio.LineDSR, "srcpd-dsr"); err == nil {
			dsr = line
		}
		if line, err := ddlio.OpenOutput("/dev/gpiochip0", ddlio.LineRTS, "srcpd-rts", 0); err == nil {
			rts = line
		}
		if line, err := ddlio.OpenOutput("/dev/gpiochip0", ddlio.LineDTR, "srcpd-dtr", 0); err == nil {
			dtr = line
		}
	}

	sched := ddl.NewScheduler(cfg.Bus, cfg, codecs, spiPort, trigger, ackLine, dsr, rts, dtr, nil)
	sched.Attach(events)

	if cfg.MFXEnabled && cfg.MFXRDSPort != "" {
		if qual, err := ddlio.OpenInput("/dev/gpiochip0", ddlio.LineMFXQual, "srcpd-mfx-qual"); err == nil {
			sched.SetMFXRDS(qual)
		}
	}

	teardown := func() {
		_ = spiPort.Close()
		if mfxCounter != nil {
			_ = mfxCounter.Persist()
		}
	}
	log.WithFields(logrus.Fields{"bus": cfg.Bus, "maerklin": cfg.Maerklin, "dcc": cfg.DCC, "mfx": cfg.MFXEnabled}).Info("DDL bus ready")
	return sched, teardown, nil
}

func buildS88Bus(cfg config.S88Config, events *srcp.EventBus, log *logrus.Logger) (*s88.Bus, func(), error) {
	spiPort, err := ddlio.OpenSPI(fmt.Sprintf("%s.0", cfg.SPIPort), ddlio.SPIConfig{Mode: uint32(cfg.SPIMode), Bits: 8, Speed: 25000})
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", cfg.SPIPort, err)
	}
	poller := s88.NewPoller(cfg.Bus, cfg, spiPort, events)
	go poller.Run()

	fbBus := s88.NewBus(poller, events)
	teardown := func() {
		poller.Stop()
		_ = spiPort.Close()
	}
	log.WithField("bus", cfg.Bus).Info("S88 bus ready")
	return fbBus, teardown, nil
}

func daemonize(log *logrus.Logger) {
	if os.Getppid() == 1 {
		writePIDFile()
		return
	}
	log.Fatal("daemonization requires the process to be started under a supervisor in this build; pass -n to stay in the foreground")
}

func writePIDFile() {
	_ = os.WriteFile(pidFilePath, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644)
}

func removePIDFile() {
	_ = os.Remove(pidFilePath)
}
