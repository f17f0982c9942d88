// Package daemon wires tdcsyncd: device open, optional firmware load, the
// status monitor and the TDC sync loop, all reporting on one bus.
package daemon

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"rsmu-go/bus"
	"rsmu-go/clock"
	"rsmu-go/drivers/rsmu"
	"rsmu-go/drivers/rsmu/i2cdev"
	"rsmu-go/firmware"
	"rsmu-go/services/config"
	"rsmu-go/services/heartbeat"
	"rsmu-go/services/monitor"
	"rsmu-go/services/tdcsync"
	"rsmu-go/services/tdcsync/servo"
	"rsmu-go/types"
	"rsmu-go/x/timex"
	"rsmu-go/x/util"
)

const Name = "tdcsyncd"

var (
	DeviceTopic   = bus.T("rsmu", "device")
	FirmwareTopic = bus.T("rsmu", "firmware")
)

// Clock is the clock the sync loop disciplines. *clock.Clock implements it.
type Clock interface {
	tdcsync.ClockControl
	Frequency() (float64, error)
	SetMaxPPB(ppb float64)
	Close() error
}

// Hooks open the outside world; tests replace them.
type Hooks struct {
	OpenTransport func(config.Device) (rsmu.Transport, io.Closer, error)
	OpenClock     func(name string) (Clock, error)
	OpenTrace     func(path string) (io.WriteCloser, error)
	Firmware      firmware.Source // nil serves cfg.Firmware.Dir
}

func DefaultHooks() Hooks {
	return Hooks{
		OpenTransport: func(d config.Device) (rsmu.Transport, io.Closer, error) {
			c, err := i2cdev.Open(i2cdev.Options{Bus: d.Bus, Addr: d.Address, Force: d.Force, Transport: d.Transport})
			if err != nil {
				return nil, nil, err
			}
			return c, c, nil
		},
		OpenClock: func(name string) (Clock, error) {
			c, err := clock.Open(name)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
		OpenTrace: func(path string) (io.WriteCloser, error) {
			return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		},
	}
}

type Daemon struct {
	cfg   *config.Daemon
	hooks Hooks
	log   *slog.Logger
	bus   *bus.Bus

	mu        sync.Mutex
	syncState string
}

func New(cfg *config.Daemon, log *slog.Logger, hooks Hooks) *Daemon {
	if log == nil {
		log = slog.Default()
	}
	return &Daemon{cfg: cfg, hooks: hooks, log: log, bus: bus.NewBus(32), syncState: "idle"}
}

func (d *Daemon) Bus() *bus.Bus { return d.bus }

func (d *Daemon) setSyncState(s string) {
	d.mu.Lock()
	d.syncState = s
	d.mu.Unlock()
}

func (d *Daemon) status() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.syncState
}

// Run blocks until ctx ends or start-up fails.
func (d *Daemon) Run(ctx context.Context) error {
	cfg := d.cfg
	conn := d.bus.NewConnection(Name)

	if err := config.NewConfigService(cfg).Start(ctx, conn); err != nil {
		return err
	}
	hb := &heartbeat.Service{Name: Name, Interval: cfg.Heartbeat, Status: d.status}
	if err := hb.Start(ctx, d.bus.NewConnection("heartbeat")); err != nil {
		return err
	}

	rcfg, err := cfg.RSMU()
	if err != nil {
		return err
	}
	rcfg.Logger = d.log.With(slog.String("svc", "rsmu"))

	tr, closer, err := d.hooks.OpenTransport(cfg.Device)
	if err != nil {
		return err
	}
	defer closer.Close()

	dev, err := rsmu.Open(tr, rcfg)
	if err != nil {
		return err
	}
	info := types.DeviceInfo{
		Family:    rcfg.Family.String(),
		Revision:  dev.Revision().String(),
		Transport: dev.Transport().String(),
		Bus:       cfg.Device.Bus,
		Addr:      cfg.Device.Address,
	}
	conn.Publish(conn.NewMessage(DeviceTopic, info, true))
	d.log.Info("device open", slog.String("family", info.Family), slog.String("revision", info.Revision),
		slog.String("transport", info.Transport), slog.Int("bus", info.Bus), slog.Int("addr", int(info.Addr)))

	if cfg.Firmware.Load {
		if err := d.loadFirmware(conn, dev); err != nil {
			return err
		}
	}

	var wg sync.WaitGroup
	mon, err := monitor.New(dev, d.bus.NewConnection("monitor"), d.monitorConfig(rcfg.Family))
	if err != nil {
		return err
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		mon.Run(ctx)
	}()

	if cfg.Sync.Enabled {
		sub := conn.Subscribe(tdcsync.StateTopic)
		wg.Add(2)
		go func() {
			defer wg.Done()
			d.followSync(ctx, sub)
		}()
		go func() {
			defer wg.Done()
			d.runSync(ctx, dev)
		}()
	}

	<-ctx.Done()
	wg.Wait()
	d.log.Info("stopped")
	return nil
}

// followSync mirrors the loop's published state into the heartbeat status.
func (d *Daemon) followSync(ctx context.Context, sub *bus.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-sub.Channel():
			if !ok {
				return
			}
			if st, ok := m.Payload.(types.SyncState); ok {
				d.setSyncState(st.State)
			}
		}
	}
}

func (d *Daemon) monitorConfig(fam rsmu.Family) monitor.Config {
	m := d.cfg.Monitor
	dplls := append([]int(nil), m.DPLLs...)
	found := false
	for _, n := range dplls {
		found = found || n == d.cfg.Sync.DPLL
	}
	if d.cfg.Sync.Enabled && !found {
		dplls = append(dplls, d.cfg.Sync.DPLL)
	}
	return monitor.Config{
		DPLLs:        dplls,
		Refs:         m.Refs,
		DPLLInterval: m.DPLLInterval,
		RefInterval:  m.RefmonInterval,
		Jitter:       m.DPLLInterval / 20,
		FFO:          m.FFO && fam == rsmu.ClockMatrix,
		Logger:       d.log,
	}
}

func (d *Daemon) loadFirmware(conn *bus.Connection, dev *rsmu.Device) error {
	src := d.hooks.Firmware
	if src == nil {
		src = firmware.NewDir(d.cfg.Firmware.Dir)
	}
	name := d.cfg.Firmware.Name
	st := types.FirmwareStatus{Name: name}

	img, err := src.Load(name)
	if err == nil {
		var ls rsmu.LoadStats
		ls, err = dev.LoadFirmware(img)
		st.Written, st.Skipped, st.Recalibrated = ls.Written, ls.Skipped, ls.Recalibrated
	}
	if err != nil {
		st.Error = err.Error()
	}
	st.TS = timex.NowMs()
	conn.Publish(conn.NewMessage(FirmwareTopic, st, true))
	if err != nil {
		d.log.Error("firmware load failed", slog.String("name", name), slog.Any("err", err))
		return err
	}
	d.log.Info("firmware loaded", slog.String("name", name), slog.Int("written", st.Written),
		slog.Int("skipped", st.Skipped), slog.Bool("recalibrated", st.Recalibrated))
	return nil
}

// runSync keeps the sync loop alive. A failed measurement ends one Run;
// the loop restarts after one period with the servo state intact.
func (d *Daemon) runSync(ctx context.Context, dev *rsmu.Device) {
	sc := d.cfg.Sync
	log := d.log.With(slog.String("svc", "tdcsync"))

	clk, err := d.hooks.OpenClock(sc.Clock)
	if err != nil {
		log.Error("clock open failed", slog.String("clock", sc.Clock), slog.Any("err", err))
		d.setSyncState("no_clock")
		return
	}
	defer clk.Close()
	clk.SetMaxPPB(sc.MaxPPB)

	freq, err := clk.Frequency()
	if err != nil {
		log.Warn("clock frequency unknown, starting from zero", slog.Any("err", err))
		freq = 0
	}
	// The loop writes the negated servo output to the clock.
	pi := servo.NewPI(d.cfg.ServoConfig(), -freq)

	lcfg := tdcsync.Config{
		Period:     sc.Period,
		PhaseWrite: sc.PhaseWrite,
		Logger:     d.log,
		Conn:       d.bus.NewConnection("tdcsync"),
	}
	if sc.Trace != "" {
		w, err := d.hooks.OpenTrace(sc.Trace)
		if err != nil {
			log.Warn("trace disabled", slog.String("path", sc.Trace), slog.Any("err", err))
		} else {
			defer w.Close()
			lcfg.Trace = tdcsync.NewTraceWriter(w)
			log.Info("tracing", slog.String("path", sc.Trace), slog.String("session", lcfg.Trace.Session()))
		}
	}

	loop, err := tdcsync.New(dev, pi, clk, lcfg)
	if err != nil {
		log.Error("sync loop", slog.Any("err", err))
		return
	}
	if st, err := dev.GetLockState(sc.DPLL); err == nil {
		log.Info("sync starting", slog.Int("dpll", sc.DPLL), slog.String("dpll_state", st.String()),
			slog.Duration("period", sc.Period), slog.Bool("phase_write", sc.PhaseWrite))
	}

	restart := time.NewTimer(time.Hour)
	defer restart.Stop()
	for {
		err := loop.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		log.Warn("sync cycle failed, restarting", slog.Any("err", err))
		util.ResetTimer(restart, sc.Period)
		select {
		case <-ctx.Done():
			return
		case <-restart.C:
		}
	}
}
