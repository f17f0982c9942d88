package ctl

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"rsmu-go/drivers/rsmu"
	"rsmu-go/errcode"
	"rsmu-go/firmware"
)

// Device is the synchronizer surface the commands drive. *rsmu.Device
// implements it.
type Device interface {
	GetLockState(dpll int) (rsmu.LockState, error)
	GetActiveReference(dpll int) (int, error)
	GetFrequencyOffset(dpll int) (int64, error)
	SetPriorityTable(dpll int, entries []rsmu.PriorityEntry) error
	GetReferenceMonitorStatus(ref int) (rsmu.RefMonStatus, error)
	GetDeviceRevision() (rsmu.Revision, error)
	MeasureTDC(mode rsmu.TDCMode) (int64, error)
	ReadRange(offset uint32, count int) ([]byte, error)
	WriteRange(offset uint32, data []byte) error
	LoadFirmware(image []byte) (rsmu.LoadStats, error)
	Recalibrate() error
}

// Runner executes command sequences against one device.
type Runner struct {
	Dev      Device
	Firmware firmware.Source
	Out      io.Writer
	Sleep    func(ctx context.Context, d time.Duration) error
}

type command struct {
	name string
	args string
	help string
	run  func(r *Runner, ctx context.Context, args []string) error
}

var commands []command

func init() {
	commands = []command{
		{"get_state", "<dpll_n>", "lock state of <dpll_n>", (*Runner).getState},
		{"get_ffo", "<dpll_n>", "frequency offset of <dpll_n> in ppb", (*Runner).getFFO},
		{"get_ref", "<dpll_n>", "active reference of <dpll_n>", (*Runner).getRef},
		{"set_priority", "<dpll_n> <ref:prio>...", "replace the reference priority table", (*Runner).setPriority},
		{"get_refmon", "<ref_n>", "reference monitor alarms", (*Runner).getRefmon},
		{"get_rev", "", "device revision", (*Runner).getRev},
		{"tdc", "[oneshot|continuous] [count]", "TDC phase measurement in ns", (*Runner).tdc},
		{"rd", "<offset (hex)> [count]", "read [count] bytes (default 1)", (*Runner).rd},
		{"wr", "<offset (hex)> <count> <val (hex)>...", "write <count> bytes", (*Runner).wr},
		{"load_fw", "[name]", "load a firmware image", (*Runner).loadFW},
		{"recal", "", "run the TDC/APLL recalibration", (*Runner).recal},
		{"wait", "<seconds>", "pause between commands", (*Runner).wait},
	}
}

func lookupCommand(name string) *command {
	for i := range commands {
		if commands[i].name == name {
			return &commands[i]
		}
	}
	return nil
}

// Usage lists the commands, one per line.
func Usage(w io.Writer) {
	for _, c := range commands {
		fmt.Fprintf(w, "  %-12s %-38s %s\n", c.name, c.args, c.help)
	}
}

// DefaultSequence runs when no command is given. get_state needs an
// index, so it names DPLL 0.
var DefaultSequence = []string{"get_state", "0"}

// Run executes commands in order. Each command takes the arguments up to
// the next command name. The first failure stops the sequence.
func (r *Runner) Run(ctx context.Context, argv []string) error {
	if len(argv) == 0 {
		argv = DefaultSequence
	}
	for i := 0; i < len(argv); {
		c := lookupCommand(argv[i])
		if c == nil {
			return errcode.Invalid("rsmuctl", "unknown command "+strconv.Quote(argv[i]))
		}
		j := i + 1
		for j < len(argv) && lookupCommand(argv[j]) == nil {
			j++
		}
		if err := c.run(r, ctx, argv[i+1:j]); err != nil {
			return fmt.Errorf("%s: %w", c.name, err)
		}
		i = j
	}
	return nil
}

// ---- argument parsing ----

func wantArgs(args []string, min, max int) error {
	if len(args) < min {
		return errcode.Invalid("args", "missing argument")
	}
	if len(args) > max {
		return errcode.Invalid("args", "unexpected argument "+strconv.Quote(args[max]))
	}
	return nil
}

func parseIndex(s string) (int, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, errcode.Invalid("args", strconv.Quote(s)+" is not a valid index")
	}
	return int(v), nil
}

func parseHex(s string, bits int) (uint64, error) {
	t := strings.TrimPrefix(strings.ToLower(s), "0x")
	v, err := strconv.ParseUint(t, 16, bits)
	if err != nil {
		return 0, errcode.Invalid("args", strconv.Quote(s)+" is not a valid hex value")
	}
	return v, nil
}

func parseCount(s string, max int) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 || v > max {
		return 0, errcode.Invalid("args", fmt.Sprintf("count %q out of range 1..%d", s, max))
	}
	return v, nil
}

// parsePriority reads "ref:prio".
func parsePriority(s string) (rsmu.PriorityEntry, error) {
	ref, prio, ok := strings.Cut(s, ":")
	if !ok {
		return rsmu.PriorityEntry{}, errcode.Invalid("args", strconv.Quote(s)+" is not ref:prio")
	}
	r, err := parseIndex(ref)
	if err != nil {
		return rsmu.PriorityEntry{}, err
	}
	p, err := parseIndex(prio)
	if err != nil {
		return rsmu.PriorityEntry{}, err
	}
	return rsmu.PriorityEntry{Ref: r, Priority: p}, nil
}

// ---- commands ----

func (r *Runner) getState(_ context.Context, args []string) error {
	if err := wantArgs(args, 1, 1); err != nil {
		return err
	}
	n, err := parseIndex(args[0])
	if err != nil {
		return err
	}
	st, err := r.Dev.GetLockState(n)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.Out, "DPLL %d:  state = %s\n", n, st)
	return nil
}

func (r *Runner) getFFO(_ context.Context, args []string) error {
	if err := wantArgs(args, 1, 1); err != nil {
		return err
	}
	n, err := parseIndex(args[0])
	if err != nil {
		return err
	}
	ppq, err := r.Dev.GetFrequencyOffset(n)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.Out, "DPLL %d:  ffo = %.6f ppb\n", n, float64(ppq)/1e6)
	return nil
}

func (r *Runner) getRef(_ context.Context, args []string) error {
	if err := wantArgs(args, 1, 1); err != nil {
		return err
	}
	n, err := parseIndex(args[0])
	if err != nil {
		return err
	}
	ref, err := r.Dev.GetActiveReference(n)
	if err != nil {
		return err
	}
	if ref == rsmu.NoReference {
		fmt.Fprintf(r.Out, "DPLL %d:  ref = none\n", n)
	} else {
		fmt.Fprintf(r.Out, "DPLL %d:  ref = %d\n", n, ref)
	}
	return nil
}

func (r *Runner) setPriority(_ context.Context, args []string) error {
	if err := wantArgs(args, 2, 1+rsmuMaxRefs); err != nil {
		return err
	}
	n, err := parseIndex(args[0])
	if err != nil {
		return err
	}
	entries := make([]rsmu.PriorityEntry, 0, len(args)-1)
	for _, a := range args[1:] {
		e, err := parsePriority(a)
		if err != nil {
			return err
		}
		entries = append(entries, e)
	}
	if err := r.Dev.SetPriorityTable(n, entries); err != nil {
		return err
	}
	fmt.Fprintf(r.Out, "DPLL %d:  priority = 0x%04x\n", n, rsmu.EncodePriorityTable(entries))
	return nil
}

// rsmuMaxRefs caps set_priority arguments; the device validates the rest.
const rsmuMaxRefs = 8

func (r *Runner) getRefmon(_ context.Context, args []string) error {
	if err := wantArgs(args, 1, 1); err != nil {
		return err
	}
	n, err := parseIndex(args[0])
	if err != nil {
		return err
	}
	st, err := r.Dev.GetReferenceMonitorStatus(n)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.Out, "REF %d:  los = %t  freq_fail = %t\n", n, st.LossOfSignal, st.FreqFail)
	return nil
}

func (r *Runner) getRev(_ context.Context, args []string) error {
	if err := wantArgs(args, 0, 0); err != nil {
		return err
	}
	rev, err := r.Dev.GetDeviceRevision()
	if err != nil {
		return err
	}
	fmt.Fprintf(r.Out, "revision = %s\n", rev)
	return nil
}

func (r *Runner) tdc(ctx context.Context, args []string) error {
	if err := wantArgs(args, 0, 2); err != nil {
		return err
	}
	mode, count := rsmu.TDCOneShot, 1
	for _, a := range args {
		switch a {
		case "oneshot", "one-shot":
			mode = rsmu.TDCOneShot
		case "continuous":
			mode = rsmu.TDCContinuous
		default:
			n, err := parseCount(a, 1000)
			if err != nil {
				return err
			}
			count = n
		}
	}
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		ns, err := r.Dev.MeasureTDC(mode)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.Out, "TDC %s:  %d ns\n", mode, ns)
	}
	return nil
}

func (r *Runner) rd(_ context.Context, args []string) error {
	if err := wantArgs(args, 1, 2); err != nil {
		return err
	}
	off, err := parseHex(args[0], 32)
	if err != nil {
		return err
	}
	count := 1
	if len(args) == 2 {
		if count, err = parseCount(args[1], rsmu.MaxRangeRead); err != nil {
			return err
		}
	}
	data, err := r.Dev.ReadRange(uint32(off), count)
	if err != nil {
		return err
	}
	Hexdump(r.Out, uint32(off), data)
	return nil
}

func (r *Runner) wr(_ context.Context, args []string) error {
	if err := wantArgs(args, 3, 2+rsmu.MaxRangeWrite); err != nil {
		return err
	}
	off, err := parseHex(args[0], 32)
	if err != nil {
		return err
	}
	count, err := parseCount(args[1], rsmu.MaxRangeWrite)
	if err != nil {
		return err
	}
	if len(args)-2 != count {
		return errcode.Invalid("args", fmt.Sprintf("%d values given for count %d", len(args)-2, count))
	}
	data := make([]byte, count)
	hex := make([]string, count)
	for i, a := range args[2:] {
		v, err := parseHex(a, 8)
		if err != nil {
			return err
		}
		data[i] = byte(v)
		hex[i] = fmt.Sprintf("%02x", data[i])
	}
	if err := r.Dev.WriteRange(uint32(off), data); err != nil {
		return err
	}
	fmt.Fprintf(r.Out, "wr %04x %d %s\n", off, count, strings.Join(hex, " "))
	return nil
}

func (r *Runner) loadFW(_ context.Context, args []string) error {
	if err := wantArgs(args, 0, 1); err != nil {
		return err
	}
	if r.Firmware == nil {
		return errcode.Invalid("load_fw", "no firmware source")
	}
	name := rsmu.DefaultFirmwareName
	if len(args) == 1 {
		name = args[0]
	}
	img, err := r.Firmware.Load(name)
	if err != nil {
		return err
	}
	st, err := r.Dev.LoadFirmware(img)
	fmt.Fprintf(r.Out, "firmware %s:  written = %d  skipped = %d  recalibrated = %t\n",
		name, st.Written, st.Skipped, st.Recalibrated)
	return err
}

func (r *Runner) recal(_ context.Context, args []string) error {
	if err := wantArgs(args, 0, 0); err != nil {
		return err
	}
	if err := r.Dev.Recalibrate(); err != nil {
		return err
	}
	fmt.Fprintln(r.Out, "recalibrated")
	return nil
}

func (r *Runner) wait(ctx context.Context, args []string) error {
	if err := wantArgs(args, 1, 1); err != nil {
		return err
	}
	secs, err := strconv.ParseFloat(args[0], 64)
	if err != nil || secs < 0 {
		return errcode.Invalid("args", strconv.Quote(args[0])+" is not a valid number of seconds")
	}
	sleep := r.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	return sleep(ctx, time.Duration(secs*float64(time.Second)))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
