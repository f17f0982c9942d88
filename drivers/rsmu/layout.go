package rsmu

import "rsmu-go/errcode"

// regID names a logical register independent of family and revision.
type regID uint8

const (
	regDPLLState regID = iota
	regDPLLRef
	regRefPriority
	regLOSStatus
	regFreqMonStatus
	regFFO
	regTDCMeasCtrl
	regTDCMeasStatus
)

var regNames = [...]string{
	regDPLLState:     "dpll_state",
	regDPLLRef:       "dpll_ref",
	regRefPriority:   "ref_priority",
	regLOSStatus:     "los_status",
	regFreqMonStatus: "freq_mon_status",
	regFFO:           "ffo",
	regTDCMeasCtrl:   "tdc_meas_ctrl",
	regTDCMeasStatus: "tdc_meas_status",
}

func (r regID) String() string {
	if int(r) < len(regNames) {
		return regNames[r]
	}
	return "reg?"
}

// field locates a register for an index and the bits within it.
type field struct {
	addr   uint32
	stride uint32 // 0: the index is ignored
	width  int    // bytes, little-endian
	mask   uint64
	shift  uint
}

func (f field) at(i int) uint32       { return f.addr + uint32(i)*f.stride }
func (f field) value(v uint64) uint64 { return (v & f.mask) >> f.shift }

type layoutKey struct {
	fam Family
	rev Revision
	reg regID
}

// layouts is the single source of register addresses. FemtoClock3 rev
// Default and W share entries; rev A moves most blocks and reads only
// DPLL 0's status regardless of the index.
var layouts = map[layoutKey]field{}

func init() {
	for _, rev := range []Revision{RevDefault, RevW} {
		put(FemtoClock3, rev, regDPLLState, field{addr: fc3DPLLStatus, stride: fc3DPLLStride, width: 1, mask: fc3DPLLStateMask, shift: fc3DPLLStateShift})
		put(FemtoClock3, rev, regDPLLRef, field{addr: fc3DPLLStatus, stride: fc3DPLLStride, width: 1, mask: fc3DPLLRefMask, shift: fc3DPLLRefShift})
		put(FemtoClock3, rev, regRefPriority, field{addr: fc3RefPriorityCnfg, stride: fc3DPLLStride, width: prioBytes, mask: 0xFFFF})
		put(FemtoClock3, rev, regLOSStatus, field{addr: fc3LOSStatus, stride: fc3LOSStride, width: 1, mask: fc3LOSMask})
		put(FemtoClock3, rev, regFreqMonStatus, field{addr: fc3FreqMonStatus, stride: fc3FreqMonStride, width: 4, mask: fc3FreqFailMask, shift: 31})
		put(FemtoClock3, rev, regTDCMeasCtrl, field{addr: fc3TDCMeasCtrl, width: 1, mask: 0xFF})
		put(FemtoClock3, rev, regTDCMeasStatus, field{addr: fc3TDCMeasStatus, width: 8, mask: ^uint64(0)})
	}

	put(FemtoClock3, RevA, regDPLLState, field{addr: fc3DPLLStatusA, width: 1, mask: fc3DPLLStateMask, shift: fc3DPLLStateShift})
	put(FemtoClock3, RevA, regDPLLRef, field{addr: fc3DPLLStatusA, width: 1, mask: fc3DPLLRefMask, shift: fc3DPLLRefShift})
	put(FemtoClock3, RevA, regRefPriority, field{addr: fc3RefPriorityCnfg, width: prioBytes, mask: 0xFFFF})
	put(FemtoClock3, RevA, regLOSStatus, field{addr: fc3LOSStatusA, stride: fc3LOSStride, width: 1, mask: fc3LOSMask})
	put(FemtoClock3, RevA, regFreqMonStatus, field{addr: fc3FreqMonStatusA, stride: fc3FreqMonStride, width: 4, mask: fc3FreqFailMask, shift: 31})
	put(FemtoClock3, RevA, regTDCMeasCtrl, field{addr: fc3TDCMeasCtrlA, width: 1, mask: 0xFF})
	put(FemtoClock3, RevA, regTDCMeasStatus, field{addr: fc3TDCMeasStatusA, width: 8, mask: ^uint64(0)})

	put(ClockMatrix, RevDefault, regDPLLState, field{addr: cmStatusBase + cmDPLLStateOff, stride: 1, width: 1, mask: cmDPLLStateMask})
	put(ClockMatrix, RevDefault, regFFO, field{addr: cmStatusBase + cmFilterStatOff, stride: cmFilterStride, width: cmFilterBytes, mask: 1<<48 - 1})

	put(Sabre, RevDefault, regDPLLState, field{addr: sabreDPLLOperSts, stride: 1, width: 1, mask: sabreDPLLMask})
}

func put(f Family, r Revision, id regID, fl field) { layouts[layoutKey{f, r, id}] = fl }

// lookup resolves a logical register for the handle's family and revision.
// Families without revisions are keyed on RevDefault.
func lookup(op string, f Family, r Revision, id regID) (field, error) {
	if f != FemtoClock3 {
		r = RevDefault
	}
	fl, ok := layouts[layoutKey{f, r, id}]
	if !ok {
		return field{}, errcode.Unsupported(op, f.String()+" has no "+id.String()+" register")
	}
	return fl, nil
}

// limits bounds caller-supplied indices per family. Zero means the
// concept does not exist on that family.
type limits struct {
	maxDPLL    int
	maxRef     int
	priorities int
}

var familyLimits = map[Family]limits{
	ClockMatrix: {maxDPLL: 7},
	Sabre:       {maxDPLL: 1},
	FemtoClock3: {maxDPLL: 2, maxRef: 3, priorities: 4},
}

// stateTables decode a family's raw DPLL state code.
var stateTables = map[Family]map[uint8]LockState{
	FemtoClock3: {
		0: Unqualified, // freerun
		1: Locked,
		2: HoldoverInSpec,
		3: Unqualified, // write frequency
		4: AcquiringLock,
		5: AcquiringLock, // hitless switch
	},
	ClockMatrix: {
		0: Unqualified, // freerun
		1: AcquiringLock,
		2: AcquiringLock, // lock recovery
		3: Locked,
		4: HoldoverInSpec,
		5: Unqualified, // open loop
	},
	Sabre: {
		1: Unqualified, // freerun
		2: HoldoverInSpec,
		4: Locked,
		5: AcquiringLock, // pre-locked
		6: AcquiringLock, // pre-locked2
		7: AcquiringLock, // lost phase
	},
}

// recalPlan is the TDC/APLL recalibration sequence for a revision.
type recalPlan struct {
	writes     []regWrite
	reinitAddr uint32
	reinitMask byte
}

type regWrite struct {
	addr uint32
	val  byte
}

var recalPlans = map[Revision]recalPlan{
	RevDefault: {
		writes:     []regWrite{{fc3TDCCtrl, fc3TDCEnable}, {fc3TDCCtrl, fc3TDCEnable | fc3TDCRecalReq}},
		reinitAddr: fc3SoftResetCtrl,
		reinitMask: fc3APLLReinit,
	},
	RevW: {
		writes:     []regWrite{{fc3TDCCtrl, fc3TDCEnable}, {fc3TDCCtrl, fc3TDCEnable | fc3TDCRecalReq}},
		reinitAddr: fc3SoftResetCtrl,
		reinitMask: fc3APLLReinit,
	},
	RevA: {
		writes:     []regWrite{{fc3TDCEnableCtrlA, fc3TDCEnable}, {fc3TDCDacCalCtrlA, 0}, {fc3TDCDacCalCtrlA, fc3TDCRecalReqA}},
		reinitAddr: fc3MiscCtrl,
		reinitMask: fc3APLLReinitA,
	},
}
