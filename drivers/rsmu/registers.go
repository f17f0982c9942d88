package rsmu

// ---- FemtoClock3 register map ----

const (
	fc3DeviceID      = 0x0002 // 16-bit LE
	fc3DeviceIDVarW  = 0x1000 // set on FC3W parts
	fc3MiscCtrl      = 0x0014 // FC3A APLL reinit lives here
	fc3SoftResetCtrl = 0x0015

	fc3APLLReinit  = 1 << 1
	fc3APLLReinitA = 1 << 2

	fc3TDCEnableCtrlA  = 0x0169
	fc3TDCDacCalCtrlA  = 0x016a
	fc3TDCMeasCtrlA    = 0x016c
	fc3TDCMeasStatusA  = 0x0170
	fc3DPLLStatusA     = 0x0571
	fc3LOSStatusA      = 0x018e
	fc3FreqMonStatusA  = 0x01d4
	fc3TDCCtrl         = 0x044a
	fc3TDCMeasCtrl     = 0x044c
	fc3TDCMeasStatus   = 0x0450
	fc3RefPriorityCnfg = 0x0502
	fc3DPLLStatus      = 0x0580
	fc3LOSStatus       = 0x081e
	fc3FreqMonStatus   = 0x0874

	fc3TDCEnable     = 1 << 0
	fc3TDCRecalReq   = 1 << 1
	fc3TDCRecalReqA  = 1 << 0
	fc3TDCMeasStart  = 1 << 0
	fc3TDCMeasContin = 1 << 1

	fc3DPLLStride    = 0x100
	fc3LOSStride     = 0x10
	fc3FreqMonStride = 0x20

	fc3DPLLStateMask  = 0x70
	fc3DPLLStateShift = 4
	fc3DPLLRefMask    = 0x06
	fc3DPLLRefShift   = 1
	fc3LOSMask        = 0x01
	fc3FreqFailMask   = 1 << 31

	// Firmware records addressing beyond this are skipped.
	fc3FirmwareMaxAddr = 0x0E88
)

// Reference priority register packing: bits 0..3 disable refs 0..3,
// bits 4+2i..5+2i hold ref i's priority.
const (
	prioDisableAll = 0x000F
	prioFieldShift = 4
	prioFieldBits  = 2
	prioBytes      = 2
)

// ---- ClockMatrix register map (status block) ----

const (
	cmStatusBase    = 0x2010c03c
	cmDPLLStateOff  = 0x18 // + dpll, 1 byte each
	cmFilterStatOff = 0x44 // + 8*dpll, 48-bit FFO
	cmDPLLStateMask = 0x0f
	cmFilterStride  = 8
	cmFilterBytes   = 6
)

// ---- Sabre register map ----

const (
	sabreDPLLOperSts = 0x102 // DPLL1; DPLL2 follows
	sabreDPLLMask    = 0x07
)
