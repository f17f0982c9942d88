package types

// ---- Service state (retained) ----

type ServiceState struct {
	Level  string `json:"level"`  // "starting", "running", "stopped"
	Status string `json:"status"` // freeform short code
	TS     int64  `json:"ts_ms"`
}

// Link is the health reported for a polled resource.
type Link string

const (
	LinkUp       Link = "up"
	LinkDown     Link = "down"
	LinkDegraded Link = "degraded"
)

// ---- Device identity (retained: rsmu/device) ----

type DeviceInfo struct {
	Family    string `json:"family"`
	Revision  string `json:"revision"`
	Transport string `json:"transport"` // "i2c" | "smbus"
	Bus       int    `json:"bus"`
	Addr      uint16 `json:"addr"`
}

// ---- DPLL status (retained: rsmu/dpll/<n>) ----

type DPLLStatus struct {
	DPLL      int    `json:"dpll"`
	State     string `json:"state"` // unqualified | acquiring | locked | holdover | invalid
	Reference int    `json:"ref"`   // -1 when none
	FFOppq    *int64 `json:"ffo_ppq,omitempty"`
	Link      Link   `json:"link"`
	Error     string `json:"error,omitempty"`
	TS        int64  `json:"ts_ms"`
}

// ---- Reference monitor (retained: rsmu/ref/<n>) ----

type RefStatus struct {
	Ref          int    `json:"ref"`
	LossOfSignal bool   `json:"los"`
	FreqFail     bool   `json:"freq_fail"`
	Link         Link   `json:"link"`
	Error        string `json:"error,omitempty"`
	TS           int64  `json:"ts_ms"`
}

// ---- TDC sync loop (retained: rsmu/sync/state) ----

type SyncState struct {
	State    string  `json:"state"` // unlocked | jump | locked | locked_stable
	Mode     string  `json:"mode"`  // one-shot | continuous
	OffsetNs int64   `json:"offset_ns"`
	FreqPPB  float64 `json:"freq_ppb"`
	Resets   uint64  `json:"resets"`
	Error    string  `json:"error,omitempty"`
	TS       int64   `json:"ts_ms"`
}

// ---- Firmware (retained: rsmu/firmware) ----

type FirmwareStatus struct {
	Name         string `json:"name"`
	Written      int    `json:"written"`
	Skipped      int    `json:"skipped"`
	Recalibrated bool   `json:"recalibrated"`
	Error        string `json:"error,omitempty"`
	TS           int64  `json:"ts_ms"`
}
