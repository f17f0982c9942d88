package config

// defaultYAML is used when tdcsyncd starts without -config.
const defaultYAML = `
device:
  bus: 0
  address: 0x5b
  family: fc3
  revision: auto
  transport: auto
firmware:
  load: false
  name: rsmufc3.bin
sync:
  enabled: true
  dpll: 0
  period: 100ms
  clock: system
monitor:
  dpll_interval: 1s
  refmon_interval: 1s
  dplls: [0, 1]
  refs: [0, 1, 2, 3]
log:
  level: info
  format: text
`

// Default returns the built-in configuration.
func Default() (*Daemon, error) { return Parse([]byte(defaultYAML)) }
