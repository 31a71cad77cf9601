package main

const softwareName = "SenseiNode"

const (
	// LightChain amounts are persisted in atomic units; 1 LCX == 1e8 units.
	coinTicker      = "LCX"
	coinAtomicUnits = 100_000_000

	// Pool share percentages are stored scaled by 1e6 (1_000_000 == 100%).
	sharePercentScale = 1_000_000
)

const (
	passwordMinLen = 8
	passwordMaxLen = 32

	// validationKeyBytes is the size of the per-user validation key handed
	// out at signup (hex-encoded before storage).
	validationKeyBytes = 16
)

var buildTime = "unknown"
