package domain

// UsageTotals accumulates VM usage for one owner. CPU is kept in hundredths
// of a core. The Running fields hold a copy of the cumulative fields taken
// at the last VM folded in a running state.
type UsageTotals struct {
	CPUUsed int64
	MemUsed int64
	VMsUsed int64

	RunningCPUUsed int64
	RunningMemUsed int64
	RunningVMsUsed int64
}
