package service

import (
	"strconv"

	"onedbquota/internal/document"
	"onedbquota/internal/domain"
)

const unlimited = "-1"

// InjectRunningUsage appends the RUNNING_* limits and usage to the VM_QUOTA/VM
// element of doc. Documents without one are left alone and false is returned.
func InjectRunningUsage(doc *document.Document, totals domain.UsageTotals) bool {
	vms := doc.Find(document.VMQuotaVM)
	if len(vms) == 0 {
		return false
	}
	vm := vms[len(vms)-1]

	vm.CreateChild(document.RunningCPU, unlimited)
	vm.CreateChild(document.RunningCPUUsed, FormatHundredths(totals.RunningCPUUsed))
	vm.CreateChild(document.RunningMemory, unlimited)
	vm.CreateChild(document.RunningMemoryUsed, strconv.FormatInt(totals.RunningMemUsed, 10))
	vm.CreateChild(document.RunningVMs, unlimited)
	vm.CreateChild(document.RunningVMsUsed, strconv.FormatInt(totals.RunningVMsUsed, 10))

	return true
}

// FormatHundredths renders v/100 with exactly two decimals, e.g. 350 -> "3.50".
func FormatHundredths(v int64) string {
	sign := ""
	u := uint64(v)
	if v < 0 {
		sign = "-"
		u = uint64(-v)
	}

	frac := strconv.FormatUint(u%100, 10)
	if len(frac) == 1 {
		frac = "0" + frac
	}
	return sign + strconv.FormatUint(u/100, 10) + "." + frac
}
