package service

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/xerrors"

	"onedbquota/internal/document"
	"onedbquota/internal/domain"
)

// NumericFormatError reports a VM field whose text is not a number.
type NumericFormatError struct {
	Field string
	VMID  int64
	Text  string
	Err   error
}

func (e *NumericFormatError) Error() string {
	return fmt.Sprintf("vm %d: field %s: invalid number %q", e.VMID, e.Field, e.Text)
}

func (e *NumericFormatError) Unwrap() error {
	return e.Err
}

// FoldVM adds one VM document to totals and returns the result.
func FoldVM(totals domain.UsageTotals, vmID int64, vm *document.Document) (domain.UsageTotals, error) {
	for _, n := range vm.Find(document.TemplateCPU) {
		cpu, err := parseHundredths(n.Text())
		if err == nil {
			totals.CPUUsed, err = addUsage(totals.CPUUsed, cpu)
		}
		if err != nil {
			return totals, &NumericFormatError{Field: document.TemplateCPU.String(), VMID: vmID, Text: n.Text(), Err: err}
		}
	}

	for _, n := range vm.Find(document.TemplateMemory) {
		mem, err := strconv.ParseInt(strings.TrimSpace(n.Text()), 10, 64)
		if err == nil {
			totals.MemUsed, err = addUsage(totals.MemUsed, mem)
		}
		if err != nil {
			return totals, &NumericFormatError{Field: document.TemplateMemory.String(), VMID: vmID, Text: n.Text(), Err: err}
		}
	}

	totals.VMsUsed++

	for _, n := range vm.Find(document.State) {
		state, err := strconv.Atoi(strings.TrimSpace(n.Text()))
		if err != nil {
			return totals, &NumericFormatError{Field: document.State.String(), VMID: vmID, Text: n.Text(), Err: err}
		}
		if domain.VMState(state).Running() {
			totals.RunningCPUUsed = totals.CPUUsed
			totals.RunningMemUsed = totals.MemUsed
			totals.RunningVMsUsed = totals.VMsUsed
		}
	}

	return totals, nil
}

var (
	errNotDecimal = xerrors.New("not a finite decimal number")
	errOverflow   = xerrors.New("value out of range")
)

// parseHundredths parses a decimal CPU value and returns it in hundredths,
// truncated toward zero.
func parseHundredths(text string) (int64, error) {
	text = strings.TrimSpace(text)
	if strings.ContainsAny(text, "xX") {
		return 0, errNotDecimal
	}

	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errNotDecimal
	}

	h := math.Trunc(v * 100)
	// float64(math.MaxInt64) rounds up to 2^63
	if h >= math.MaxInt64 || h < math.MinInt64 {
		return 0, errOverflow
	}
	return int64(h), nil
}

func addUsage(sum, v int64) (int64, error) {
	if (v > 0 && sum > math.MaxInt64-v) || (v < 0 && sum < math.MinInt64-v) {
		return sum, errOverflow
	}
	return sum + v, nil
}

// VMSource calls fn once per VM record, in a stable order.
type VMSource func(fn func(domain.VMRecord) error) error

// AggregateVMs folds every record produced by src, starting from zero totals.
func AggregateVMs(src VMSource) (domain.UsageTotals, error) {
	var totals domain.UsageTotals
	err := src(func(vm domain.VMRecord) error {
		doc, err := document.Parse(vm.Body)
		if err != nil {
			return xerrors.Errorf("vm %d: %w", vm.OID, err)
		}
		totals, err = FoldVM(totals, vm.OID, doc)
		return err
	})
	if err != nil {
		return domain.UsageTotals{}, err
	}
	return totals, nil
}
