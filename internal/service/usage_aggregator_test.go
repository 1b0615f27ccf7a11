package service

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onedbquota/internal/document"
	"onedbquota/internal/domain"
)

func vmBody(oid int64, state domain.VMState, cpu, mem string) string {
	tmpl := ""
	if cpu != "" {
		tmpl += "<CPU><![CDATA[" + cpu + "]]></CPU>"
	}
	if mem != "" {
		tmpl += "<MEMORY><![CDATA[" + mem + "]]></MEMORY>"
	}
	return fmt.Sprintf("<VM><ID>%d</ID><STATE>%d</STATE><LCM_STATE>0</LCM_STATE><TEMPLATE>%s</TEMPLATE></VM>", oid, state, tmpl)
}

func sliceSource(vms ...domain.VMRecord) VMSource {
	return func(fn func(domain.VMRecord) error) error {
		for _, vm := range vms {
			if err := fn(vm); err != nil {
				return err
			}
		}
		return nil
	}
}

func vmRecord(oid int64, state domain.VMState, cpu, mem string) domain.VMRecord {
	return domain.VMRecord{OID: oid, Body: vmBody(oid, state, cpu, mem)}
}

func TestFoldVM(t *testing.T) {
	t.Parallel()

	t.Run("TruncatesCPU", func(t *testing.T) {
		t.Parallel()

		totals, err := AggregateVMs(sliceSource(
			vmRecord(1, domain.VMStateStopped, "1.005", "0"),
			vmRecord(2, domain.VMStateActive, "2.5", "0"),
		))
		require.NoError(t, err)
		assert.EqualValues(t, 350, totals.CPUUsed)
		assert.EqualValues(t, 350, totals.RunningCPUUsed)
		assert.Equal(t, "3.50", FormatHundredths(totals.RunningCPUUsed))
	})

	t.Run("SnapshotAtLastRunningVM", func(t *testing.T) {
		t.Parallel()

		totals, err := AggregateVMs(sliceSource(
			vmRecord(1, domain.VMStatePending, "1", "100"),
			vmRecord(2, domain.VMStateStopped, "1", "50"),
		))
		require.NoError(t, err)
		assert.Equal(t, domain.UsageTotals{
			CPUUsed:        200,
			MemUsed:        150,
			VMsUsed:        2,
			RunningCPUUsed: 100,
			RunningMemUsed: 100,
			RunningVMsUsed: 1,
		}, totals)
	})

	t.Run("SnapshotIncludesEarlierStoppedVMs", func(t *testing.T) {
		t.Parallel()

		totals, err := AggregateVMs(sliceSource(
			vmRecord(1, domain.VMStateStopped, "", "50"),
			vmRecord(2, domain.VMStateHold, "", "100"),
		))
		require.NoError(t, err)
		assert.EqualValues(t, 150, totals.RunningMemUsed)
		assert.EqualValues(t, 2, totals.RunningVMsUsed)
		assert.Zero(t, totals.CPUUsed)
	})

	t.Run("NoRunningVMs", func(t *testing.T) {
		t.Parallel()

		totals, err := AggregateVMs(sliceSource(
			vmRecord(1, domain.VMStatePoweroff, "4", "1024"),
		))
		require.NoError(t, err)
		assert.EqualValues(t, 1, totals.VMsUsed)
		assert.EqualValues(t, 1024, totals.MemUsed)
		assert.Zero(t, totals.RunningVMsUsed)
		assert.Zero(t, totals.RunningMemUsed)
	})

	t.Run("MultipleFields", func(t *testing.T) {
		t.Parallel()

		doc, err := document.Parse(`<VM><STATE>3</STATE><TEMPLATE><CPU>0.5</CPU><CPU>0.25</CPU><MEMORY>10</MEMORY><MEMORY>20</MEMORY></TEMPLATE></VM>`)
		require.NoError(t, err)

		totals, err := FoldVM(domain.UsageTotals{}, 7, doc)
		require.NoError(t, err)
		assert.EqualValues(t, 75, totals.CPUUsed)
		assert.EqualValues(t, 30, totals.MemUsed)
		assert.EqualValues(t, 1, totals.VMsUsed)
		assert.EqualValues(t, 1, totals.RunningVMsUsed)
	})

	t.Run("BadNumbers", func(t *testing.T) {
		t.Parallel()

		for _, tc := range []struct {
			name  string
			vm    domain.VMRecord
			field string
		}{
			{"CPU", vmRecord(3, domain.VMStateActive, "two", "1"), "TEMPLATE/CPU"},
			{"Memory", vmRecord(4, domain.VMStateActive, "1", "1.5"), "TEMPLATE/MEMORY"},
			{"State", domain.VMRecord{OID: 5, Body: `<VM><STATE>x</STATE></VM>`}, "STATE"},
			{"NaN", vmRecord(6, domain.VMStateActive, "NaN", "1"), "TEMPLATE/CPU"},
			{"Inf", vmRecord(7, domain.VMStateActive, "Inf", "1"), "TEMPLATE/CPU"},
			{"NegativeInfinity", vmRecord(8, domain.VMStateActive, "-infinity", "1"), "TEMPLATE/CPU"},
			{"HexFloat", vmRecord(9, domain.VMStateActive, "0x1p4", "1"), "TEMPLATE/CPU"},
			{"CPUOutOfRange", vmRecord(10, domain.VMStateActive, "1e300", "1"), "TEMPLATE/CPU"},
			{"CPUAtLimit", vmRecord(11, domain.VMStateActive, "92233720368547758.08", "1"), "TEMPLATE/CPU"},
			{"MemoryOutOfRange", vmRecord(12, domain.VMStateActive, "1", "99999999999999999999"), "TEMPLATE/MEMORY"},
		} {
			_, err := AggregateVMs(sliceSource(tc.vm))
			var nerr *NumericFormatError
			require.True(t, errors.As(err, &nerr), tc.name)
			assert.Equal(t, tc.field, nerr.Field, tc.name)
			assert.Equal(t, tc.vm.OID, nerr.VMID, tc.name)
		}
	})

	t.Run("CPUSumOverflow", func(t *testing.T) {
		t.Parallel()

		_, err := AggregateVMs(sliceSource(
			vmRecord(1, domain.VMStateActive, "90000000000000000", "1"),
			vmRecord(2, domain.VMStateActive, "90000000000000000", "1"),
		))
		var nerr *NumericFormatError
		require.True(t, errors.As(err, &nerr))
		assert.EqualValues(t, 2, nerr.VMID)
		assert.Equal(t, "TEMPLATE/CPU", nerr.Field)
	})

	t.Run("MemorySumOverflow", func(t *testing.T) {
		t.Parallel()

		_, err := AggregateVMs(sliceSource(
			vmRecord(1, domain.VMStateStopped, "1", "9223372036854775807"),
			vmRecord(2, domain.VMStateStopped, "1", "1"),
		))
		var nerr *NumericFormatError
		require.True(t, errors.As(err, &nerr))
		assert.EqualValues(t, 2, nerr.VMID)
		assert.Equal(t, "TEMPLATE/MEMORY", nerr.Field)
	})

	t.Run("MalformedVM", func(t *testing.T) {
		t.Parallel()

		_, err := AggregateVMs(sliceSource(domain.VMRecord{OID: 9, Body: "<VM>"}))
		var perr *document.ParseError
		assert.True(t, errors.As(err, &perr))
	})
}
