package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onedbquota/internal/document"
	"onedbquota/internal/domain"
)

func TestInjectRunningUsage(t *testing.T) {
	t.Parallel()

	t.Run("NoVMQuota", func(t *testing.T) {
		t.Parallel()

		const body = `<QUOTAS><ID>3</ID><DATASTORE_QUOTA/><NETWORK_QUOTA/></QUOTAS>`
		doc, err := document.Parse(body)
		require.NoError(t, err)

		assert.False(t, InjectRunningUsage(doc, domain.UsageTotals{RunningVMsUsed: 4}))
		out, err := doc.String()
		require.NoError(t, err)
		assert.Equal(t, body, out)
	})

	t.Run("ZeroUsage", func(t *testing.T) {
		t.Parallel()

		doc, err := document.Parse(`<QUOTAS><ID>2</ID><VM_QUOTA><VM><VMS>-1</VMS></VM></VM_QUOTA></QUOTAS>`)
		require.NoError(t, err)

		assert.True(t, InjectRunningUsage(doc, domain.UsageTotals{}))
		out, err := doc.String()
		require.NoError(t, err)
		assert.Equal(t, `<QUOTAS><ID>2</ID><VM_QUOTA><VM><VMS>-1</VMS>`+
			`<RUNNING_CPU>-1</RUNNING_CPU><RUNNING_CPU_USED>0.00</RUNNING_CPU_USED>`+
			`<RUNNING_MEMORY>-1</RUNNING_MEMORY><RUNNING_MEMORY_USED>0</RUNNING_MEMORY_USED>`+
			`<RUNNING_VMS>-1</RUNNING_VMS><RUNNING_VMS_USED>0</RUNNING_VMS_USED>`+
			`</VM></VM_QUOTA></QUOTAS>`, out)
	})

	t.Run("Usage", func(t *testing.T) {
		t.Parallel()

		doc, err := document.Parse(`<QUOTAS><VM_QUOTA><VM/></VM_QUOTA></QUOTAS>`)
		require.NoError(t, err)

		require.True(t, InjectRunningUsage(doc, domain.UsageTotals{
			RunningCPUUsed: 350,
			RunningMemUsed: 2048,
			RunningVMsUsed: 3,
		}))

		vm := doc.Find(document.VMQuotaVM)[0]
		got := map[string]string{}
		for _, c := range vm.Children() {
			got[c.Tag()] = c.Text()
		}
		assert.Equal(t, map[string]string{
			"RUNNING_CPU":         "-1",
			"RUNNING_CPU_USED":    "3.50",
			"RUNNING_MEMORY":      "-1",
			"RUNNING_MEMORY_USED": "2048",
			"RUNNING_VMS":         "-1",
			"RUNNING_VMS_USED":    "3",
		}, got)
	})
}

func TestFormatHundredths(t *testing.T) {
	t.Parallel()

	for in, want := range map[int64]string{
		0:    "0.00",
		5:    "0.05",
		50:   "0.50",
		100:  "1.00",
		350:  "3.50",
		1234: "12.34",
		-5:   "-0.05",
		-250: "-2.50",
	} {
		assert.Equal(t, want, FormatHundredths(in), "%d", in)
	}
}
