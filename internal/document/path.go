package document

import "strings"

// Path selects child elements by tag, one segment per level.
type Path struct {
	segments []string
}

func NewPath(segments ...string) Path {
	return Path{segments: segments}
}

func (p Path) String() string {
	return strings.Join(p.segments, "/")
}

// Fields read or written by the running-quota migration.
var (
	ID             = NewPath("ID")
	State          = NewPath("STATE")
	TemplateCPU    = NewPath("TEMPLATE", "CPU")
	TemplateMemory = NewPath("TEMPLATE", "MEMORY")
	VMQuotaVM      = NewPath("VM_QUOTA", "VM")
)

const (
	RunningCPU        = "RUNNING_CPU"
	RunningCPUUsed    = "RUNNING_CPU_USED"
	RunningMemory     = "RUNNING_MEMORY"
	RunningMemoryUsed = "RUNNING_MEMORY_USED"
	RunningVMs        = "RUNNING_VMS"
	RunningVMsUsed    = "RUNNING_VMS_USED"
)
