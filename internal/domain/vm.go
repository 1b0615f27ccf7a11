package domain

// VMState is the lifecycle state stored in vm_pool.state and VM/STATE.
type VMState int

const (
	VMStateInit VMState = iota
	VMStatePending
	VMStateHold
	VMStateActive
	VMStateStopped
	VMStateSuspended
	VMStateDone
	VMStateFailed
	VMStatePoweroff
	VMStateUndeployed
	VMStateCloning
	VMStateCloningFailure
)

// Running reports whether a VM in this state counts towards running usage.
func (s VMState) Running() bool {
	return s == VMStatePending || s == VMStateHold || s == VMStateActive
}

// VMRecord is a vm_pool row. The state column is only used to filter out
// DONE VMs; aggregation reads STATE from the body.
type VMRecord struct {
	OID  int64  `db:"oid"`
	Body string `db:"body"`
}
