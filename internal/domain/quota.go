package domain

// SystemOwnerID is the oneadmin user/group, which has no quotas.
const SystemOwnerID int64 = 0

// QuotaRecord is one row of a quota table. The owner column differs between
// tables and is aliased to owner_oid on read.
type QuotaRecord struct {
	OwnerID int64  `db:"owner_oid"`
	Body    string `db:"body"`
}

// QuotaTable describes a quota table and how its owners map onto vm_pool.
type QuotaTable struct {
	Name          string
	OwnerColumn   string
	VMOwnerColumn string
	Resource      string
}

var (
	UserQuotas = QuotaTable{
		Name:          "user_quotas",
		OwnerColumn:   "user_oid",
		VMOwnerColumn: "uid",
		Resource:      "User",
	}
	GroupQuotas = QuotaTable{
		Name:          "group_quotas",
		OwnerColumn:   "group_oid",
		VMOwnerColumn: "gid",
		Resource:      "Group",
	}
)

// WithName returns the same layout under another table name.
func (t QuotaTable) WithName(name string) QuotaTable {
	t.Name = name
	return t
}
