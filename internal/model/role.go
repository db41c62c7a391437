package model

import "strings"

// Role is the closed set of supply-chain participants.
type Role string

const (
	RoleProducer    Role = "producer"
	RoleDistributor Role = "distributor"
	RoleRetailer    Role = "retailer"
	RoleRegulator   Role = "regulator"
	RoleConsumer    Role = "consumer"

	// RoleUnknown is what ParseRole returns for anything outside the set.
	// It is never granted a privilege.
	RoleUnknown Role = ""
)

// AllRoles lists every valid role in a stable order.
var AllRoles = []Role{RoleProducer, RoleDistributor, RoleRetailer, RoleRegulator, RoleConsumer}

// ParseRole maps a string to a Role, failing closed to RoleUnknown.
func ParseRole(s string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleProducer:
		return RoleProducer
	case RoleDistributor:
		return RoleDistributor
	case RoleRetailer:
		return RoleRetailer
	case RoleRegulator:
		return RoleRegulator
	case RoleConsumer:
		return RoleConsumer
	default:
		return RoleUnknown
	}
}

// Valid reports whether r is one of the five known roles.
func (r Role) Valid() bool {
	return ParseRole(string(r)) != RoleUnknown
}

func (r Role) String() string {
	return string(r)
}

// RoleRecord is the persisted role with its privileges.
type RoleRecord struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	Code        string      `gorm:"type:varchar(50);uniqueIndex;not null" json:"code"` // producer, distributor, ...
	Name        string      `gorm:"type:varchar(100)" json:"name"`
	Description string      `gorm:"type:text" json:"description"`
	Privileges  []Privilege `gorm:"many2many:role_privileges;joinForeignKey:RoleID;joinReferences:PrivilegeID" json:"privileges,omitempty"`
}

func (RoleRecord) TableName() string {
	return "roles"
}

// PrivilegeCodes returns the codes of all privileges attached to the role.
func (r *RoleRecord) PrivilegeCodes() []string {
	codes := make([]string, len(r.Privileges))
	for i, p := range r.Privileges {
		codes[i] = p.Code
	}
	return codes
}

// DefaultRoles defines the roles seeded at startup.
var DefaultRoles = []RoleRecord{
	{Code: string(RoleProducer), Name: "Producer", Description: "Creates products and hands them to distributors"},
	{Code: string(RoleDistributor), Name: "Distributor", Description: "Moves products between producers and retailers"},
	{Code: string(RoleRetailer), Name: "Retailer", Description: "Sells products to consumers"},
	{Code: string(RoleRegulator), Name: "Regulator", Description: "Audits every product and transaction"},
	{Code: string(RoleConsumer), Name: "Consumer", Description: "Looks up product provenance"},
}

// Principal is an authenticated caller.
type Principal struct {
	Identity string `json:"identity"`
	Role     Role   `json:"role"`
}
