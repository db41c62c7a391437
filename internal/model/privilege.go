package model

// Action names checked by the permission table.
const (
	ActionAddProduct          = "add_product"
	ActionUpdateProduct       = "update_product"
	ActionTransferProduct     = "transfer_product"
	ActionViewOwnProducts     = "view_own_products"
	ActionViewProduct         = "view_product"
	ActionViewAllProducts     = "view_all_products"
	ActionViewAllTransactions = "view_all_transactions"
)

// Privilege represents a permission that can be assigned to roles
type Privilege struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Code string `gorm:"type:varchar(50);uniqueIndex;not null" json:"code"` // e.g., "add_product"
	Name string `gorm:"type:varchar(100)" json:"name"`                     // e.g., "Add Product"
}

// Default privileges for the system
var DefaultPrivileges = []Privilege{
	{Code: ActionAddProduct, Name: "Add Product"},
	{Code: ActionUpdateProduct, Name: "Update Product"},
	{Code: ActionTransferProduct, Name: "Transfer Product"},
	{Code: ActionViewOwnProducts, Name: "View Own Products"},
	{Code: ActionViewProduct, Name: "View Product"},
	{Code: ActionViewAllProducts, Name: "View All Products"},
	{Code: ActionViewAllTransactions, Name: "View All Transactions"},
}

// DefaultRolePrivileges is the static role -> actions mapping.
var DefaultRolePrivileges = map[Role][]string{
	RoleProducer:    {ActionAddProduct, ActionUpdateProduct, ActionViewOwnProducts},
	RoleDistributor: {ActionUpdateProduct, ActionTransferProduct, ActionViewOwnProducts},
	RoleRetailer:    {ActionUpdateProduct, ActionTransferProduct, ActionViewOwnProducts},
	RoleConsumer:    {ActionViewProduct},
	RoleRegulator:   {ActionViewAllProducts, ActionViewAllTransactions},
}
