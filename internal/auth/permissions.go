package auth

const (
	PermCreateCustomer = "CREATE_CUSTOMER"
	PermReadCustomer   = "READ_CUSTOMER"
	PermUpdateCustomer = "UPDATE_CUSTOMER"
	PermDeleteCustomer = "DELETE_CUSTOMER"

	PermCreateOrder = "CREATE_ORDER"
	PermReadOrder   = "READ_ORDER"
	PermUpdateOrder = "UPDATE_ORDER"
	PermDeleteOrder = "DELETE_ORDER"

	PermCreateUser = "CREATE_USER"
	PermReadUser   = "READ_USER"
	PermUpdateUser = "UPDATE_USER"
	PermDeleteUser = "DELETE_USER"

	PermCreateRole = "CREATE_ROLE"
	PermReadRole   = "READ_ROLE"
	PermUpdateRole = "UPDATE_ROLE"
	PermDeleteRole = "DELETE_ROLE"

	PermCreatePermission = "CREATE_PERMISSION"
	PermReadPermission   = "READ_PERMISSION"
	PermUpdatePermission = "UPDATE_PERMISSION"
	PermDeletePermission = "DELETE_PERMISSION"
)

// AdminRole holds every builtin permission.
const AdminRole = "ADMIN"

var BuiltinPermissions = []Permission{
	{Code: PermCreateCustomer, Description: "Create customers and their addresses"},
	{Code: PermReadCustomer, Description: "Read customers and their addresses"},
	{Code: PermUpdateCustomer, Description: "Update customers and their addresses"},
	{Code: PermDeleteCustomer, Description: "Delete customers and their addresses"},
	{Code: PermCreateOrder, Description: "Create orders and line items"},
	{Code: PermReadOrder, Description: "Read orders and line items"},
	{Code: PermUpdateOrder, Description: "Update orders and line items"},
	{Code: PermDeleteOrder, Description: "Delete orders and line items"},
	{Code: PermCreateUser, Description: "Create users"},
	{Code: PermReadUser, Description: "Read users"},
	{Code: PermUpdateUser, Description: "Update users"},
	{Code: PermDeleteUser, Description: "Delete users"},
	{Code: PermCreateRole, Description: "Create roles"},
	{Code: PermReadRole, Description: "Read roles"},
	{Code: PermUpdateRole, Description: "Update roles and their permission sets"},
	{Code: PermDeleteRole, Description: "Delete roles"},
	{Code: PermCreatePermission, Description: "Create permissions"},
	{Code: PermReadPermission, Description: "Read permissions"},
	{Code: PermUpdatePermission, Description: "Update permissions"},
	{Code: PermDeletePermission, Description: "Delete permissions"},
}

// BuiltinCodes lists the codes of BuiltinPermissions.
func BuiltinCodes() []string {
	codes := make([]string, 0, len(BuiltinPermissions))
	for _, p := range BuiltinPermissions {
		codes = append(codes, p.Code)
	}
	return codes
}
