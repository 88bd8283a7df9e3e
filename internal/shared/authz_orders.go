package shared

// Roles carried in session tokens.
const (
	RoleSuperAdmin = "superadmin"
	RoleAdmin      = "admin"
	RoleSales      = "sales"
	RoleAccounts   = "accounts"
	RoleDispatch   = "dispatch"
	RoleService    = "service"
	RoleWarehouse  = "warehouse"
)

// Order workflow permissions declared for RBAC.
const (
	PermOrderView           = "orders.view"
	PermOrderCreate         = "orders.create"
	PermOrderAccountConfirm = "orders.account.confirm"
	PermOrderAdminConfirm   = "orders.admin.confirm"
	PermOrderReserve        = "orders.reserve"
	PermOrderDispatch       = "orders.dispatch"
	PermOrderInstall        = "orders.install"
	PermOrderComplete       = "orders.complete"
	PermOrderCancel         = "orders.cancel"
	PermOrderReturn         = "orders.return"
	PermOrderDelete         = "orders.delete"

	PermDispatchView = "dispatch.view"
	PermDispatchEdit = "dispatch.edit"

	PermStockView    = "stock.view"
	PermStockMove    = "stock.move"
	PermStockReserve = "stock.reserve"
)

// OrderScopes lists all permissions related to the order workflow.
func OrderScopes() []string {
	return []string{
		PermOrderView,
		PermOrderCreate,
		PermOrderAccountConfirm,
		PermOrderAdminConfirm,
		PermOrderReserve,
		PermOrderDispatch,
		PermOrderInstall,
		PermOrderComplete,
		PermOrderCancel,
		PermOrderReturn,
		PermOrderDelete,
	}
}

// DispatchScopes lists all permissions related to dispatch tracking.
func DispatchScopes() []string {
	return []string{PermDispatchView, PermDispatchEdit}
}

// StockScopes lists all permissions related to the stock ledger.
func StockScopes() []string {
	return []string{PermStockView, PermStockMove, PermStockReserve}
}

// AllScopes returns every permission known to the service.
func AllScopes() []string {
	all := append(OrderScopes(), DispatchScopes()...)
	return append(all, StockScopes()...)
}
