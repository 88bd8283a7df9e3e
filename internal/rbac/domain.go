package rbac

import (
	"sort"
	"strings"

	"github.com/dynaclean/dynaflow/internal/shared"
)

// Grants maps a role name to the permissions it holds.
type Grants map[string][]string

// DefaultGrants returns the built-in role to permission mapping. Roles listed as
// admin roles in configuration receive every permission on top of these.
func DefaultGrants() Grants {
	return Grants{
		shared.RoleSales: {
			shared.PermOrderView,
			shared.PermOrderCreate,
			shared.PermOrderCancel,
			shared.PermDispatchView,
			shared.PermStockView,
		},
		shared.RoleAccounts: {
			shared.PermOrderView,
			shared.PermOrderAccountConfirm,
			shared.PermStockView,
		},
		shared.RoleDispatch: {
			shared.PermOrderView,
			shared.PermOrderReserve,
			shared.PermOrderDispatch,
			shared.PermOrderReturn,
			shared.PermDispatchView,
			shared.PermDispatchEdit,
			shared.PermStockView,
			shared.PermStockReserve,
		},
		shared.RoleService: {
			shared.PermOrderView,
			shared.PermOrderInstall,
			shared.PermOrderComplete,
			shared.PermDispatchView,
			shared.PermDispatchEdit,
		},
		shared.RoleWarehouse: {
			shared.PermOrderView,
			shared.PermDispatchView,
			shared.PermStockView,
			shared.PermStockMove,
			shared.PermStockReserve,
		},
	}
}

func normalizeRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
