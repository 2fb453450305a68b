// Package profiles registers the import profiles with the core registry.
// Import it for side effects wherever imports run.
package profiles

import "github.com/JonMunkholm/stockbook/internal/core"

func init() {
	core.Register(Expenses)
	core.Register(SKUs)
	core.Register(StockMovements)
}
