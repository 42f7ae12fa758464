// Copyright 2024-2026 Aiku AI

// Package upgrades owns the correlation store schema. Revisions are plain
// SQL files applied in order by dbutil's upgrade framework.
package upgrades

import (
	"embed"

	"go.mau.fi/util/dbutil"
)

// Table is the upgrade table for the relay database.
var Table dbutil.UpgradeTable

//go:embed *.sql
var rawUpgrades embed.FS

func init() {
	Table.RegisterFS(rawUpgrades)
}
