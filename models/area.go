// models/area.go
package models

import "time"

// Hierarchy depth of the administrative-division tree.
const (
	LevelProvince = 1
	LevelCity     = 2
	LevelDistrict = 3
	LevelStreet   = 4

	MaxLevel = LevelStreet
)

// RootParentID is the parent reference stored for level-1 rows.
const RootParentID int64 = 0

// AreaItem is one child descriptor as served by the district lookup API.
// Order within a fetched slice is the source presentation order.
type AreaItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"fullname"`

	// Position is the 1-based place among the item's siblings when the item is
	// saved on its own. Zero means "use the position within the batch".
	Position int `json:"-"`
}

// SortIn returns the sort value for the item at index i of a batch.
func (a AreaItem) SortIn(i int) int {
	if a.Position > 0 {
		return a.Position
	}
	return i + 1
}

// DisplayName prefers the full name and falls back to the short one.
func (a AreaItem) DisplayName() string {
	if a.FullName != "" {
		return a.FullName
	}
	return a.Name
}

// AreaNode is a persisted hierarchy row.
type AreaNode struct {
	ID         int64      `db:"id" csv:"id"`
	ParentID   int64      `db:"pid" csv:"pid"`
	Code       string     `db:"code" csv:"code"`
	Name       string     `db:"name" csv:"name"`
	Level      int        `db:"level" csv:"level"`
	Sort       int        `db:"sort" csv:"sort"`
	CreateTime time.Time  `db:"create_time" csv:"create_time"`
	UpdateTime time.Time  `db:"update_time" csv:"update_time"`
	DeleteTime *time.Time `db:"delete_time" csv:"delete_time,omitempty"`
}
