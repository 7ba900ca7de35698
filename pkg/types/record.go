package types

import "time"

// Record is one row of a remote table.
type Record struct {
	ID           string         `json:"id"`
	CreatedTime  time.Time      `json:"createdTime"`
	LastModified time.Time      `json:"lastModified"`
	Fields       map[string]any `json:"fields"`
}

// Stamp is the cheap per-record view used for change detection.
type Stamp struct {
	ID           string    `json:"id"`
	LastModified time.Time `json:"lastModified"`
}

// Stamp returns the record's change-detection view.
func (r Record) Stamp() Stamp {
	return Stamp{ID: r.ID, LastModified: r.LastModified}
}

// Change classifies a record relative to the previous snapshot.
type Change string

// Record change classes.
const (
	ChangeNew       Change = "new"
	ChangeChanged   Change = "changed"
	ChangeUnchanged Change = "unchanged"
	ChangeDeleted   Change = "deleted"
)

// Changes counts records per change class for one table.
type Changes struct {
	New       int `json:"new"`
	Changed   int `json:"changed"`
	Unchanged int `json:"unchanged"`
	Deleted   int `json:"deleted"`
}

// Add increments the counter for c.
func (c *Changes) Add(change Change) {
	switch change {
	case ChangeNew:
		c.New++
	case ChangeChanged:
		c.Changed++
	case ChangeUnchanged:
		c.Unchanged++
	case ChangeDeleted:
		c.Deleted++
	}
}

// Any reports whether anything other than unchanged records was seen.
func (c Changes) Any() bool {
	return c.New+c.Changed+c.Deleted > 0
}
