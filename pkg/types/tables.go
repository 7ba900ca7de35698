package types

// Default tables for the portfolio base.
const (
	ProjectsTable = "Projects"
	PressTable    = "Press"
	AwardsTable   = "Awards"
	ClientsTable  = "Clients"
)

// DefaultTables is the table layout written by `sitesync init`.
var DefaultTables = []TableConfig{
	{Name: ProjectsTable, SortField: "Year", Descending: true},
	{Name: PressTable, SortField: "Date", Descending: true},
	{Name: AwardsTable, SortField: "Year", Descending: true},
	{Name: ClientsTable, SortField: "Name"},
}
