package config

// Default paths for databases
const (
	// DefaultDatabasePath is the default path for the main application database
	DefaultDatabasePath = "./librarian.db"

	// DefaultMaintenanceSchedule runs availability and audit maintenance nightly at 03:00
	DefaultMaintenanceSchedule = "0 3 * * *"
)

type DatabaseDriver string

const (
	DatabaseDriverSQLite   DatabaseDriver = "sqlite"
	DatabaseDriverPostgres DatabaseDriver = "postgres"
)
