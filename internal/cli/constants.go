package cli

// Default values for CLI flags and output.
const (
	// DefaultEnvFile is loaded when present and no --env-file is given.
	DefaultEnvFile = ".env"
	// MaxDescriptionLength is the maximum length of a package description to display.
	MaxDescriptionLength = 50
	// TabWidth is the width of tabs in formatted output.
	TabWidth = 2
	// OutputJSON selects JSON output.
	OutputJSON = "json"
	// OutputTable selects human readable output.
	OutputTable = "table"
)
