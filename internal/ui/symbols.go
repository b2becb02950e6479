package ui

// Unicode symbols for status indicators.
const (
	SymbolSuccess = "✓" // Task completed successfully
	SymbolFail    = "✗" // Task failed
	SymbolSkipped = "⊘" // Task skipped
	SymbolArrow   = "→" // Instance switch / transition
)
