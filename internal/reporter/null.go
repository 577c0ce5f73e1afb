package reporter

// NullReporter discards everything. Used as the library API's default
// reporter and in tests that don't care about output.
type NullReporter struct{}

func (NullReporter) Info(path, msg string)                   {}
func (NullReporter) Warning(path, msg string)                {}
func (NullReporter) Error(path, msg string)                  {}
func (NullReporter) Progress(path, stage string, frac float64) {}
func (NullReporter) FileComplete(path string, outcome FileOutcome) {}
func (NullReporter) BatchSummary(s BatchSummary)              {}
