package reporter

// CompositeReporter fans every call out to a fixed set of reporters, in
// order. A CLI run composes Terminal + Log + (optionally) Metrics this
// way.
type CompositeReporter struct {
	reporters []Reporter
}

// NewCompositeReporter builds a composite over rs, skipping any nil
// Reporter value. A typed nil pointer (such as a nil *MetricsReporter) is
// a non-nil Reporter and is kept.
func NewCompositeReporter(rs ...Reporter) *CompositeReporter {
	c := &CompositeReporter{}
	for _, r := range rs {
		if r != nil {
			c.reporters = append(c.reporters, r)
		}
	}
	return c
}

func (c *CompositeReporter) Info(path, msg string) {
	for _, r := range c.reporters {
		r.Info(path, msg)
	}
}

func (c *CompositeReporter) Warning(path, msg string) {
	for _, r := range c.reporters {
		r.Warning(path, msg)
	}
}

func (c *CompositeReporter) Error(path, msg string) {
	for _, r := range c.reporters {
		r.Error(path, msg)
	}
}

func (c *CompositeReporter) Progress(path, stage string, fraction float64) {
	for _, r := range c.reporters {
		r.Progress(path, stage, fraction)
	}
}

func (c *CompositeReporter) FileComplete(path string, outcome FileOutcome) {
	for _, r := range c.reporters {
		r.FileComplete(path, outcome)
	}
}

func (c *CompositeReporter) BatchSummary(s BatchSummary) {
	for _, r := range c.reporters {
		r.BatchSummary(s)
	}
}
