package taskname

const (
	// Report tasks
	ReportGenerate = "report:generate"
	ReportMonthly  = "report:monthly"
)

const (
	QueueReports = "reports"
)
