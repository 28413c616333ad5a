package rediskey

import "fmt"

const (
	SequencePrefix = "seq"
	ReportPrefix   = "report"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildSequenceKey returns "seq:{prefix}:{day}".
func BuildSequenceKey(prefix, day string) string {
	return NamespaceKey(SequencePrefix, NamespaceKey(prefix, day))
}

// BuildReportScheduleKey returns "report:schedule:{year}-{month}", the marker that a
// monthly fan-out already ran.
func BuildReportScheduleKey(year, month int) string {
	return NamespaceKey(ReportPrefix, fmt.Sprintf("schedule:%04d-%02d", year, month))
}
