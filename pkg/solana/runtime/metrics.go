package runtime

const (
	metricsStructName = "runtime.processor"

	transactionCountMetricName    = "Runtime/transaction_count"
	transactionFailedMetricName   = "Runtime/transaction_failed_count"
	transactionDurationMetricName = "Runtime/transaction_duration"
	invocationCountMetricName     = "Runtime/invocation_count"
	commitConflictMetricName      = "Runtime/commit_conflict_count"

	authorityRejectedEventName = "RuntimeAuthorityRejected"
)
