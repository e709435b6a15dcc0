package ports

// Metric names understood by Observability implementations.
const (
	MetricRecordsEnqueued     = "hassflow_records_enqueued_total"
	MetricRecordsFiltered     = "hassflow_records_filtered_total"
	MetricDocumentsFormatted  = "hassflow_documents_formatted_total"
	MetricDocumentsPublished  = "hassflow_documents_published_total"
	MetricDocumentsFailed     = "hassflow_documents_failed_total"
	MetricPublishCycles       = "hassflow_publish_cycles_total"
	MetricPublishCycleErrors  = "hassflow_publish_cycle_errors_total"
	MetricPollCycleErrors     = "hassflow_poll_cycle_errors_total"
	MetricAttributeCollisions = "hassflow_attribute_collisions_total"
	MetricAttributesDropped   = "hassflow_attributes_dropped_total"

	MetricQueueLength = "hassflow_queue_length"

	MetricPublishLatency = "hassflow_publish_latency_seconds"
)
