package config

const (
	// TopicDocumentIngested is the NSQ topic announcing a document whose chunks were upserted.
	TopicDocumentIngested = "document.ingested"

	// TopicDocumentDeleted is the NSQ topic announcing a document removed from the collection.
	TopicDocumentDeleted = "document.deleted"
)

const (
	// TopicDocumentIngest carries requests for the background ingest worker.
	TopicDocumentIngest = "document.ingest"

	ChannelIngestWorker = "docsearch-worker"
)
