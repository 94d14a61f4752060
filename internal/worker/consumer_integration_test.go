package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docsearch/internal/config"
	"docsearch/internal/events"
	"docsearch/internal/ingest"
	"docsearch/internal/testutils"
	"docsearch/internal/worker"
)

func TestRun_ConsumesIngestRequests(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	suite := testutils.NewIntegrationSuite(t)
	addr := suite.StartNSQ()

	producer, err := events.NewProducer(addr)
	require.NoError(t, err)
	defer producer.Stop()

	// Create the topic before the consumer subscribes
	require.NoError(t, events.RequestIngest(context.Background(), producer, events.IngestRequest{
		DocumentID: "doc-1",
		Path:       "/data/paper.pdf",
		Filename:   "paper.pdf",
	}))

	done := make(chan struct{})
	ing := new(MockIngester)
	ing.On("Ingest", mock.Anything, "/data/paper.pdf", mock.Anything).
		Run(func(mock.Arguments) { close(done) }).
		Return(&ingest.Result{DocumentID: "doc-1"}, nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() {
		runErr <- worker.Run(ctx, worker.ConsumerConfig{
			NSQDAddr:    addr,
			Topic:       config.TopicDocumentIngest,
			Channel:     config.ChannelIngestWorker,
			MaxInFlight: 1,
		}, worker.NewIngestConsumer(ing, time.Minute))
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("ingest request was not consumed")
	}

	cancel()
	assert.NoError(t, <-runErr)
	ing.AssertExpectations(t)
}
