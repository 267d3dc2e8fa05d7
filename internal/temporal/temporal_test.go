package temporal

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowID(t *testing.T) {
	connectionID := uuid.MustParse("f9c15b5a-8f3e-4f09-b6c4-0a4f8e4f3a21")
	assert.Equal(t,
		"connection-f9c15b5a-8f3e-4f09-b6c4-0a4f8e4f3a21-42-0",
		WorkflowID(connectionID, 42, 0),
	)
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func TestPipeRecordsCountsAndRetainsState(t *testing.T) {
	source := strings.NewReader(strings.Join([]string{
		`{"type":"RECORD","record":{"data":{"id":1}}}`,
		`{"type":"LOG","log":{"level":"INFO","message":"reading stream"}}`,
		`{"type":"RECORD","record":{"data":{"id":2}}}`,
		`{"type":"STATE","state":{"cursor":"2"}}`,
		`{"type":"TRACE","trace":{"type":"STREAM_STATUS"}}`,
		`{"type":"RECORD","record":{"data":{"id":3}}}`,
		`{"type":"STATE","state":{"cursor":"3"}}`,
	}, "\n"))

	var sink strings.Builder
	summary := pipeRecords(source, nopWriteCloser{&sink})

	require.NoError(t, summary.err)
	assert.Equal(t, int64(3), summary.records, "LOG and TRACE messages do not count as records")
	assert.JSONEq(t, `{"type":"STATE","state":{"cursor":"3"}}`, string(summary.state))
	assert.Equal(t, 7, strings.Count(sink.String(), "\n"), "every protocol line is forwarded")
}

func TestPipeRecordsNilStdin(t *testing.T) {
	source := strings.NewReader(`{"type":"RECORD"}` + "\n")
	summary := pipeRecords(source, nil)
	require.NoError(t, summary.err)
	assert.Equal(t, int64(1), summary.records)
}

func TestSubmitSyncDeduplicatesInFlightIdentity(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var startedOnce sync.Once
	client := &Client{
		runner: runnerFunc(func(ctx context.Context, input SyncInput) (*SyncOutput, error) {
			startedOnce.Do(func() { close(started) })
			<-release
			return &SyncOutput{RecordsSynced: 1}, nil
		}),
		inFlight: make(map[string]struct{}),
	}

	input := SyncInput{WorkflowID: "connection-x-1-0"}
	results := make(chan *SyncOutput, 1)
	go func() {
		out, err := client.SubmitSync(context.Background(), input)
		require.NoError(t, err)
		results <- out
	}()

	<-started
	dup, err := client.SubmitSync(context.Background(), input)
	require.NoError(t, err)
	assert.Nil(t, dup, "duplicate submission should be a no-op")

	close(release)
	select {
	case out := <-results:
		assert.Equal(t, int64(1), out.RecordsSynced)
	case <-time.After(time.Second):
		t.Fatal("original submission did not finish")
	}

	// identity is free again once the first run completes
	out, err := client.SubmitSync(context.Background(), input)
	require.NoError(t, err)
	assert.NotNil(t, out)
}

type runnerFunc func(ctx context.Context, input SyncInput) (*SyncOutput, error)

func (f runnerFunc) Run(ctx context.Context, input SyncInput) (*SyncOutput, error) {
	return f(ctx, input)
}
