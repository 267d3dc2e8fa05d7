package temporal

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/driftdata/driftsync/internal/process"
)

const (
	// workerEntrypoint is the standard entrypoint every connector image ships
	workerEntrypoint = "/driftsync/worker.sh"

	sourceConfigFile      = "source_config.json"
	destinationConfigFile = "destination_config.json"
	catalogFile           = "catalog.json"

	attemptLogFile = "logs.log"
)

// SyncRunner executes one sync attempt
type SyncRunner interface {
	Run(ctx context.Context, input SyncInput) (*SyncOutput, error)
}

// ProcessSyncRunner runs an attempt as a pair of worker containers: the
// source emits records on stdout, the destination consumes them on stdin.
type ProcessSyncRunner struct {
	factory process.Factory
}

// NewProcessSyncRunner creates a runner on top of a process factory
func NewProcessSyncRunner(factory process.Factory) *ProcessSyncRunner {
	return &ProcessSyncRunner{factory: factory}
}

// Run launches the source and destination containers, pipes records between
// them and waits for both to finish. Both must exit zero for the attempt to
// succeed.
func (r *ProcessSyncRunner) Run(ctx context.Context, input SyncInput) (*SyncOutput, error) {
	logger := logging.Log.WithField("workflow_id", input.WorkflowID)

	logFile, err := openAttemptLog(input.JobRoot)
	if err != nil {
		return nil, err
	}
	defer logFile.Close()

	jobID := fmt.Sprint(input.JobID)

	source, err := r.factory.Create(ctx, process.CreateSpec{
		JobID:         jobID,
		AttemptNumber: input.AttemptNumber,
		JobRoot:       input.JobRoot,
		ImageName:     input.SourceImage,
		UsesStdin:     false,
		Files: map[string]string{
			sourceConfigFile: string(input.SourceConfig),
			catalogFile:      string(input.Catalog),
		},
		Entrypoint: workerEntrypoint,
		Args:       []string{"read", "--config", sourceConfigFile, "--catalog", catalogFile},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start source worker: %w", err)
	}
	defer source.Destroy(context.Background())

	destination, err := r.factory.Create(ctx, process.CreateSpec{
		JobID:         jobID,
		AttemptNumber: input.AttemptNumber,
		JobRoot:       input.JobRoot,
		ImageName:     input.DestinationImage,
		UsesStdin:     true,
		Files: map[string]string{
			destinationConfigFile: string(input.DestinationConfig),
			catalogFile:           string(input.Catalog),
		},
		Entrypoint: workerEntrypoint,
		Args:       []string{"write", "--config", destinationConfigFile, "--catalog", catalogFile},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start destination worker: %w", err)
	}
	defer destination.Destroy(context.Background())

	go copyToLog(logFile, source.Stderr(), "source")
	go copyToLog(logFile, destination.Stderr(), "destination")

	pipeResult := make(chan pipeSummary, 1)
	go func() {
		pipeResult <- pipeRecords(source.Stdout(), destination.Stdin())
	}()

	if err := source.WaitFor(ctx); err != nil {
		return nil, fmt.Errorf("error waiting for source worker: %w", err)
	}
	summary := <-pipeResult
	if summary.err != nil {
		return nil, fmt.Errorf("error piping records: %w", summary.err)
	}
	if err := destination.WaitFor(ctx); err != nil {
		return nil, fmt.Errorf("error waiting for destination worker: %w", err)
	}

	sourceCode, err := source.ExitValue()
	if err != nil {
		return nil, err
	}
	destinationCode, err := destination.ExitValue()
	if err != nil {
		return nil, err
	}
	if sourceCode != 0 {
		return nil, fmt.Errorf("source worker exited with code %d", sourceCode)
	}
	if destinationCode != 0 {
		return nil, fmt.Errorf("destination worker exited with code %d", destinationCode)
	}

	logger.WithField("records", summary.records).Info("Sync attempt completed")
	return &SyncOutput{
		RecordsSynced: summary.records,
		State:         summary.state,
	}, nil
}

type pipeSummary struct {
	records int64
	state   json.RawMessage
	err     error
}

// pipeRecords copies the source's line protocol into the destination,
// counting RECORD messages and retaining the last STATE message.
func pipeRecords(stdout io.Reader, stdin io.WriteCloser) pipeSummary {
	defer func() {
		if stdin != nil {
			stdin.Close()
		}
	}()

	var summary pipeSummary
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.Contains(line, `"type":"STATE"`) || strings.Contains(line, `"type": "STATE"`):
			summary.state = json.RawMessage(line)
		case strings.Contains(line, `"type":"RECORD"`) || strings.Contains(line, `"type": "RECORD"`):
			summary.records++
		}
		if stdin != nil {
			if _, err := io.WriteString(stdin, line+"\n"); err != nil {
				summary.err = err
				return summary
			}
		}
	}
	summary.err = scanner.Err()
	return summary
}

func copyToLog(logFile *os.File, stream io.Reader, prefix string) {
	if stream == nil {
		return
	}
	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		fmt.Fprintf(logFile, "[%s] %s\n", prefix, scanner.Text())
	}
}

func openAttemptLog(jobRoot string) (*os.File, error) {
	if err := os.MkdirAll(jobRoot, 0755); err != nil {
		return nil, fmt.Errorf("failed to create attempt workspace: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(jobRoot, attemptLogFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open attempt log: %w", err)
	}
	return f, nil
}

var _ SyncRunner = (*ProcessSyncRunner)(nil)
