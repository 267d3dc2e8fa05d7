package scheduler

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResourceMonitorTracksCurrentProcess(t *testing.T) {
	m := NewResourceMonitor(time.Second)
	require.NotNil(t, m.process, "current pid must resolve to a process handle")
	assert.Equal(t, int32(os.Getpid()), m.process.Pid)

	// a sample against the real process must not panic
	m.sample()
}
