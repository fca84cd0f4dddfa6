package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandlerExposesCollectors(t *testing.T) {
	RecordToolExecution("terminate", 10*time.Millisecond, true)
	RecordAgentRun("openai", time.Second, 3, false)
	AddActiveSessions(1)
	AddActiveSessions(-1)
	RecordSessionFrame("log")
	SetDispatchQueueSize("dispatch", 2)
	RecordDispatch("dispatch", time.Millisecond, true)
	RecordFallback(false)
	AddRemoteServers(0)

	srv := httptest.NewServer(MetricsHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	for _, name := range []string{
		`nava_tool_executions_total{status="success",tool="terminate"}`,
		`nava_agent_runs_total{provider="openai",status="error"}`,
		`nava_session_frames_total{kind="log"}`,
		`nava_dispatch_queue_size{lane="dispatch"} 2`,
		`nava_fallback_total{status="error"}`,
	} {
		assert.Contains(t, string(body), name)
	}
}
