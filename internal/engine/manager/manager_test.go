package manager

import (
	"sync"
	"testing"
	"time"

	"nettop/internal/config"
	"nettop/internal/model"
	"nettop/internal/testutil"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memWriter struct {
	mu      sync.Mutex
	packets uint64
	closed  bool
}

func (w *memWriter) Write(r *model.Report) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, row := range r.Rows {
		w.packets += row.Stats.Packets()
	}
	return nil
}

func (w *memWriter) Name() string { return "mem" }

func (w *memWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *memWriter) snapshot() (uint64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.packets, w.closed
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Capture.Interface = "eth0"
	cfg.Window.PollInterval = "5ms"
	cfg.Aggregator.NumWorkers = 2
	return cfg
}

func TestManager_Lifecycle(t *testing.T) {
	log, _ := logtest.NewNullLogger()
	cfg := testConfig()
	w := &memWriter{}

	m, err := NewManager(cfg, "run", []model.Writer{w}, log, nil)
	require.NoError(t, err)
	m.Start()

	for i := 0; i < 10; i++ {
		require.True(t, m.Enqueue(model.Frame{Timestamp: time.Now(), Data: testutil.UDP("10.0.0.1", "10.0.0.53", 5353, 53, 40)}))
	}
	// Every packet lands in exactly one report, whichever boundary picks it up.
	require.Eventually(t, func() bool {
		m.Controller().Flush(time.Now())
		packets, _ := w.snapshot()
		return packets == 10
	}, time.Second, 5*time.Millisecond)

	m.Stop()
	_, closed := w.snapshot()
	assert.True(t, closed)
}

func TestManager_UnknownExporter(t *testing.T) {
	log, _ := logtest.NewNullLogger()
	cfg := testConfig()
	cfg.Exporters = []config.ExporterDef{{Type: "kafka", Enabled: true}}

	_, err := NewManager(cfg, "run", nil, log, nil)
	assert.ErrorIs(t, err, config.ErrConfig)
}

func TestManager_DisabledExportersAreSkipped(t *testing.T) {
	log, _ := logtest.NewNullLogger()
	cfg := testConfig()
	cfg.Exporters = []config.ExporterDef{{Type: "nats"}, {Type: "clickhouse"}}

	m, err := NewManager(cfg, "run", nil, log, nil)
	require.NoError(t, err)
	assert.Empty(t, m.writers)
}
