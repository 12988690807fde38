package eventlog

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"suinput/core/action"
)

func TestSink_WritesOneLinePerEvent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.ndjson")
	sink, err := New(path)
	require.NoError(t, err)

	listen := sink.Listener()
	listen(action.Event{Handle: 1, Time: time.Now(), Data: action.BooleanState{Value: true, Changed: true}})
	listen(action.Event{Handle: 2, Time: time.Now(), Data: action.ValueState{Value: 0.5}})
	require.NoError(t, sink.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var lines int
	for scanner.Scan() {
		lines++
		assert.NotEmpty(t, scanner.Text())
	}
	assert.Equal(t, 2, lines)
}
