package device

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/afterfire/pkg/flame"
	"github.com/charlie0129/afterfire/pkg/pulse"
)

type pipeConn struct {
	*io.PipeReader

	mu  sync.Mutex
	out bytes.Buffer
}

func (c *pipeConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.Write(p)
}

func (c *pipeConn) written() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.String()
}

func TestSerial(t *testing.T) {
	r, w := io.Pipe()
	conn := &pipeConn{PipeReader: r}
	s := newSerial(conn)

	assert.Equal(t, pulse.DefaultWidth, s.ReadPulseWidth())

	_, err := io.WriteString(w, "P1916\nnoise\n\nP2000\n")
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return s.ReadPulseWidth() == 2000 }, time.Second, time.Millisecond)

	require.NoError(t, s.WriteColor(flame.Blue))
	require.NoError(t, s.WriteColor(flame.Blue))
	require.NoError(t, s.WriteColor(flame.Black))
	assert.Equal(t, "C0,0,255\nC0,0,0\n", conn.written())

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Error(t, s.WriteColor(flame.Green))
	// Last good width is kept.
	assert.EqualValues(t, 2000, s.ReadPulseWidth())
}

func TestMockProfile(t *testing.T) {
	now := time.Unix(0, 0)
	clock := func() time.Time { return now }
	m := NewMock([]Keyframe{
		{At: 0, Width: 1000},
		{At: time.Second, Width: 2000},
		{At: 2 * time.Second, Width: 2000},
	}, clock)

	assert.EqualValues(t, 1000, m.ReadPulseWidth())
	now = now.Add(500 * time.Millisecond)
	assert.EqualValues(t, 1500, m.ReadPulseWidth())
	now = now.Add(time.Second)
	assert.EqualValues(t, 2000, m.ReadPulseWidth())
	// Loops.
	now = now.Add(time.Second)
	assert.EqualValues(t, 1500, m.ReadPulseWidth())

	require.NoError(t, m.WriteColor(flame.Green))
	assert.Equal(t, flame.Green, m.LastColor())
	assert.NoError(t, m.Close())
}

func TestMockDefaultProfileReachesExtremes(t *testing.T) {
	m := NewMock(nil, nil)
	var lo, hi uint16 = 65535, 0
	for d := time.Duration(0); d < 9*time.Second; d += 5 * time.Millisecond {
		w := m.widthAt(d)
		lo = min(lo, w)
		hi = max(hi, w)
	}
	assert.EqualValues(t, 1496, lo)
	assert.EqualValues(t, 2000, hi)
}

func TestTerminalPrintsChanges(t *testing.T) {
	var out bytes.Buffer
	m := NewMock(nil, nil)
	term := NewTerminal(m, &out)

	require.NoError(t, term.WriteColor(flame.Black))
	require.NoError(t, term.WriteColor(flame.Black))
	require.NoError(t, term.WriteColor(flame.Green))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "#000000")
	assert.Contains(t, lines[1], "#008000")
	assert.Equal(t, flame.Green, m.LastColor())
}
