package command_test

import (
	"sync"
	"testing"

	"github.com/Carmen-Shannon/oxide-go/gpu/command"
	"github.com/Carmen-Shannon/oxide-go/gpu/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderPreservesOrder(t *testing.T) {
	rec := command.NewRecorder()

	rec.Record(command.WriteBuffer{Offset: 0})
	rec.Record(command.WriteBuffer{Offset: 256})
	rec.Record(command.WriteBuffer{Offset: 512})

	priority, main := rec.Drain()
	assert.Empty(t, priority)
	require.Len(t, main, 3)
	for i, cmd := range main {
		wb, ok := cmd.(command.WriteBuffer)
		require.True(t, ok)
		assert.Equal(t, uint64(i*256), wb.Offset)
	}
}

func TestRecorderPrioritySeparation(t *testing.T) {
	rec := command.NewRecorder()

	rec.Record(command.WriteBuffer{})
	rec.RecordPriority(command.Transition{})
	assert.Equal(t, 2, rec.Len())

	priority, main := rec.Drain()
	require.Len(t, priority, 1)
	require.Len(t, main, 1)
	assert.IsType(t, command.Transition{}, priority[0])
	assert.IsType(t, command.WriteBuffer{}, main[0])
}

func TestRecorderDrainClears(t *testing.T) {
	rec := command.NewRecorder()
	rec.Record(command.WriteBuffer{})
	rec.Drain()

	assert.Equal(t, 0, rec.Len())
	priority, main := rec.Drain()
	assert.Empty(t, priority)
	assert.Empty(t, main)
}

func TestRecorderConcurrentProducers(t *testing.T) {
	rec := command.NewRecorder()

	const producers = 8
	const perProducer = 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				rec.Record(command.WriteBuffer{Offset: uint64(p*perProducer + i)})
			}
		}(p)
	}
	wg.Wait()

	_, main := rec.Drain()
	require.Len(t, main, producers*perProducer)

	// Interleaving across producers is unspecified, but each producer's own
	// commands must appear in its recorded order.
	last := make(map[uint64]uint64)
	for _, cmd := range main {
		offset := cmd.(command.WriteBuffer).Offset
		producer := offset / perProducer
		if prev, ok := last[producer]; ok {
			assert.Greater(t, offset, prev)
		}
		last[producer] = offset
	}
	assert.Len(t, last, producers)
}

func TestCommandsHoldHandles(t *testing.T) {
	reg := registry.NewRegistry()
	h, err := reg.Insert(registry.NewBufferRecord("dst", &registry.BufferRecord{Size: 64}))
	require.NoError(t, err)

	cmd := command.WriteBuffer{Dst: h, Data: []byte{1, 2, 3, 4}}
	assert.True(t, cmd.Dst.Valid())
	assert.Equal(t, h, cmd.Dst)
}
