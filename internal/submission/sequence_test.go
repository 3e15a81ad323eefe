package submission

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultStages(t *testing.T) {
	stages := DefaultStages(2 * time.Second)
	require.Len(t, stages, 4)

	titles := make([]string, len(stages))
	for i, s := range stages {
		titles[i] = s.Title
		assert.Equal(t, i+1, s.ID)
		assert.Equal(t, 2*time.Second, s.Duration)
	}
	assert.Equal(t, []string{"Sharing Consent", "Consent", "Data Upload", "Secure Transfer"}, titles)
}

func TestRunVisitsStagesInOrder(t *testing.T) {
	seq := NewSequence(DefaultStages(time.Millisecond))
	assert.Nil(t, seq.Current().Stage, "nothing shown before Run")

	var seen []int
	require.NoError(t, seq.Run(context.Background(), func(s Stage) {
		seen = append(seen, s.ID)
	}))

	assert.Equal(t, []int{1, 2, 3, 4}, seen)
	p := seq.Current()
	assert.True(t, p.Done)
	assert.False(t, p.Running)
	require.NotNil(t, p.Stage)
	assert.Equal(t, "Secure Transfer", p.Stage.Title)
	assert.Equal(t, 4, p.Total)
}

func TestRunCancelled(t *testing.T) {
	seq := NewSequence(DefaultStages(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan Stage, 4)
	done := make(chan error, 1)
	go func() { done <- seq.Run(ctx, func(s Stage) { started <- s }) }()

	first := <-started
	assert.Equal(t, 1, first.ID)
	assert.True(t, seq.Current().Running)
	assert.ErrorIs(t, seq.Run(context.Background(), nil), ErrRunning)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	p := seq.Current()
	assert.False(t, p.Running)
	assert.False(t, p.Done)
}

func TestRunWithZeroDurations(t *testing.T) {
	seq := NewSequence(DefaultStages(0))
	require.NoError(t, seq.Run(context.Background(), nil))
	assert.True(t, seq.Current().Done)
}
