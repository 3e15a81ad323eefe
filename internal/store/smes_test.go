package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loanconnect/internal/models"
	"loanconnect/internal/storage"
)

func TestSMEStore(t *testing.T) {
	mem := storage.NewMemory()
	s := NewSMEStore(mem)
	require.NoError(t, s.Hydrate(context.Background()))

	acme := models.SME{ID: 1, Name: "Acme Exports", Country: "India", BankID: 7}
	s.AddSME(acme)
	s.AddSME(models.SME{ID: 2, Name: "Globex", Country: "Singapore"})
	acme.Name = "Acme Exports Pvt Ltd"
	s.AddSME(acme)

	smes := s.GetSMEs()
	require.Len(t, smes, 2, "same id replaces the entry")
	assert.Equal(t, "Acme Exports Pvt Ltd", smes[0].Name)

	got, ok := s.GetSME(2)
	require.True(t, ok)
	assert.Equal(t, "Globex", got.Name)
	_, ok = s.GetSME(99)
	assert.False(t, ok)

	s.SetSelectedSME(&acme)
	selected, ok := s.SelectedSME()
	require.True(t, ok)
	assert.Equal(t, int64(1), selected.ID)

	restored := NewSMEStore(mem)
	assert.Empty(t, restored.GetSMEs())
	require.NoError(t, restored.Hydrate(context.Background()))
	assert.True(t, restored.Hydrated())
	assert.Equal(t, s.GetSMEs(), restored.GetSMEs())
	selected, ok = restored.SelectedSME()
	require.True(t, ok)
	assert.Equal(t, "Acme Exports Pvt Ltd", selected.Name)

	s.SetSelectedSME(nil)
	_, ok = s.SelectedSME()
	assert.False(t, ok)

	s.SetSMEs(nil)
	assert.Empty(t, s.GetSMEs())
}

func TestSMEStoreReady(t *testing.T) {
	s := NewSMEStore(storage.NewMemory())

	select {
	case <-s.Ready():
		t.Fatal("ready before hydration")
	default:
	}
	assert.False(t, s.Hydrated())

	require.NoError(t, s.Hydrate(context.Background()))
	select {
	case <-s.Ready():
	default:
		t.Fatal("not ready after hydration")
	}
	assert.True(t, s.Hydrated())

	require.NoError(t, s.Hydrate(context.Background()), "hydrating twice is harmless")
}
