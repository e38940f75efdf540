package repository

import (
	"testing"
	"time"

	"mirror-backend/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activePair(originalTicket, reverseTicket int64) *domain.MirrorPair {
	return &domain.MirrorPair{
		OriginalTicket: originalTicket,
		ReverseTicket:  reverseTicket,
		Symbol:         "EURUSD",
		ReverseVolume:  0.2,
		OpenedAt:       time.Now(),
		Status:         "ACTIVE",
	}
}

func TestSaveAndGetPair(t *testing.T) {
	repo := NewInMemoryMirrorRepository()
	require.NoError(t, repo.SavePair(activePair(1001, 5001)))

	pair, ok := repo.GetPairByOriginal(1001)
	require.True(t, ok)
	assert.Equal(t, int64(5001), pair.ReverseTicket)
	assert.True(t, repo.HasMirrored(1001))
	assert.Len(t, repo.GetActivePairs(), 1)
}

func TestClosingPairMovesItToHistory(t *testing.T) {
	repo := NewInMemoryMirrorRepository()
	require.NoError(t, repo.SavePair(activePair(1001, 5001)))

	pair, _ := repo.GetPairByOriginal(1001)
	now := time.Now()
	pair.Status = "CLOSED"
	pair.ClosedAt = &now
	pair.CloseReason = domain.CloseReasonOriginalClosed
	require.NoError(t, repo.UpdatePair(pair))

	assert.Empty(t, repo.GetActivePairs())
	_, ok := repo.GetPairByOriginal(1001)
	assert.False(t, ok)
	assert.True(t, repo.HasMirrored(1001), "closed pairs still count as mirrored")

	history := repo.GetHistory(time.Time{})
	require.Len(t, history, 1)
	assert.Equal(t, domain.CloseReasonOriginalClosed, history[0].CloseReason)
}

func TestHistoryRespectsFromTime(t *testing.T) {
	repo := NewInMemoryMirrorRepository()

	old := activePair(1001, 5001)
	require.NoError(t, repo.SavePair(old))
	closedAt := time.Now().Add(-48 * time.Hour)
	old.Status = "CLOSED"
	old.ClosedAt = &closedAt
	require.NoError(t, repo.UpdatePair(old))

	recent := activePair(1002, 5002)
	require.NoError(t, repo.SavePair(recent))
	now := time.Now()
	recent.Status = "CLOSED"
	recent.ClosedAt = &now
	require.NoError(t, repo.UpdatePair(recent))

	history := repo.GetHistory(time.Now().Add(-24 * time.Hour))
	require.Len(t, history, 1)
	assert.Equal(t, int64(1002), history[0].OriginalTicket)
}

func TestMarkMirroredWithoutPair(t *testing.T) {
	repo := NewInMemoryMirrorRepository()
	assert.False(t, repo.HasMirrored(1001))

	repo.MarkMirrored(1001)
	assert.True(t, repo.HasMirrored(1001))
	assert.Empty(t, repo.GetActivePairs())
}

func TestUpdateUnknownPairFails(t *testing.T) {
	repo := NewInMemoryMirrorRepository()
	assert.Error(t, repo.UpdatePair(activePair(9999, 1)))
}
