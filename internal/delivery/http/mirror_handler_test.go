package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"mirror-backend/internal/domain"
	"mirror-backend/internal/infrastructure/mt5"
	"mirror-backend/internal/repository"
	"mirror-backend/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// idleGateway satisfies the terminal interface for handler tests; the loop
// is never run here.
type idleGateway struct{}

func (idleGateway) Positions() ([]mt5.Position, error)                   { return nil, nil }
func (idleGateway) PositionsBySymbol(string) ([]mt5.Position, error)     { return nil, nil }
func (idleGateway) SymbolInfo(string) (*mt5.SymbolInfo, error)           { return &mt5.SymbolInfo{}, nil }
func (idleGateway) SelectSymbol(string) error                            { return nil }
func (idleGateway) Tick(string) (*mt5.Tick, error)                       { return &mt5.Tick{}, nil }
func (idleGateway) OrderSend(*mt5.TradeRequest) (*mt5.OrderResult, error) {
	return &mt5.OrderResult{Retcode: mt5.TradeRetcodeDone}, nil
}

func newHandler() (*MirrorHandler, *repository.InMemoryMirrorRepository) {
	repo := repository.NewInMemoryMirrorRepository()
	service := usecase.NewMirrorService(idleGateway{}, repo, nil, nil, nil)
	return NewMirrorHandler(service), repo
}

func TestGetSettingsReturnsDefaults(t *testing.T) {
	h, _ := newHandler()

	rec := httptest.NewRecorder()
	h.HandleSettings(rec, httptest.NewRequest(http.MethodGet, "/api/mirror/settings", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var settings domain.MirrorSettings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &settings))
	assert.True(t, settings.Enabled)
	assert.Equal(t, int64(987654321), settings.Magic)
	assert.InDelta(t, 2.0, settings.VolumeMultiplier, 1e-9)
	assert.Equal(t, "REV of ", settings.CommentPrefix)
}

func TestUpdateSettingsRoundTrip(t *testing.T) {
	h, _ := newHandler()

	body := `{"enabled": false, "magic": 42, "deviationPoints": 30, "volumeMultiplier": 3.0, "commentPrefix": "MIR "}`
	rec := httptest.NewRecorder()
	h.HandleSettings(rec, httptest.NewRequest(http.MethodPost, "/api/mirror/settings", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.HandleSettings(rec, httptest.NewRequest(http.MethodGet, "/api/mirror/settings", nil))

	var settings domain.MirrorSettings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &settings))
	assert.False(t, settings.Enabled)
	assert.Equal(t, int64(42), settings.Magic)
	assert.Equal(t, 30, settings.DeviationPoints)
	assert.InDelta(t, 3.0, settings.VolumeMultiplier, 1e-9)
	assert.Equal(t, "MIR ", settings.CommentPrefix)
}

func TestUpdateSettingsRejectsBadBody(t *testing.T) {
	h, _ := newHandler()

	rec := httptest.NewRecorder()
	h.HandleSettings(rec, httptest.NewRequest(http.MethodPost, "/api/mirror/settings", strings.NewReader("{not json")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetActivePairs(t *testing.T) {
	h, repo := newHandler()
	require.NoError(t, repo.SavePair(&domain.MirrorPair{
		OriginalTicket: 1001,
		ReverseTicket:  5001,
		Symbol:         "EURUSD",
		Status:         "ACTIVE",
	}))

	rec := httptest.NewRecorder()
	h.GetActivePairs(rec, httptest.NewRequest(http.MethodGet, "/api/mirror/active", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var pairs []domain.MirrorPair
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pairs))
	require.Len(t, pairs, 1)
	assert.Equal(t, int64(5001), pairs[0].ReverseTicket)
}

func TestGetHistoryIncludesStats(t *testing.T) {
	h, _ := newHandler()

	rec := httptest.NewRecorder()
	h.GetHistory(rec, httptest.NewRequest(http.MethodGet, "/api/mirror/history?period=7d", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var response struct {
		History []domain.MirrorPair `json:"history"`
		Stats   domain.MirrorStats  `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Empty(t, response.History)
	assert.Zero(t, response.Stats.TotalPairs)
}

func TestMethodNotAllowed(t *testing.T) {
	h, _ := newHandler()

	rec := httptest.NewRecorder()
	h.GetActivePairs(rec, httptest.NewRequest(http.MethodDelete, "/api/mirror/active", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	h.HandleSettings(rec, httptest.NewRequest(http.MethodDelete, "/api/mirror/settings", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestTokenRegistration(t *testing.T) {
	tokens := repository.NewTokenRepository()
	h := NewTokenHandler(tokens)

	rec := httptest.NewRecorder()
	h.HandleRegisterToken(rec, httptest.NewRequest(http.MethodPost, "/api/tokens/register",
		strings.NewReader(`{"Token": "abc", "Platform": "ios"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, tokens.GetTokenCount())

	rec = httptest.NewRecorder()
	h.HandleUnregisterToken(rec, httptest.NewRequest(http.MethodPost, "/api/tokens/unregister",
		strings.NewReader(`{"Token": "abc"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, tokens.GetTokenCount())
}
