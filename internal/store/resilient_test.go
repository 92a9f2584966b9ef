package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"goldprice/internal/karat"
	"goldprice/internal/model"
	"goldprice/internal/store"
	"goldprice/internal/store/memory"
)

type mockStore struct{ mock.Mock }

func (m *mockStore) Latest(ctx context.Context) ([]model.GoldPriceRecord, error) {
	args := m.Called(ctx)
	recs, _ := args.Get(0).([]model.GoldPriceRecord)
	return recs, args.Error(1)
}

func (m *mockStore) UpsertLatest(ctx context.Context, rec model.GoldPriceRecord) (model.GoldPriceRecord, error) {
	args := m.Called(ctx, rec)
	return args.Get(0).(model.GoldPriceRecord), args.Error(1)
}

func (m *mockStore) AppendHistory(ctx context.Context, e model.PriceHistoryEntry) (model.PriceHistoryEntry, error) {
	args := m.Called(ctx, e)
	return args.Get(0).(model.PriceHistoryEntry), args.Error(1)
}

func (m *mockStore) History(ctx context.Context, k int, since time.Time) ([]model.PriceHistoryEntry, error) {
	args := m.Called(ctx, k, since)
	entries, _ := args.Get(0).([]model.PriceHistoryEntry)
	return entries, args.Error(1)
}

func (m *mockStore) Record(ctx context.Context, rec model.GoldPriceRecord, at time.Time) (model.GoldPriceRecord, model.PriceHistoryEntry, error) {
	args := m.Called(ctx, rec, at)
	return args.Get(0).(model.GoldPriceRecord), args.Get(1).(model.PriceHistoryEntry), args.Error(2)
}

func (m *mockStore) Close() { m.Called() }

var errDown = errors.New("connection refused")

func karatsOf(recs []model.GoldPriceRecord) []int {
	out := make([]int, len(recs))
	for i, r := range recs {
		out[i] = r.Karat
	}
	return out
}

func TestResilient_LatestFallsBackWhenBackendFails(t *testing.T) {
	t.Parallel()

	m := &mockStore{}
	m.On("Latest", mock.Anything).Return(nil, errDown).Once()
	r := store.NewResilient(m, karat.MustTable(karat.Standard), "IDR", nil)

	got := r.Latest(t.Context())

	require.Equal(t, []int{24, 22, 20, 18, 16, 14, 10}, karatsOf(got))
	require.Equal(t, 1_125_000.0, got[0].PricePerGram)
	require.Equal(t, 15_000.0, *got[0].Change)
	require.Equal(t, -0.7, *got[3].ChangePercent)
	m.AssertExpectations(t)
}

func TestResilient_NilBackendServesSnapshot(t *testing.T) {
	t.Parallel()

	r := store.NewResilient(nil, karat.MustTable([]int{24, 21}), "IDR", nil)

	got := r.Latest(t.Context())
	require.Equal(t, []int{24, 21}, karatsOf(got))
	require.InDelta(t, 1_125_000*karat.Ratio(21), got[1].PricePerGram, 1)

	require.ErrorIs(t, r.Record(t.Context(), got[0], time.Now()), store.ErrUnavailable)
	require.NotNil(t, r.History(t.Context(), 24, 7))
	require.Empty(t, r.History(t.Context(), 24, 7))

	_, err := r.Previous(t.Context())
	require.ErrorIs(t, err, store.ErrUnavailable)
}

func TestResilient_FillsMissingKaratsAndDropsUntracked(t *testing.T) {
	t.Parallel()

	mem := memory.New()
	_, err := mem.UpsertLatest(t.Context(), model.GoldPriceRecord{Karat: 24, PricePerGram: 1_200_000, Currency: "IDR"})
	require.NoError(t, err)
	_, err = mem.UpsertLatest(t.Context(), model.GoldPriceRecord{Karat: 9, PricePerGram: 450_000, Currency: "IDR"})
	require.NoError(t, err)

	r := store.NewResilient(mem, karat.MustTable([]int{24, 22}), "IDR", nil)
	got := r.Latest(t.Context())

	require.Equal(t, []int{24, 22}, karatsOf(got))
	require.Equal(t, 1_200_000.0, got[0].PricePerGram)
	require.Equal(t, 1_030_000.0, got[1].PricePerGram)
}

func TestResilient_WriteAndHistoryFailuresAreContained(t *testing.T) {
	t.Parallel()

	m := &mockStore{}
	m.On("Record", mock.Anything, mock.Anything, mock.Anything).
		Return(model.GoldPriceRecord{}, model.PriceHistoryEntry{}, errDown).Once()
	m.On("History", mock.Anything, 24, mock.AnythingOfType("time.Time")).Return(nil, errDown).Once()
	r := store.NewResilient(m, karat.MustTable(karat.Standard), "IDR", nil)

	require.NotPanics(t, func() {
		err := r.Record(t.Context(), model.GoldPriceRecord{Karat: 24, PricePerGram: 1_100_000, Currency: "IDR"}, time.Now())
		require.ErrorIs(t, err, errDown)
		require.Empty(t, r.History(t.Context(), 24, 7))
	})
	m.AssertExpectations(t)
}

func TestResilient_HistoryWindow(t *testing.T) {
	t.Parallel()

	mem := memory.New()
	now := time.Now().UTC()
	for _, days := range []int{1, 3, 10} {
		_, err := mem.AppendHistory(t.Context(), model.PriceHistoryEntry{
			Karat: 24, PricePerGram: 1_100_000, Currency: "IDR", CapturedAt: now.AddDate(0, 0, -days),
		})
		require.NoError(t, err)
	}
	r := store.NewResilient(mem, karat.MustTable(karat.Standard), "IDR", nil)

	require.Len(t, r.History(t.Context(), 24, 7), 2)
	require.Len(t, r.History(t.Context(), 24, 30), 3)
}
