// Package storetest holds the behaviour every store.Store backend must share.
package storetest

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/suite"

	"goldprice/internal/model"
	"goldprice/internal/store"
)

// Suite runs against a fresh backend per test, built by NewStore.
type Suite struct {
	suite.Suite
	NewStore func() store.Store

	s   store.Store
	ctx context.Context
}

func (ts *Suite) SetupTest() {
	ts.ctx = context.Background()
	ts.s = ts.NewStore()
}

func (ts *Suite) TearDownTest() {
	if ts.s != nil {
		ts.s.Close()
	}
}

func ptr(v float64) *float64 { return &v }

func (ts *Suite) rec(k int, price float64) model.GoldPriceRecord {
	return model.GoldPriceRecord{Karat: k, PricePerGram: price, Currency: "IDR", Change: ptr(0), ChangePercent: ptr(0)}
}

func (ts *Suite) TestUpsertKeepsOneRecordPerKarat() {
	_, err := ts.s.UpsertLatest(ts.ctx, ts.rec(24, 1_100_000))
	ts.Require().NoError(err)
	_, err = ts.s.UpsertLatest(ts.ctx, ts.rec(22, 1_000_000))
	ts.Require().NoError(err)
	saved, err := ts.s.UpsertLatest(ts.ctx, ts.rec(24, 1_120_000))
	ts.Require().NoError(err)
	ts.Require().False(saved.UpdatedAt.IsZero())

	latest, err := ts.s.Latest(ts.ctx)
	ts.Require().NoError(err)
	ts.Require().Len(latest, 2)
	ts.Require().Equal(24, latest[0].Karat)
	ts.Require().Equal(1_120_000.0, latest[0].PricePerGram)
	ts.Require().Equal(22, latest[1].Karat)
}

func (ts *Suite) TestNullDeltasSurvive() {
	rec := ts.rec(18, 850_000)
	rec.Change, rec.ChangePercent = nil, nil
	_, err := ts.s.UpsertLatest(ts.ctx, rec)
	ts.Require().NoError(err)

	latest, err := ts.s.Latest(ts.ctx)
	ts.Require().NoError(err)
	ts.Require().Len(latest, 1)
	ts.Require().Nil(latest[0].Change)
	ts.Require().Nil(latest[0].ChangePercent)
}

func (ts *Suite) TestRecordAppendsOneHistoryEntryPerCall() {
	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	const runs = 5
	var lastID int64
	for i := range runs {
		_, entry, err := ts.s.Record(ts.ctx, ts.rec(24, 1_100_000+float64(i)*1000), base.Add(time.Duration(i)*time.Minute))
		ts.Require().NoError(err)
		ts.Require().Greater(entry.ID, lastID)
		lastID = entry.ID
	}

	latest, err := ts.s.Latest(ts.ctx)
	ts.Require().NoError(err)
	ts.Require().Len(latest, 1)
	ts.Require().Equal(1_104_000.0, latest[0].PricePerGram)

	hist, err := ts.s.History(ts.ctx, 24, base.Add(-time.Minute))
	ts.Require().NoError(err)
	ts.Require().Len(hist, runs)
	for i := 1; i < len(hist); i++ {
		ts.Require().False(hist[i].CapturedAt.Before(hist[i-1].CapturedAt))
	}
	ts.Require().Equal(1_100_000.0, hist[0].PricePerGram)
}

func (ts *Suite) TestHistoryFiltersByKaratAndWindow() {
	now := time.Now().UTC().Truncate(time.Second)
	for _, e := range []model.PriceHistoryEntry{
		{Karat: 24, PricePerGram: 1_000_000, Currency: "IDR", CapturedAt: now.AddDate(0, 0, -10)},
		{Karat: 24, PricePerGram: 1_050_000, Currency: "IDR", CapturedAt: now.AddDate(0, 0, -2)},
		{Karat: 22, PricePerGram: 950_000, Currency: "IDR", CapturedAt: now.AddDate(0, 0, -1)},
		{Karat: 24, PricePerGram: 1_060_000, Currency: "IDR", CapturedAt: now.AddDate(0, 0, -1)},
	} {
		_, err := ts.s.AppendHistory(ts.ctx, e)
		ts.Require().NoError(err)
	}

	hist, err := ts.s.History(ts.ctx, 24, now.AddDate(0, 0, -7))
	ts.Require().NoError(err)
	ts.Require().Len(hist, 2)
	ts.Require().Equal(1_050_000.0, hist[0].PricePerGram)
	ts.Require().Equal(1_060_000.0, hist[1].PricePerGram)

	none, err := ts.s.History(ts.ctx, 10, now.AddDate(0, 0, -7))
	ts.Require().NoError(err)
	ts.Require().Empty(none)
}

func (ts *Suite) TestConcurrentRecords() {
	var wg sync.WaitGroup
	at := time.Now().UTC()
	for _, k := range []int{24, 22, 20, 18} {
		wg.Add(1)
		go func(k int) {
			defer wg.Done()
			_, _, err := ts.s.Record(ts.ctx, ts.rec(k, 500_000+float64(k)*20_000), at)
			ts.NoError(err)
		}(k)
	}
	wg.Wait()

	latest, err := ts.s.Latest(ts.ctx)
	ts.Require().NoError(err)
	ts.Require().Len(latest, 4)
	ts.Require().Equal([]int{24, 22, 20, 18}, karats(latest))
}

func karats(recs []model.GoldPriceRecord) []int {
	out := make([]int, len(recs))
	for i, r := range recs {
		out[i] = r.Karat
	}
	return out
}
