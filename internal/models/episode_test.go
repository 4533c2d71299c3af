// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/analyzarr/internal/domain"
	"github.com/autobrr/analyzarr/internal/models"
	"github.com/autobrr/analyzarr/internal/testdb"
)

func newEpisode(key string) *models.Episode {
	return &models.Episode{
		Key:           key,
		SeriesTitle:   "The Show",
		Season:        1,
		Episode:       2,
		Code:          "S01E02",
		ExpectedTitle: "The Long Way Round",
		ActualTitle:   "The Long Way Round",
		SceneName:     "The.Show.S01E02.The.Long.Way.Round.1080p.WEB-DL-GRP",
		NormExpected:  "the long way round",
		NormExtracted: "the long way round",
		NormScene:     "the show s01e02 the long way round 1080p web dl grp",
		Confidence:    1,
		Matched:       true,
	}
}

func TestEpisodeStore_UpsertNeverDuplicates(t *testing.T) {
	ctx := context.Background()
	store := models.NewEpisodeStore(testdb.Open(t, "models"))

	ep := newEpisode("series::theshow::S01E02")
	require.NoError(t, store.Upsert(ctx, ep))

	_, err := store.SetSystemTags(ctx, ep.Key, []string{domain.TagMatched}, nil)
	require.NoError(t, err)
	_, err = store.AddTag(ctx, ep.Key, "favourite")
	require.NoError(t, err)

	ep.ActualTitle = "Something Else"
	ep.Confidence = 0.2
	ep.Matched = false
	require.NoError(t, store.Upsert(ctx, ep))

	keys, err := store.ListKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"series::theshow::S01E02"}, keys)

	got, err := store.Get(ctx, ep.Key)
	require.NoError(t, err)
	assert.Equal(t, "Something Else", got.ActualTitle)
	assert.InDelta(t, 0.2, got.Confidence, 1e-9)
	assert.False(t, got.Matched)
	assert.ElementsMatch(t, []string{domain.TagMatched, "favourite"}, got.Tags, "upsert preserves tags")
}

func TestEpisodeStore_UpsertRejectsConfidenceOutOfRange(t *testing.T) {
	store := models.NewEpisodeStore(testdb.Open(t, "models"))

	ep := newEpisode("series::theshow::S01E03")
	ep.Confidence = 1.5
	require.Error(t, store.Upsert(context.Background(), ep))
}

func TestEpisodeStore_ConcurrentUpsertSameKey(t *testing.T) {
	ctx := context.Background()
	store := models.NewEpisodeStore(testdb.Open(t, "models"))

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.Upsert(ctx, newEpisode("series::theshow::S01E02")))
		}()
	}
	wg.Wait()

	keys, err := store.ListKeys(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}

func TestEpisodeStore_GetUnknown(t *testing.T) {
	store := models.NewEpisodeStore(testdb.Open(t, "models"))

	_, err := store.Get(context.Background(), "series::nope::S01E01")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEpisodeStore_Tags(t *testing.T) {
	ctx := context.Background()
	store := models.NewEpisodeStore(testdb.Open(t, "models"))

	ep := newEpisode("series::theshow::S01E02")
	require.NoError(t, store.Upsert(ctx, ep))

	t.Run("add is idempotent", func(t *testing.T) {
		tags, err := store.AddTag(ctx, ep.Key, "rewatch")
		require.NoError(t, err)
		assert.Equal(t, []string{"rewatch"}, tags)

		tags, err = store.AddTag(ctx, ep.Key, "rewatch")
		require.NoError(t, err)
		assert.Equal(t, []string{"rewatch"}, tags)
	})

	t.Run("remove absent is a no-op", func(t *testing.T) {
		tags, err := store.RemoveTag(ctx, ep.Key, "never-added")
		require.NoError(t, err)
		assert.Equal(t, []string{"rewatch"}, tags)
	})

	t.Run("protected tags are rejected", func(t *testing.T) {
		for _, tag := range []string{domain.TagMatched, domain.TagProblematic, domain.TagOverride} {
			_, err := store.AddTag(ctx, ep.Key, tag)
			require.ErrorIs(t, err, domain.ErrProtectedTag, tag)

			var protected *domain.ProtectedTagError
			require.ErrorAs(t, err, &protected)
			assert.Equal(t, tag, protected.Tag)

			_, err = store.RemoveTag(ctx, ep.Key, tag)
			require.ErrorIs(t, err, domain.ErrProtectedTag, tag)
		}
	})

	t.Run("protected tags ignore case", func(t *testing.T) {
		for _, tag := range []string{"Matched", "OVERRIDE", "Problematic-Episode"} {
			_, err := store.AddTag(ctx, ep.Key, tag)
			require.ErrorIs(t, err, domain.ErrProtectedTag, tag)

			_, err = store.RemoveTag(ctx, ep.Key, tag)
			require.ErrorIs(t, err, domain.ErrProtectedTag, tag)
		}

		tags, err := store.Tags(ctx, ep.Key)
		require.NoError(t, err)
		assert.Equal(t, []string{"rewatch"}, tags)
	})

	t.Run("unknown key", func(t *testing.T) {
		_, err := store.AddTag(ctx, "series::nope::S01E01", "x")
		require.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("system tags bypass protection", func(t *testing.T) {
		tags, err := store.SetSystemTags(ctx, ep.Key, []string{domain.TagProblematic}, []string{domain.TagMatched})
		require.NoError(t, err)
		assert.Equal(t, []string{domain.TagProblematic, "rewatch"}, tags)
	})
}

func TestEpisodeStore_Purge(t *testing.T) {
	ctx := context.Background()
	db := testdb.Open(t, "models")
	store := models.NewEpisodeStore(db)
	attempts := models.NewMismatchStore(db)

	ep := newEpisode("series::theshow::S01E02")
	require.NoError(t, store.Upsert(ctx, ep))
	_, err := store.AddTag(ctx, ep.Key, "rewatch")
	require.NoError(t, err)
	_, err = attempts.Increment(ctx, ep.Key, "x")
	require.NoError(t, err)

	require.NoError(t, store.Purge(ctx, ep.Key))

	_, err = store.Get(ctx, ep.Key)
	require.ErrorIs(t, err, domain.ErrNotFound)

	n, err := attempts.Get(ctx, ep.Key)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.ErrorIs(t, store.Purge(ctx, ep.Key), domain.ErrNotFound)
}

func TestEpisodeStore_ListBySeriesAndStats(t *testing.T) {
	ctx := context.Background()
	store := models.NewEpisodeStore(testdb.Open(t, "models"))

	for i, matched := range []bool{true, false, false} {
		ep := newEpisode("series::theshow::S01E0" + string(rune('1'+i)))
		ep.Episode = i + 1
		ep.Matched = matched
		if !matched {
			ep.Confidence = 0.1
		}
		require.NoError(t, store.Upsert(ctx, ep))
	}

	other := newEpisode("series::other::S02E01")
	other.SeriesTitle = "Other"
	require.NoError(t, store.Upsert(ctx, other))

	_, err := store.SetSystemTags(ctx, "series::theshow::S01E03", []string{domain.TagProblematic}, nil)
	require.NoError(t, err)

	episodes, err := store.ListBySeries(ctx, "the show")
	require.NoError(t, err)
	require.Len(t, episodes, 3)
	assert.Equal(t, 1, episodes[0].Episode)
	assert.Equal(t, []string{domain.TagProblematic}, episodes[2].Tags)
	assert.Empty(t, episodes[0].Tags)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 2, stats.Matched)
	assert.Equal(t, 2, stats.Mismatched)
	assert.Equal(t, 1, stats.Problematic)
	require.Len(t, stats.Series, 2)
	assert.Equal(t, "Other", stats.Series[0].SeriesTitle)
	assert.Equal(t, 3, stats.Series[1].Total)

	n, err := store.PurgeSeries(ctx, "The Show")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestEpisodeStore_Override(t *testing.T) {
	ctx := context.Background()
	db := testdb.Open(t, "models")
	store := models.NewEpisodeStore(db)
	attempts := models.NewMismatchStore(db)

	ep := newEpisode("series::theshow::S01E02")
	ep.Confidence = 0
	ep.Matched = false
	ep.MissingTitle = true
	require.NoError(t, store.Upsert(ctx, ep))
	_, err := store.SetSystemTags(ctx, ep.Key, []string{domain.TagProblematic}, nil)
	require.NoError(t, err)
	for range 3 {
		_, err := attempts.Increment(ctx, ep.Key, "release")
		require.NoError(t, err)
	}

	got, err := store.Override(ctx, ep.Key, "admin", "verified by hand")
	require.NoError(t, err)
	assert.True(t, got.Matched)
	assert.False(t, got.MissingTitle)
	assert.InDelta(t, 1.0, got.Confidence, 1e-9)
	assert.Zero(t, got.Attempts)
	assert.Equal(t, []string{domain.TagMatched, domain.TagOverride}, got.Tags)

	history, err := store.OverrideHistory(ctx, ep.Key)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "admin", history[0].Actor)
	assert.Equal(t, "verified by hand", history[0].Reason)
	assert.Equal(t, []string{domain.TagProblematic}, history[0].PreviousTags)

	_, err = store.Override(ctx, "series::nope::S01E01", "admin", "")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEpisodeStore_Touch(t *testing.T) {
	ctx := context.Background()
	store := models.NewEpisodeStore(testdb.Open(t, "models"))

	ep := newEpisode("series::theshow::S01E02")
	require.NoError(t, store.Upsert(ctx, ep))

	require.NoError(t, store.Touch(ctx, ep.Key, "New", "The.Show.S01E02.New-GRP", "/tv/a.mkv", "GRP", "the show s01e02 new grp"))

	got, err := store.Get(ctx, ep.Key)
	require.NoError(t, err)
	assert.Equal(t, "New", got.ActualTitle)
	assert.True(t, got.Matched, "classification untouched")

	require.ErrorIs(t, store.Touch(ctx, "series::nope::S01E01", "", "", "", "", ""), domain.ErrNotFound)
}

func TestEpisodeStore_FindByFilePath(t *testing.T) {
	ctx := context.Background()
	store := models.NewEpisodeStore(testdb.Open(t, "models"))

	ep := newEpisode("series::doctorwho2005::S01E01")
	ep.SeriesTitle = "Doctor Who (2005)"
	ep.FilePath = "/tv/Doctor Who/Season 01/Doctor.Who.S01E01.Rose.mkv"
	require.NoError(t, store.Upsert(ctx, ep))
	require.NoError(t, store.Upsert(ctx, newEpisode("series::theshow::S01E02")))

	got, err := store.FindByFilePath(ctx, ep.FilePath)
	require.NoError(t, err)
	assert.Equal(t, ep.Key, got.Key)

	_, err = store.FindByFilePath(ctx, "/tv/elsewhere.mkv")
	require.ErrorIs(t, err, domain.ErrNotFound)

	// records without a path never match an empty lookup
	_, err = store.FindByFilePath(ctx, "")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMismatchStore(t *testing.T) {
	ctx := context.Background()
	store := models.NewMismatchStore(testdb.Open(t, "models"))

	n, err := store.Get(ctx, "series::theshow::S01E02")
	require.NoError(t, err)
	assert.Zero(t, n)

	for want := 1; want <= 3; want++ {
		n, err := store.Increment(ctx, "series::theshow::S01E02", "The.Show.S01E02-GRP")
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	require.NoError(t, store.Reset(ctx, "series::theshow::S01E02"))
	n, err = store.Get(ctx, "series::theshow::S01E02")
	require.NoError(t, err)
	assert.Zero(t, n)
}
