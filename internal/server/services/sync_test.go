package services

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/dmitrijs2005/groupware/internal/common"
	"github.com/dmitrijs2005/groupware/internal/server/models"
	"github.com/dmitrijs2005/groupware/internal/server/occ"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModifiedSince_CreateThenUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o := f.insert(t, alice, aliceFolder, "Lovelace")
	t0 := o.LastModified

	f.clock.tick()
	u, err := f.objects.Update(ctx, alice, &models.Object{ID: o.ID}, aliceFolder, t0)
	require.NoError(t, err)
	t1 := u.LastModified

	assert.Equal(t, []int{o.ID}, ids(drain(t)(f.sync.ModifiedSince(ctx, alice, aliceFolder, t0, nil))))
	assert.Equal(t, []int{o.ID}, ids(drain(t)(f.sync.ModifiedSince(ctx, alice, aliceFolder, t1, nil))), "since is inclusive")
	assert.Empty(t, drain(t)(f.sync.ModifiedSince(ctx, alice, aliceFolder, t1.Add(time.Millisecond), nil)))
}

func TestDeletedSince_AfterDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o := f.insert(t, alice, aliceFolder, "Lovelace")
	f.clock.tick()
	u, err := f.objects.Update(ctx, alice, &models.Object{ID: o.ID}, aliceFolder, o.LastModified)
	require.NoError(t, err)
	t1 := u.LastModified

	f.clock.tick()
	require.NoError(t, f.objects.Delete(ctx, alice, o.ID, aliceFolder, t1))

	gone := drain(t)(f.sync.DeletedSince(ctx, alice, aliceFolder, t1, nil))
	require.Len(t, gone, 1)
	assert.Equal(t, o.ID, gone[0].ID)
	assert.Equal(t, aliceFolder, gone[0].FolderID)
	assert.Equal(t, alice.UserID, gone[0].ModifiedBy)
	assert.True(t, gone[0].LastModified.After(t1))

	assert.Empty(t, drain(t)(f.sync.ModifiedSince(ctx, alice, aliceFolder, t1, nil)))
}

func TestDeletedSince_StableOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	since := f.clock.tick()
	var created []*models.Object
	for _, s := range []string{"a", "b", "c"} {
		created = append(created, f.insert(t, alice, aliceFolder, s))
	}
	// all deletions share one timestamp
	f.clock.tick()
	stamp := f.clock.t
	for i := len(created) - 1; i >= 0; i-- {
		f.clock.t = stamp
		require.NoError(t, f.objects.Delete(ctx, alice, created[i].ID, aliceFolder, occ.Unspecified))
	}

	first := drain(t)(f.sync.DeletedSince(ctx, alice, aliceFolder, since, nil))
	second := drain(t)(f.sync.DeletedSince(ctx, alice, aliceFolder, since, nil))
	assert.Equal(t, []int{1, 2, 3}, ids(first))
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("repeated call differs (-first +second):\n%s", diff)
	}
}

func TestSync_ReadOwnOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bobs := f.insert(t, bob, aliceFolder, "Bob")
	alices := f.insert(t, alice, aliceFolder, "Alice")
	f.clock.tick()
	require.NoError(t, f.objects.Delete(ctx, bob, bobs.ID, aliceFolder, occ.Unspecified))
	require.NoError(t, f.objects.Delete(ctx, alice, alices.ID, aliceFolder, occ.Unspecified))
	more := f.insert(t, alice, aliceFolder, "Other")
	mine := f.insert(t, bob, aliceFolder, "Mine")

	assert.Equal(t, []int{mine.ID}, ids(drain(t)(f.sync.ModifiedSince(ctx, bob, aliceFolder, time.Time{}, nil))))
	assert.Equal(t, []int{bobs.ID}, ids(drain(t)(f.sync.DeletedSince(ctx, bob, aliceFolder, time.Time{}, nil))))
	assert.ElementsMatch(t, []int{more.ID, mine.ID}, ids(drain(t)(f.sync.ModifiedSince(ctx, alice, aliceFolder, time.Time{}, nil))))
}

func TestSync_PermissionCheckedBeforeRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.insert(t, bob, hiddenFolder, "Secret")
	f.store.Queries = 0

	_, err := f.sync.ModifiedSince(ctx, alice, hiddenFolder, time.Time{}, nil)
	assert.True(t, errors.Is(err, common.ErrorConflict))
	_, err = f.sync.DeletedSince(ctx, alice, hiddenFolder, time.Time{}, nil)
	assert.True(t, errors.Is(err, common.ErrorConflict))
	_, err = f.sync.Changes(ctx, alice, hiddenFolder, time.Time{}, nil)
	assert.True(t, errors.Is(err, common.ErrorConflict))
	_, err = f.sync.ModifiedSince(ctx, alice, 999, time.Time{}, nil)
	assert.True(t, errors.Is(err, common.ErrorNotFound))
	assert.Zero(t, f.store.Queries)
}

func TestSync_SystemUsersFolderAggregatesUserObjects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := f.clock.t

	f.store.PutObject(&models.Object{ContextID: 1, ID: 100, FolderID: models.SystemUsersFolderID, InternalUserID: 5, LastModified: base})
	f.store.PutObject(&models.Object{ContextID: 1, ID: 101, FolderID: aliceSecond, InternalUserID: 7, LastModified: base})
	f.store.PutObject(&models.Object{ContextID: 1, ID: 102, FolderID: aliceSecond, LastModified: base})
	f.store.PutObject(&models.Object{ContextID: 2, ID: 103, FolderID: models.SystemUsersFolderID, InternalUserID: 5, LastModified: base})

	got := drain(t)(f.sync.ModifiedSince(ctx, alice, models.SystemUsersFolderID, time.Time{}, nil))
	assert.ElementsMatch(t, []int{100, 101}, ids(got))

	repo := f.objects.repomanager.Tombstones(f.db)
	require.NoError(t, repo.Insert(ctx, &models.Tombstone{ContextID: 1, ObjectID: 104, FolderID: aliceSecond, DeletedAt: base}, true))
	require.NoError(t, repo.Insert(ctx, &models.Tombstone{ContextID: 1, ObjectID: 105, FolderID: aliceSecond, DeletedAt: base}, false))

	gone := drain(t)(f.sync.DeletedSince(ctx, alice, models.SystemUsersFolderID, time.Time{}, nil))
	assert.Equal(t, []int{104}, ids(gone))
}

func TestSync_MovedUserObjectStaysInSystemUsersFolder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := f.clock.t

	f.store.PutObject(&models.Object{ContextID: 1, ID: 101, FolderID: aliceSecond, CreatedBy: alice.UserID, InternalUserID: 7, LastModified: base})
	f.clock.tick()
	moved, err := f.objects.Update(ctx, alice, &models.Object{ID: 101, FolderID: aliceFolder}, aliceSecond, base)
	require.NoError(t, err)
	require.Equal(t, aliceFolder, moved.FolderID)

	cs, err := f.sync.Changes(ctx, alice, models.SystemUsersFolderID, base, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{101}, ids(cs.Modified))
	assert.Empty(t, cs.Deleted)

	// the source folder still learns that the object left
	gone := drain(t)(f.sync.DeletedSince(ctx, alice, aliceSecond, base, nil))
	assert.Equal(t, []int{101}, ids(gone))

	f.clock.tick()
	require.NoError(t, f.objects.Delete(ctx, alice, 101, aliceFolder, occ.Unspecified))
	cs, err = f.sync.Changes(ctx, alice, models.SystemUsersFolderID, base, nil)
	require.NoError(t, err)
	assert.Empty(t, cs.Modified)
	assert.Equal(t, []int{101}, ids(cs.Deleted))
}

func TestChanges_Watermark(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := f.clock.t

	cs, err := f.sync.Changes(ctx, alice, aliceFolder, start, nil)
	require.NoError(t, err)
	assert.Empty(t, cs.Modified)
	assert.Empty(t, cs.Deleted)
	assert.Equal(t, start, cs.Watermark, "nothing changed")

	a := f.insert(t, alice, aliceFolder, "a")
	b := f.insert(t, alice, aliceFolder, "b")
	f.clock.tick()
	require.NoError(t, f.objects.Delete(ctx, alice, a.ID, aliceFolder, occ.Unspecified))

	cs, err = f.sync.Changes(ctx, alice, aliceFolder, start, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{b.ID}, ids(cs.Modified))
	assert.Equal(t, []int{a.ID}, ids(cs.Deleted))
	assert.Equal(t, f.clock.t, cs.Watermark)

	// unchanged since, no mutations: identical result
	again, err := f.sync.Changes(ctx, alice, aliceFolder, start, nil)
	require.NoError(t, err)
	if diff := cmp.Diff(cs, again); diff != "" {
		t.Errorf("repeated call differs (-first +second):\n%s", diff)
	}

	// from the watermark only the boundary change is delivered again
	next, err := f.sync.Changes(ctx, alice, aliceFolder, cs.Watermark, nil)
	require.NoError(t, err)
	assert.Empty(t, next.Modified)
	assert.Equal(t, []int{a.ID}, ids(next.Deleted))
	assert.Equal(t, cs.Watermark, next.Watermark)
}

// lastTouch records, per object, when it was last created, modified or
// deleted, as observed through the service results.
type lastTouch map[int]time.Time

func TestDeltaCompleteness(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))

	touched := lastTouch{}
	var live []*models.Object
	var marks []time.Time

	for step := 0; step < 60; step++ {
		f.clock.tick()
		marks = append(marks, f.clock.t)
		switch op := rng.Intn(3); {
		case op == 0 || len(live) == 0:
			o := &models.Object{FolderID: aliceFolder}
			created, err := f.objects.Insert(ctx, alice, o)
			require.NoError(t, err)
			live = append(live, created)
			touched[created.ID] = created.LastModified
		case op == 1:
			i := rng.Intn(len(live))
			u, err := f.objects.Update(ctx, alice, &models.Object{ID: live[i].ID}, aliceFolder, live[i].LastModified)
			require.NoError(t, err)
			live[i] = u
			touched[u.ID] = u.LastModified
		default:
			i := rng.Intn(len(live))
			o := live[i]
			require.NoError(t, f.objects.Delete(ctx, alice, o.ID, aliceFolder, o.LastModified))
			live = append(live[:i], live[i+1:]...)
			touched[o.ID] = f.clock.t
		}
	}

	for _, mark := range marks {
		cs, err := f.sync.Changes(ctx, alice, aliceFolder, mark, nil)
		require.NoError(t, err)

		var got []int
		for _, o := range append(cs.Modified, cs.Deleted...) {
			got = append(got, o.ID)
		}
		var want []int
		for id, at := range touched {
			if !at.Before(mark) {
				want = append(want, id)
			}
		}
		sort.Ints(got)
		sort.Ints(want)
		got = dedupe(got)
		require.Equal(t, want, got, "since %v", mark)
	}
}

func dedupe(sorted []int) []int {
	out := sorted[:0]
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			out = append(out, v)
		}
	}
	return out
}
