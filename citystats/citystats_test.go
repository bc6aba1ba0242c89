package citystats

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nestmate/nestmate/store"
)

type staticLister struct {
	users []*store.UserProfile
}

func (l *staticLister) ListUsers(context.Context, *store.FindUser) ([]*store.UserProfile, error) {
	return l.users, nil
}

func user(id, zip string) *store.UserProfile {
	dob := time.Date(1996, 4, 1, 0, 0, 0, 0, time.UTC)
	return &store.UserProfile{
		ID:          id,
		FirstName:   "Test",
		LastName:    id,
		Gender:      "female",
		ZipCode:     zip,
		DateOfBirth: &dob,
	}
}

func TestRebuild(t *testing.T) {
	lister := &staticLister{users: []*store.UserProfile{
		user("a", "10001"),
		user("b", "10002"),
		user("c", "94110"),
		{ID: "incomplete", ZipCode: "10003"},
	}}

	agg := New(lister)
	require.NoError(t, agg.Rebuild(context.Background()))

	assert.Equal(t, 2, agg.Count("100"))
	assert.Equal(t, 1, agg.Count("941"))
	assert.Equal(t, 0, agg.Count("999"))
	assert.Equal(t, 3, agg.Total())
	assert.False(t, agg.RebuiltAt().IsZero())
}

func TestApply(t *testing.T) {
	agg := New(&staticLister{})

	created := user("a", "10001")
	agg.Apply(nil, created)
	assert.Equal(t, 1, agg.Count("100"))

	// Moving city shifts the bucket.
	moved := user("a", "94110")
	agg.Apply(created, moved)
	assert.Equal(t, 0, agg.Count("100"))
	assert.Equal(t, 1, agg.Count("941"))
	assert.Equal(t, 1, agg.Total())

	agg.Apply(moved, nil)
	assert.Equal(t, 0, agg.Count("941"))
	assert.Equal(t, 0, agg.Total())
}

func TestApplyIgnoresIncomplete(t *testing.T) {
	agg := New(&staticLister{})

	agg.Apply(nil, &store.UserProfile{ID: "x", ZipCode: "10001"})
	assert.Equal(t, 0, agg.Count("100"))

	// Completing the profile counts it for the first time.
	agg.Apply(&store.UserProfile{ID: "x", ZipCode: "10001"}, user("x", "10001"))
	assert.Equal(t, 1, agg.Count("100"))
}

func TestTop(t *testing.T) {
	lister := &staticLister{users: []*store.UserProfile{
		user("a", "10001"),
		user("b", "10002"),
		user("c", "94110"),
		user("d", "60601"),
		user("e", "60602"),
		user("f", "60603"),
	}}

	agg := New(lister)
	require.NoError(t, agg.Rebuild(context.Background()))

	top := agg.Top(2)
	require.Len(t, top, 2)
	assert.Equal(t, CityCount{CityCode: "606", Count: 3}, top[0])
	assert.Equal(t, CityCount{CityCode: "100", Count: 2}, top[1])

	all := agg.Top(0)
	assert.Len(t, all, 3)
}
