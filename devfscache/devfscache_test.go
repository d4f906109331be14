package devfscache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeInstaller struct {
	installed map[int][]string
	cleared   []int
}

func newFakeInstaller() *fakeInstaller {
	return &fakeInstaller{installed: map[int][]string{}}
}

func (f *fakeInstaller) InstallRuleset(ctx context.Context, id int, rules []string) error {
	f.installed[id] = rules
	return nil
}

func (f *fakeInstaller) ClearRuleset(ctx context.Context, id int) error {
	f.cleared = append(f.cleared, id)
	return nil
}

func TestGetRulesetIDDedupesByContent(t *testing.T) {
	inst := newFakeInstaller()
	store := New(inst, 1000, 10)

	id1, err := store.GetRulesetID(context.Background(), []string{"add path 'null' unhide"})
	require.NoError(t, err)
	require.Equal(t, 1000, id1)

	id2, err := store.GetRulesetID(context.Background(), []string{"add path 'null' unhide"})
	require.NoError(t, err)
	require.Equal(t, id1, id2)
	require.Len(t, inst.installed, 1)
}

func TestGetRulesetIDAdvancesOnNewContent(t *testing.T) {
	inst := newFakeInstaller()
	store := New(inst, 1000, 10)

	id1, _ := store.GetRulesetID(context.Background(), []string{"add path 'null' unhide"})
	id2, err := store.GetRulesetID(context.Background(), []string{"add path 'zero' unhide"})
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)
	require.Equal(t, 1001, id2)
}

func TestGetRulesetIDExhaustsCapacity(t *testing.T) {
	inst := newFakeInstaller()
	store := New(inst, 1000, 2)

	_, err := store.GetRulesetID(context.Background(), []string{"a"})
	require.NoError(t, err)
	_, err = store.GetRulesetID(context.Background(), []string{"b"})
	require.NoError(t, err)
	_, err = store.GetRulesetID(context.Background(), []string{"c"})
	require.ErrorIs(t, err, ErrLimitExhausted)
}

func TestOrderSensitiveHash(t *testing.T) {
	inst := newFakeInstaller()
	store := New(inst, 1000, 10)

	id1, err := store.GetRulesetID(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	id2, err := store.GetRulesetID(context.Background(), []string{"b", "a"})
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)
}
