package structmem

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUpsertInsertThenUpdate(t *testing.T) {
	e := New()

	entry, err := e.Upsert("user:1", "name", "Ada", nil)
	require.NoError(t, err)
	require.Equal(t, uint32(1), entry.Version)
	firstID := entry.ID

	entry, err = e.Upsert("user:1", "name", "Ada Lovelace", map[string]string{"src": "manual"})
	require.NoError(t, err)
	require.Equal(t, uint32(2), entry.Version)
	require.Equal(t, firstID, entry.ID)
	require.Equal(t, "Ada Lovelace", entry.Value)
}

func TestUpsertEmptyFields(t *testing.T) {
	e := New()
	_, err := e.Upsert("", "name", "x", nil)
	require.ErrorIs(t, err, errEmptyEntity)

	_, err = e.Upsert("user:1", "", "x", nil)
	require.ErrorIs(t, err, errEmptyAttribute)
}

func TestGetAndRemove(t *testing.T) {
	e := New()
	_, err := e.Upsert("user:1", "name", "Ada", nil)
	require.NoError(t, err)

	entry, ok := e.Get("user:1", "name")
	require.True(t, ok)
	require.Equal(t, "Ada", entry.Value)

	_, ok = e.Get("user:1", "email")
	require.False(t, ok)

	require.True(t, e.Remove("user:1", "name"))
	require.False(t, e.Remove("user:1", "name"))

	_, ok = e.Get("user:1", "name")
	require.False(t, ok)
}

func TestQueryByEntityPrefix(t *testing.T) {
	e := New()
	_, _ = e.Upsert("user:1", "name", "Ada", nil)
	_, _ = e.Upsert("user:1", "email", "ada@example.com", nil)
	_, _ = e.Upsert("user:2", "name", "Grace", nil)
	_, _ = e.Upsert("org:1", "name", "Analytical Engines", nil)

	matches := e.QueryByEntityPrefix("user:", -1)
	require.Len(t, matches, 3)
	require.Equal(t, "user:1", matches[0].Entity)
	require.Equal(t, "email", matches[0].Attribute)
	require.Equal(t, "user:1", matches[1].Entity)
	require.Equal(t, "name", matches[1].Attribute)
	require.Equal(t, "user:2", matches[2].Entity)

	require.Empty(t, e.QueryByEntityPrefix("user:", 0))

	clamped := e.QueryByEntityPrefix("user:", 1)
	require.Len(t, clamped, 1)
}

func TestStagingInvisibleUntilCommit(t *testing.T) {
	e := New()
	require.NoError(t, e.StageUpsert("user:1", "name", "Ada", nil))
	require.Equal(t, 1, e.PendingMutationCount())

	_, ok := e.Get("user:1", "name")
	require.False(t, ok)

	require.NoError(t, e.CommitStaged())
	require.Equal(t, 0, e.PendingMutationCount())

	entry, ok := e.Get("user:1", "name")
	require.True(t, ok)
	require.Equal(t, "Ada", entry.Value)
}

func TestStagedMutationsApplyInOrder(t *testing.T) {
	e := New()
	require.NoError(t, e.StageUpsert("user:1", "name", "first", nil))
	require.NoError(t, e.StageUpsert("user:1", "name", "second", nil))
	require.NoError(t, e.CommitStaged())

	entry, ok := e.Get("user:1", "name")
	require.True(t, ok)
	require.Equal(t, "second", entry.Value)
	require.Equal(t, uint32(2), entry.Version)
}

func TestRollbackStaged(t *testing.T) {
	e := New()
	_, err := e.Upsert("user:1", "name", "existing", nil)
	require.NoError(t, err)

	require.NoError(t, e.StageUpsert("user:1", "name", "replacement", nil))
	e.StageRemove("user:2", "name")
	e.RollbackStaged()

	require.Equal(t, 0, e.PendingMutationCount())
	entry, ok := e.Get("user:1", "name")
	require.True(t, ok)
	require.Equal(t, "existing", entry.Value)
}

func TestHashCollisionDiagnostic(t *testing.T) {
	e := New()
	require.False(t, e.HasHashCollision())
	_, err := e.Upsert("user:1", "name", "Ada", nil)
	require.NoError(t, err)
	require.False(t, e.HasHashCollision())
}
