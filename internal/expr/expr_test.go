package expr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompile_SetAndRemove(t *testing.T) {
	t.Parallel()

	u := Compile(Attrs{
		{Name: "username", Value: "alice"},
		{Name: "role", Value: ""},
		{Name: "updatedAt", Value: int64(42)},
		{Name: "apiKey", Value: nil},
	})

	require.Equal(t, "SET #f0 = :v0, #f2 = :v2 REMOVE #f1, #f3", u.Expression)
	require.Equal(t, map[string]string{
		"#f0": "username", "#f1": "role", "#f2": "updatedAt", "#f3": "apiKey",
	}, u.Names)
	require.Equal(t, map[string]any{":v0": "alice", ":v2": int64(42)}, u.Values)
	require.Equal(t, []Assignment{{"#f0", ":v0"}, {"#f2", ":v2"}}, u.Sets)
	require.Equal(t, []string{"#f1", "#f3"}, u.Removes)
	require.False(t, u.IsEmpty())
}

func TestCompile_PlaceholdersForReservedWords(t *testing.T) {
	t.Parallel()

	// "name" and "role" are reserved in DynamoDB; they must never appear raw.
	u := Compile(Attrs{{Name: "name", Value: "x"}, {Name: "role", Value: "admin"}})
	require.NotContains(t, u.Expression, "name")
	require.NotContains(t, u.Expression, "role")
	require.Len(t, u.Names, 2)
}

func TestCompile_Deterministic(t *testing.T) {
	t.Parallel()

	in := Attrs{{"b", "1"}, {"a", ""}, {"c", int64(3)}}
	first := Compile(in)
	for i := 0; i < 20; i++ {
		require.Equal(t, first, Compile(in))
	}
}

func TestCompile_OnlySetsOrOnlyRemoves(t *testing.T) {
	t.Parallel()

	require.Equal(t, "SET #f0 = :v0", Compile(Attrs{{"a", "x"}}).Expression)
	require.Equal(t, "REMOVE #f0, #f1", Compile(Attrs{{"a", ""}, {"b", nil}}).Expression)
}

func TestCompile_EmptyInput(t *testing.T) {
	t.Parallel()

	for _, in := range []Attrs{nil, {}} {
		u := Compile(in)
		require.Empty(t, u.Expression)
		require.True(t, u.IsEmpty())
		require.Empty(t, u.Names)
		require.Empty(t, u.Values)
	}
}

func TestIsEmptyValue(t *testing.T) {
	t.Parallel()

	var nilStr *string
	s := ""
	full := "x"
	require.True(t, IsEmptyValue(nil))
	require.True(t, IsEmptyValue(""))
	require.True(t, IsEmptyValue(nilStr))
	require.True(t, IsEmptyValue(&s))
	require.True(t, IsEmptyValue([]string{}))
	require.True(t, IsEmptyValue(map[string]any{}))
	require.False(t, IsEmptyValue(&full))
	require.False(t, IsEmptyValue(int64(0)))
	require.False(t, IsEmptyValue(false))
	require.False(t, IsEmptyValue("0"))
}

// Applying a compiled partial to a base: non-empty fields take the partial's
// value, empty fields disappear, everything else is untouched.
func TestApply_MergeCorrectness(t *testing.T) {
	t.Parallel()

	bases := []map[string]any{
		{},
		{"uuid": "k1", "username": "old", "role": "user", "apiKey": "K", "createdAt": int64(1)},
		{"uuid": "k2", "id": "42", "extra": "keep"},
	}
	partials := []Attrs{
		{{"username", "new"}},
		{{"username", "new"}, {"apiKey", ""}},
		{{"role", "admin"}, {"id", nil}, {"updatedAt", int64(9)}},
		{{"extra", ""}, {"apiKey", "fresh"}},
	}

	for _, base := range bases {
		for _, p := range partials {
			got := Apply(base, Compile(p))

			seen := map[string]bool{}
			for _, at := range p {
				seen[at.Name] = true
				if IsEmptyValue(at.Value) {
					require.NotContains(t, got, at.Name)
				} else {
					require.Equal(t, at.Value, got[at.Name])
				}
			}
			for k, v := range base {
				if !seen[k] {
					require.Equal(t, v, got[k])
				}
			}
		}
	}
}

func TestApply_DoesNotMutateBase(t *testing.T) {
	t.Parallel()

	base := map[string]any{"a": "1", "b": "2"}
	_ = Apply(base, Compile(Attrs{{"a", "x"}, {"b", ""}}))
	require.Equal(t, map[string]any{"a": "1", "b": "2"}, base)
}

func TestAttrs_Helpers(t *testing.T) {
	t.Parallel()

	a := Attrs{{"uuid", "k"}, {"username", "u"}}
	a = a.Set("username", "v").Set("role", "user")
	require.Equal(t, Attrs{{"uuid", "k"}, {"username", "v"}, {"role", "user"}}, a)

	stripped := a.Without("uuid")
	require.Equal(t, Attrs{{"username", "v"}, {"role", "user"}}, stripped)
	_, ok := stripped.Get("uuid")
	require.False(t, ok)
	v, ok := a.Get("uuid")
	require.True(t, ok)
	require.Equal(t, "k", v)
}

func TestUpdate_ResolvedViews(t *testing.T) {
	t.Parallel()

	u := Compile(Attrs{{"a", "1"}, {"b", ""}, {"c", int64(2)}, {"d", nil}})
	require.Equal(t, map[string]any{"a": "1", "c": int64(2)}, u.SetValues())
	require.Equal(t, []string{"b", "d"}, u.RemovedNames())
}
