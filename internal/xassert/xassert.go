package xassert

import (
	"cmp"
	"slices"
	"testing"

	gocmp "github.com/google/go-cmp/cmp"
)

func Equal[T any](t *testing.T, want, got T, options ...gocmp.Option) {
	t.Helper()

	if diff := gocmp.Diff(want, got, options...); diff != "" {
		t.Errorf("Values do not match. Diff (-want +got): %s", diff)
	}
}

// ElementsMatchBy compares want and got ignoring their order, after sorting
// both by key.
func ElementsMatchBy[T any, K cmp.Ordered](t *testing.T, want, got []T, key func(T) K, options ...gocmp.Option) {
	t.Helper()

	sortedWant := slices.Clone(want)
	sortedGot := slices.Clone(got)
	for _, values := range [][]T{sortedWant, sortedGot} {
		slices.SortStableFunc(values, func(a, b T) int {
			return cmp.Compare(key(a), key(b))
		})
	}
	if diff := gocmp.Diff(sortedWant, sortedGot, options...); diff != "" {
		t.Errorf("Elements do not match. Diff (-want +got): %s", diff)
	}
}
