// Package storetest holds the behaviour every store.Store backend must
// share. Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"testing"

	"sphexbot/internal/store"
)

// Factory returns a fresh, empty store. The test closes it.
type Factory func(t *testing.T) store.Store

func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := map[string]func(t *testing.T, s store.Store){
		"ListAppendAndRange":    testList,
		"ListDropFront":         testDropFront,
		"DeleteRemovesAllTypes": testDelete,
		"Sets":                  testSets,
		"Hashes":                testHashes,
		"SortedSets":            testSortedSets,
		"Prefixed":              testPrefixed,
		"ConcurrentAppends":     testConcurrentAppends,
	}
	names := make([]string, 0, len(tests))
	for name := range tests {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		test := tests[name]
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			test(t, s)
		})
	}
}

func testList(t *testing.T, s store.Store) {
	ctx := context.Background()
	for _, v := range []string{"one", "two", "three"} {
		if err := s.ListAppend(ctx, "list", v); err != nil {
			t.Fatalf("ListAppend(%q) error = %v", v, err)
		}
	}
	got, err := s.ListRange(ctx, "list")
	if err != nil {
		t.Fatalf("ListRange() error = %v", err)
	}
	if want := []string{"one", "two", "three"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("ListRange() = %#v, want %#v", got, want)
	}

	empty, err := s.ListRange(ctx, "missing")
	if err != nil {
		t.Fatalf("ListRange(missing) error = %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("ListRange(missing) = %#v, want empty", empty)
	}
}

func testDropFront(t *testing.T, s store.Store) {
	ctx := context.Background()
	for _, v := range []string{"one", "two", "three"} {
		mustNoErr(t, s.ListAppend(ctx, "list", v))
	}
	if _, ok := s.(store.ListTrimmer); !ok {
		t.Fatalf("%T does not implement store.ListTrimmer", s)
	}
	mustNoErr(t, store.DropFront(ctx, s, "list", 2))
	got, err := s.ListRange(ctx, "list")
	if err != nil {
		t.Fatalf("ListRange() error = %v", err)
	}
	if want := []string{"three"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("after DropFront(2) = %#v, want %#v", got, want)
	}

	mustNoErr(t, store.DropFront(ctx, store.WithPrefix(s, "p"), "missing", 3))
	mustNoErr(t, store.DropFront(ctx, s, "list", 5))
	if got, _ := s.ListRange(ctx, "list"); len(got) != 0 {
		t.Fatalf("after DropFront(5) = %#v, want empty", got)
	}
}

func testDelete(t *testing.T, s store.Store) {
	ctx := context.Background()
	mustNoErr(t, s.ListAppend(ctx, "l", "v"))
	mustNoErr(t, s.SetAdd(ctx, "s", "m"))
	mustNoErr(t, s.HashSet(ctx, "h", map[string]string{"f": "v"}))
	mustNoErr(t, s.SortedAdd(ctx, "z", "m", 1))

	mustNoErr(t, s.Delete(ctx, "l", "s", "h", "z", "never-existed"))

	list, err := s.ListRange(ctx, "l")
	mustNoErr(t, err)
	members, err := s.SetMembers(ctx, "s")
	mustNoErr(t, err)
	fields, err := s.HashGetAll(ctx, "h")
	mustNoErr(t, err)
	sorted, err := s.SortedRangeByScore(ctx, "z", 0, 10)
	mustNoErr(t, err)
	if len(list)+len(members)+len(fields)+len(sorted) != 0 {
		t.Fatalf("data survived delete: %v %v %v %v", list, members, fields, sorted)
	}
}

func testSets(t *testing.T, s store.Store) {
	ctx := context.Background()
	mustNoErr(t, s.SetAdd(ctx, "users", "bob", "alice"))
	mustNoErr(t, s.SetAdd(ctx, "users", "alice"))

	members, err := s.SetMembers(ctx, "users")
	mustNoErr(t, err)
	sort.Strings(members)
	if want := []string{"alice", "bob"}; !reflect.DeepEqual(members, want) {
		t.Fatalf("SetMembers() = %#v, want %#v", members, want)
	}
}

func testHashes(t *testing.T, s store.Store) {
	ctx := context.Background()
	mustNoErr(t, s.HashSet(ctx, "gist", map[string]string{"id": "1", "url": "a"}))
	mustNoErr(t, s.HashSet(ctx, "gist", map[string]string{"url": "b"}))

	fields, err := s.HashGetAll(ctx, "gist")
	mustNoErr(t, err)
	if want := map[string]string{"id": "1", "url": "b"}; !reflect.DeepEqual(fields, want) {
		t.Fatalf("HashGetAll() = %#v, want %#v", fields, want)
	}

	missing, err := s.HashGetAll(ctx, "missing")
	mustNoErr(t, err)
	if len(missing) != 0 {
		t.Fatalf("HashGetAll(missing) = %#v, want empty", missing)
	}
}

func testSortedSets(t *testing.T, s store.Store) {
	ctx := context.Background()
	mustNoErr(t, s.SortedAdd(ctx, "due", "c", 30))
	mustNoErr(t, s.SortedAdd(ctx, "due", "a", 10))
	mustNoErr(t, s.SortedAdd(ctx, "due", "b", 10))
	mustNoErr(t, s.SortedAdd(ctx, "due", "d", 40))

	got, err := s.SortedRangeByScore(ctx, "due", 0, 30)
	mustNoErr(t, err)
	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("SortedRangeByScore() = %#v, want %#v", got, want)
	}

	mustNoErr(t, s.SortedRemove(ctx, "due", "a", "c"))
	mustNoErr(t, s.SortedAdd(ctx, "due", "d", 5))
	got, err = s.SortedRangeByScore(ctx, "due", 0, 100)
	mustNoErr(t, err)
	if want := []string{"d", "b"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("SortedRangeByScore() after update = %#v, want %#v", got, want)
	}
}

func testPrefixed(t *testing.T, s store.Store) {
	ctx := context.Background()
	memo := store.WithPrefix(store.WithPrefix(s, "ircbot"), "memo")
	if memo.Prefix() != "ircbot:memo" {
		t.Fatalf("Prefix() = %q", memo.Prefix())
	}
	mustNoErr(t, memo.ListAppend(ctx, "#test:bob", "hi"))

	raw, err := s.ListRange(ctx, "ircbot:memo:#test:bob")
	mustNoErr(t, err)
	if want := []string{"hi"}; !reflect.DeepEqual(raw, want) {
		t.Fatalf("raw ListRange() = %#v, want %#v", raw, want)
	}

	// Closing a view leaves the shared backend open.
	mustNoErr(t, memo.Close())
	if _, err := s.ListRange(ctx, "ircbot:memo:#test:bob"); err != nil {
		t.Fatalf("backend unusable after closing prefixed view: %v", err)
	}
}

func testConcurrentAppends(t *testing.T, s store.Store) {
	ctx := context.Background()
	const workers, perWorker = 8, 10

	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if err := s.ListAppend(ctx, "shared", fmt.Sprintf("%d-%d", w, i)); err != nil {
					errs <- err
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent ListAppend error = %v", err)
	}

	got, err := s.ListRange(ctx, "shared")
	mustNoErr(t, err)
	if len(got) != workers*perWorker {
		t.Fatalf("ListRange() has %d items, want %d", len(got), workers*perWorker)
	}
}

func mustNoErr(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
