package redisstore

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"sphexbot/internal/store"
	"sphexbot/internal/store/storetest"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		server := miniredis.RunT(t)
		s, err := New(context.Background(), Config{Addr: server.Addr()})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		return s
	})
}

func TestNewFailsWithoutServer(t *testing.T) {
	server := miniredis.RunT(t)
	addr := server.Addr()
	server.Close()

	if _, err := New(context.Background(), Config{Addr: addr}); err == nil {
		t.Fatal("expected connect error")
	}
}

func TestErrorsAreWrapped(t *testing.T) {
	server := miniredis.RunT(t)
	s := NewFromClient(redis.NewClient(&redis.Options{Addr: server.Addr()}))
	defer s.Close()

	server.SetError("boom")
	err := s.ListAppend(context.Background(), "k", "v")
	if !store.IsPersistence(err) {
		t.Fatalf("error = %v, want store error", err)
	}
	var storeErr *store.Error
	if !errors.As(err, &storeErr) || storeErr.Op != "rpush" || storeErr.Key != "k" {
		t.Fatalf("unexpected store error %#v", storeErr)
	}
}
