package xcdserver

import (
	"testing"

	"github.com/banksean/xcd/store"
)

func openTestStore(t *testing.T) (*store.Store, error) {
	t.Helper()
	return store.Open("file::memory:?cache=shared")
}
