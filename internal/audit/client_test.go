package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientPostsEntries(t *testing.T) {
	var (
		mu  sync.Mutex
		got []Entry
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/logs/create", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		var e Entry
		require.NoError(t, json.NewDecoder(r.Body).Decode(&e))
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := New(srv.URL+"/", 8, nil)
	c.Start(context.Background())
	c.Record(Entry{UserID: "u1", OrderID: "o1", Action: "cancel", Details: "customer request"})
	c.Record(Entry{UserID: "u1", OrderID: "o2", Action: "void"})
	c.Close()
	c.WaitClosed()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.Equal(t, "o1", got[0].OrderID)
	assert.Equal(t, "customer request", got[0].Details)
}

func TestClientSurvivesServerErrors(t *testing.T) {
	calls := make(chan struct{}, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls <- struct{}{}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, 8, nil)
	c.Start(context.Background())
	c.Record(Entry{OrderID: "o1", Action: "edit"})
	c.Record(Entry{OrderID: "o2", Action: "edit"})
	c.Close()
	c.WaitClosed()
	assert.Len(t, calls, 2)
}

func TestRecordNeverBlocks(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	c := New(srv.URL, 1, nil)
	c.Start(context.Background())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			c.Record(Entry{OrderID: "o", Action: "create"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked on a full queue")
	}
}

func TestRecordDuringAndAfterClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := New(srv.URL, 4, nil)
	c.Start(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Record(Entry{OrderID: "o", Action: "cancel"})
			}
		}()
	}
	c.Close()
	c.Close()
	wg.Wait()
	c.WaitClosed()

	assert.NotPanics(t, func() { c.Record(Entry{OrderID: "late", Action: "void"}) })
}
