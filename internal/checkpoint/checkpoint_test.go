package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/salescope/salescope/internal/conversation"
)

func TestMemoryStoreLoadMissingThread(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Load(context.Background(), "no-such-thread"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load() error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	state := conversation.State{
		Messages: []conversation.Message{
			{Role: conversation.RoleUser, Content: "강남 매출"},
			{Role: conversation.RoleAssistant, Content: "### 분석 보고서"},
		},
		OriginalQuery: "강남 매출",
		SQLQuery:      "SELECT 1",
	}
	if err := store.Save(context.Background(), "thread-1", state); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := store.Load(context.Background(), "thread-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(loaded.Messages) != 2 || loaded.SQLQuery != "SELECT 1" {
		t.Fatalf("loaded = %+v", loaded)
	}
}

func TestMemoryStoreCopiesHistory(t *testing.T) {
	store := NewMemoryStore()
	state := conversation.State{Messages: []conversation.Message{{Role: conversation.RoleUser, Content: "q"}}}
	if err := store.Save(context.Background(), "thread-1", state); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := store.Load(context.Background(), "thread-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	loaded.Messages[0].Content = "mutated"

	reloaded, err := store.Load(context.Background(), "thread-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if reloaded.Messages[0].Content != "q" {
		t.Fatal("stored history mutated through loaded copy")
	}
}

func TestMemoryStoreConcurrentThreads(t *testing.T) {
	store := NewMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			threadID := fmt.Sprintf("thread-%d", n)
			state := conversation.State{OriginalQuery: threadID}
			_ = store.Save(context.Background(), threadID, state)
			if loaded, err := store.Load(context.Background(), threadID); err != nil || loaded.OriginalQuery != threadID {
				t.Errorf("thread %q: loaded = %+v, err = %v", threadID, loaded, err)
			}
		}(i)
	}
	wg.Wait()
}
