package messages

import (
	"strconv"
	"sync"
	"testing"

	"github.com/reanhealth/botgateway/internal/messaging"
)

func textMsg(content string) *messaging.Message {
	return &messaging.Message{ContentType: messaging.ContentText, Content: content}
}

func TestCacheWindowIsBounded(t *testing.T) {
	t.Parallel()

	cache := NewCache(3)
	for i := 0; i < 5; i++ {
		cache.AddMessage("s1", textMsg(strconv.Itoa(i)))
	}

	window := cache.GetMessages("s1")
	if len(window) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(window))
	}
	if window[0].Content != "2" || window[2].Content != "4" {
		t.Errorf("expected oldest entries evicted, got %s..%s", window[0].Content, window[2].Content)
	}
}

func TestCacheSessionsAreIndependent(t *testing.T) {
	t.Parallel()

	cache := NewCache(10)
	cache.AddMessage("s1", textMsg("a"))
	cache.AddMessage("s2", textMsg("b"))

	if got := len(cache.GetMessages("s1")); got != 1 {
		t.Errorf("s1: expected 1 message, got %d", got)
	}
	cache.ClearCache("s1")
	if got := len(cache.GetMessages("s1")); got != 0 {
		t.Errorf("s1 after clear: expected 0 messages, got %d", got)
	}
	if got := len(cache.GetMessages("s2")); got != 1 {
		t.Errorf("s2: expected 1 message, got %d", got)
	}
	if cache.Sessions() != 1 {
		t.Errorf("expected 1 session, got %d", cache.Sessions())
	}
}

func TestCacheIgnoresEmptyKeys(t *testing.T) {
	t.Parallel()

	cache := NewCache(10)
	cache.AddMessage("", textMsg("a"))
	cache.AddMessage("s1", nil)
	if cache.Sessions() != 0 {
		t.Errorf("expected no sessions, got %d", cache.Sessions())
	}
}

func TestCacheConcurrentAccess(t *testing.T) {
	t.Parallel()

	cache := NewCache(20)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				cache.AddMessage("s"+strconv.Itoa(n%3), textMsg(strconv.Itoa(j)))
				cache.GetMessages("s" + strconv.Itoa(n%3))
			}
		}(i)
	}
	wg.Wait()

	for _, sid := range []string{"s0", "s1", "s2"} {
		if got := len(cache.GetMessages(sid)); got != 20 {
			t.Errorf("%s: expected full window of 20, got %d", sid, got)
		}
	}
}
