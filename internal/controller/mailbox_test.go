package controller

import (
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailbox_OrderPerKey(t *testing.T) {
	log, _ := test.NewNullLogger()
	m := NewMailbox(log)

	var mu sync.Mutex
	got := map[string][]int{}
	for i := 0; i < 50; i++ {
		for _, key := range []string{"a", "b"} {
			key, i := key, i
			m.Submit(key, func() {
				mu.Lock()
				got[key] = append(got[key], i)
				mu.Unlock()
			})
		}
	}
	m.Wait()

	for _, key := range []string{"a", "b"} {
		require.Len(t, got[key], 50)
		for i, v := range got[key] {
			assert.Equal(t, i, v, "lane %s out of order", key)
		}
	}
}

func TestMailbox_RecoversPanic(t *testing.T) {
	log, hook := test.NewNullLogger()
	m := NewMailbox(log)

	ran := false
	m.Submit("a", func() { panic("boom") })
	m.Submit("a", func() { ran = true })
	m.Wait()

	assert.True(t, ran, "lane should keep draining after a panic")
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}
