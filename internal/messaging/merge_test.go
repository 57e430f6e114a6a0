package messaging

import (
	"testing"
	"time"

	"github.com/lemarcheluxe/backend/internal/models"
	"github.com/stretchr/testify/assert"
)

func msgAt(id string, sec int) *models.Message {
	return &models.Message{ID: id, CreatedAt: time.Date(2026, 3, 1, 10, 0, sec, 0, time.UTC)}
}

func ids(msgs []*models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestMergeMessagesDropsDuplicates(t *testing.T) {
	existing := []*models.Message{msgAt("a", 1), msgAt("b", 2)}
	merged := MergeMessages(existing, []*models.Message{msgAt("b", 2), msgAt("c", 3), msgAt("c", 3), nil})

	assert.Equal(t, []string{"a", "b", "c"}, ids(merged))
	assert.Len(t, existing, 2)
}

func TestMergeMessagesKeepsAscendingOrder(t *testing.T) {
	merged := MergeMessages([]*models.Message{msgAt("a", 1), msgAt("c", 5)}, []*models.Message{msgAt("b", 3)})
	assert.Equal(t, []string{"a", "b", "c"}, ids(merged))
}

func TestMergeMessagesEmpty(t *testing.T) {
	assert.Empty(t, MergeMessages(nil, nil))
	assert.Equal(t, []string{"x"}, ids(MergeMessages(nil, []*models.Message{msgAt("x", 0)})))
}

func TestApplyRead(t *testing.T) {
	msgs := []*models.Message{msgAt("a", 1), msgAt("b", 2)}
	assert.True(t, ApplyRead(msgs, "b"))
	assert.True(t, msgs[1].Read)
	assert.False(t, msgs[0].Read)
	assert.False(t, ApplyRead(msgs, "zzz"))
}
