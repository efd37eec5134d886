package chatbridge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/forgecrew/ralph/internal/approval"
)

func TestNullBridgeIsAllNoOps(t *testing.T) {
	var b ChatBridge = NullBridge{}
	assert.NoError(t, b.SendStatus("hello"))

	id, err := b.SendApprovalRequest("run_developer", "task")
	assert.NoError(t, err)
	assert.Equal(t, "", id)

	assert.NotPanics(t, func() { b.OnApprovalResponse("whatever", true) })
}

func TestPollBridgeSatisfiesApprovalBridge(t *testing.T) {
	var _ approval.Bridge = &PollBridge{}
}

func TestPollBridgeAskFailsUntilWebhookTransportExists(t *testing.T) {
	b := NewPollBridge("http://example.invalid/webhook", "123")
	oracle := approval.New(b)
	b.BindOracle(oracle)

	approved, err := oracle.Ask(context.Background(), "run_developer", "task")
	assert.Error(t, err)
	assert.False(t, approved)

	// Nothing was left pending, so a late inbound response is a no-op.
	assert.NotPanics(t, func() { b.OnApprovalResponse("req-1", true) })
}
