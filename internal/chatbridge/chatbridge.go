// Package chatbridge defines the façade ralph talks to when a human
// reviewer is reachable through a chat system. The chat system itself
// (command parsing, Markdown rendering, webhook delivery) is an external
// system and out of scope; this package sketches only the boundary ralph's
// Pipeline and Approval Oracle need.
package chatbridge

import (
	"context"
	"fmt"

	"github.com/forgecrew/ralph/internal/approval"
)

// ChatBridge is the outbound side of a chat integration: status updates
// and approval requests routed to a single pre-authorised chat id.
type ChatBridge interface {
	SendStatus(text string) error
	SendApprovalRequest(stage, task string) (requestID string, err error)
	OnApprovalResponse(requestID string, approved bool)
}

// NullBridge is used when chat is disabled; every call is a no-op. It
// deliberately does not implement approval.Bridge: an Oracle built with a
// nil Bridge auto-approves without ever calling RequestApproval, whereas a
// non-nil Bridge is expected to eventually call Resolve. A NullBridge
// handed to an Oracle would hang forever waiting for a Resolve that never
// comes, so callers pass nil, not NullBridge{}, to approval.New when chat
// is disabled.
type NullBridge struct{}

func (NullBridge) SendStatus(text string) error { return nil }

func (NullBridge) SendApprovalRequest(stage, task string) (string, error) {
	return "", nil
}

func (NullBridge) OnApprovalResponse(requestID string, approved bool) {}

// PollBridge would poll a configured webhook for inbound chat commands and
// approval decisions. SendApprovalRequest and SendStatus are stubbed to
// return an error until the webhook transport is implemented; the point of
// this type today is the RequestApproval adapter that lets a PollBridge
// satisfy approval.Bridge once that transport exists.
type PollBridge struct {
	WebhookURL string
	ChatID     string

	oracle *approval.Oracle
}

// NewPollBridge returns a PollBridge targeting webhookURL, honouring only
// chatID per spec.
func NewPollBridge(webhookURL, chatID string) *PollBridge {
	return &PollBridge{WebhookURL: webhookURL, ChatID: chatID}
}

// BindOracle lets the PollBridge deliver inbound approval decisions back to
// the Oracle that is waiting on them, resolving the construction-order
// cycle between approval.New(bridge) and the bridge needing an Oracle.
func (b *PollBridge) BindOracle(o *approval.Oracle) {
	b.oracle = o
}

func (b *PollBridge) SendStatus(text string) error {
	return fmt.Errorf("chatbridge: webhook transport not configured")
}

func (b *PollBridge) SendApprovalRequest(stage, task string) (string, error) {
	return "", fmt.Errorf("chatbridge: webhook transport not configured")
}

// OnApprovalResponse is called by the inbound webhook handler once a human
// clicks approve/reject; it forwards the decision to the bound Oracle.
func (b *PollBridge) OnApprovalResponse(requestID string, approved bool) {
	if b.oracle != nil {
		b.oracle.Resolve(approved)
	}
}

// RequestApproval satisfies approval.Bridge, letting a PollBridge be handed
// to approval.New directly.
func (b *PollBridge) RequestApproval(ctx context.Context, stage, task string) error {
	_, err := b.SendApprovalRequest(stage, task)
	return err
}
