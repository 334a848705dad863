package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/relaykit/whatsapp-relay/internal/messaging"
)

type fakeGateway struct {
	mu         sync.Mutex
	sent       []string
	sendErr    error
	typingErr  error
	typedCalls int
}

func (g *fakeGateway) Send(_ context.Context, to, text string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sendErr != nil {
		return "", g.sendErr
	}
	g.sent = append(g.sent, text)
	return "wamid.test", nil
}

func (g *fakeGateway) MarkRead(context.Context, string) error { return nil }

func (g *fakeGateway) TypingIndicator(context.Context, string, int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.typedCalls++
	return g.typingErr
}

func newTestService(t *testing.T, gw messaging.Gateway) *Service {
	t.Helper()
	return NewService(ServiceConfig{
		Registry:       NewRegistry(),
		Pending:        NewPendingReplies(nil),
		Gateway:        gw,
		OperatorNumber: "+1 555-123-4567",
		DefaultTimeout: time.Minute,
	})
}

func TestSendMessageWithoutWait(t *testing.T) {
	gw := &fakeGateway{}
	svc := newTestService(t, gw)

	result, err := svc.SendMessage(context.Background(), "build finished", false, 0)
	require.NoError(t, err)
	require.Equal(t, "wamid.test", result.MessageID)
	require.False(t, result.Waited)
	require.Len(t, gw.sent, 1)

	history := svc.History(10)
	require.Len(t, history, 1)
	require.Equal(t, RoleAssistant, history[0].Role)
	require.Equal(t, "build finished", history[0].Text)
}

func TestSendMessageReusesConversation(t *testing.T) {
	svc := newTestService(t, &fakeGateway{})

	first, err := svc.SendMessage(context.Background(), "one", false, 0)
	require.NoError(t, err)
	second, err := svc.SendMessage(context.Background(), "two", false, 0)
	require.NoError(t, err)
	require.Equal(t, first.ConversationID, second.ConversationID)
	require.Len(t, svc.History(10), 2)
}

func TestSendMessagePropagatesSendFailure(t *testing.T) {
	gw := &fakeGateway{sendErr: errors.New("provider down")}
	svc := newTestService(t, gw)

	_, err := svc.SendMessage(context.Background(), "hello", false, 0)
	require.Error(t, err)
	require.Contains(t, err.Error(), "provider down")
	// Failed sends never reach history.
	require.Empty(t, svc.History(10))
}

func TestSendMessageSwallowsTypingFailure(t *testing.T) {
	gw := &fakeGateway{typingErr: errors.New("typing unavailable")}
	svc := newTestService(t, gw)

	_, err := svc.SendMessage(context.Background(), "hello", false, 0)
	require.NoError(t, err)
	require.Equal(t, 1, gw.typedCalls)
}

func TestSendMessageWaitResolvedByNormalizedReply(t *testing.T) {
	svc := newTestService(t, &fakeGateway{})

	type outcome struct {
		result *SendResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := svc.SendMessage(context.Background(), "deploy?", true, time.Minute)
		done <- outcome{result, err}
	}()

	// Wait for the registration to land, then resolve under the digits-only
	// key, as the webhook path does for an inbound "15551234567" sender.
	require.Eventually(t, func() bool {
		return svc.pending.Len() == 1
	}, time.Second, 5*time.Millisecond)
	require.True(t, svc.pending.Resolve(messaging.NormalizeKey("15551234567"), "yes, ship it"))

	select {
	case got := <-done:
		require.NoError(t, got.err)
		require.True(t, got.result.Waited)
		require.False(t, got.result.TimedOut)
		require.Equal(t, "yes, ship it", got.result.Reply)
	case <-time.After(2 * time.Second):
		t.Fatal("send never returned")
	}
}

func TestSendMessageWaitTimeoutIsSuccess(t *testing.T) {
	svc := newTestService(t, &fakeGateway{})

	result, err := svc.SendMessage(context.Background(), "anyone there?", true, 30*time.Millisecond)
	require.NoError(t, err)
	require.True(t, result.TimedOut)
	require.Empty(t, result.Reply)
}

func TestSendMessageZeroTimeoutUsesDefault(t *testing.T) {
	svc := NewService(ServiceConfig{
		Registry:       NewRegistry(),
		Pending:        NewPendingReplies(nil),
		Gateway:        &fakeGateway{},
		OperatorNumber: "+15551234567",
		DefaultTimeout: 40 * time.Millisecond,
	})

	start := time.Now()
	result, err := svc.SendMessage(context.Background(), "ping", true, 0)
	require.NoError(t, err)
	require.True(t, result.TimedOut)
	require.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestHistoryEmptyRegistry(t *testing.T) {
	svc := newTestService(t, &fakeGateway{})
	require.Empty(t, svc.History(20))
}

func TestConcurrentWaitsOnlyLatestResolves(t *testing.T) {
	svc := newTestService(t, &fakeGateway{})

	type outcome struct {
		result *SendResult
		err    error
	}
	firstDone := make(chan outcome, 1)
	go func() {
		r, err := svc.SendMessage(context.Background(), "first", true, 400*time.Millisecond)
		firstDone <- outcome{r, err}
	}()
	require.Eventually(t, func() bool { return svc.pending.Len() == 1 }, time.Second, 5*time.Millisecond)

	secondDone := make(chan outcome, 1)
	go func() {
		r, err := svc.SendMessage(context.Background(), "second", true, time.Minute)
		secondDone <- outcome{r, err}
	}()
	// The table always holds one occupant, so watch history for the second
	// send and give its registration a beat to replace the first.
	require.Eventually(t, func() bool {
		return len(svc.History(10)) == 2
	}, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	svc.pending.Resolve(messaging.NormalizeKey("+1 555-123-4567"), "answering the second")

	second := <-secondDone
	require.NoError(t, second.err)
	require.Equal(t, "answering the second", second.result.Reply)

	first := <-firstDone
	require.NoError(t, first.err)
	require.True(t, first.result.TimedOut, "displaced waiter must terminate via its own timeout")
}
