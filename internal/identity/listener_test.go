package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestListener_NewCallbackReplacesOld(t *testing.T) {
	var l Listener
	var first, second []AuthEvent

	l.Set(func(e AuthEvent, _ *Session) { first = append(first, e) })
	l.Set(func(e AuthEvent, _ *Session) { second = append(second, e) })
	l.Emit(EventSignedIn, nil)

	assert.Empty(t, first)
	assert.Equal(t, []AuthEvent{EventSignedIn}, second)
}

func TestListener_StaleUnsubscribeKeepsNewerCallback(t *testing.T) {
	var l Listener
	var got []AuthEvent

	unsubscribeOld := l.Set(func(AuthEvent, *Session) { t.Error("replaced callback called") })
	unsubscribeNew := l.Set(func(e AuthEvent, _ *Session) { got = append(got, e) })

	unsubscribeOld()
	l.Emit(EventTokenRefreshed, nil)
	assert.Equal(t, []AuthEvent{EventTokenRefreshed}, got)

	unsubscribeNew()
	l.Emit(EventSignedOut, nil)
	assert.Len(t, got, 1)
}

func TestListener_CallbackMayResubscribe(t *testing.T) {
	var l Listener
	calls := 0
	l.Set(func(AuthEvent, *Session) {
		calls++
		l.Set(func(AuthEvent, *Session) { calls += 10 })
	})

	l.Emit(EventSignedIn, nil)
	l.Emit(EventSignedIn, nil)

	assert.Equal(t, 11, calls)
}

func TestListener_EmitWithoutCallback(t *testing.T) {
	var l Listener
	assert.NotPanics(t, func() { l.Emit(EventSignedOut, nil) })
}
