// Copyright 2026 The Tether Authors
// SPDX-License-Identifier: Apache-2.0

package docsync

import (
	"sync"
	"testing"
)

type sentMessage struct {
	Type    string
	Payload any
}

// fakeSender records sent messages for assertion and manual delivery
// to a peer engine. Delivery is never synchronous: the test drains the
// queue and hands messages over itself.
type fakeSender struct {
	mu       sync.Mutex
	messages []sentMessage
}

func (s *fakeSender) Send(messageType string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, sentMessage{Type: messageType, Payload: payload})
	return nil
}

// take drains and returns everything sent since the last call.
func (s *fakeSender) take() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	taken := s.messages
	s.messages = nil
	return taken
}

// takeOne asserts exactly one message of the wanted type was sent.
func (s *fakeSender) takeOne(t *testing.T, wantType string) sentMessage {
	t.Helper()
	messages := s.take()
	if len(messages) != 1 {
		t.Fatalf("sent %d messages, want exactly one %s: %+v", len(messages), wantType, messages)
	}
	if messages[0].Type != wantType {
		t.Fatalf("sent %s, want %s", messages[0].Type, wantType)
	}
	return messages[0]
}
