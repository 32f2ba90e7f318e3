// Copyright 2026 The Tether Authors
// SPDX-License-Identifier: Apache-2.0

package docsync

import (
	"testing"

	"github.com/tether-collab/tether/lib/clock"
	"github.com/tether-collab/tether/wire"
	"github.com/tether-collab/tether/workspace"
)

func deliverToClient(t *testing.T, client *Client, messages []sentMessage) {
	t.Helper()
	for _, message := range messages {
		var err error
		switch message.Type {
		case wire.TypeEdit:
			err = client.HandleEdit(message.Payload.(wire.EditPayload))
		case wire.TypeEditAck:
			err = client.HandleEditAck(message.Payload.(wire.EditAckPayload))
		case wire.TypeFullSync:
			err = client.HandleFullSync(message.Payload.(wire.FullSyncPayload))
		default:
			t.Fatalf("unexpected host message %s", message.Type)
		}
		if err != nil {
			t.Fatalf("delivering %s to client: %v", message.Type, err)
		}
	}
}

func deliverToHost(t *testing.T, host *Host, messages []sentMessage) {
	t.Helper()
	for _, message := range messages {
		var err error
		switch message.Type {
		case wire.TypeEdit:
			err = host.HandleEdit(message.Payload.(wire.EditPayload))
		case wire.TypeOpen:
			err = host.HandleOpen(message.Payload.(wire.OpenPayload))
		default:
			t.Fatalf("unexpected client message %s", message.Type)
		}
		if err != nil {
			t.Fatalf("delivering %s to host: %v", message.Type, err)
		}
	}
}

// Both users edit the same document concurrently; once the message
// queues drain, both replicas hold the same text and agree on its
// version.
func TestHostAndClientConverge(t *testing.T) {
	t.Parallel()

	host, hostSender := newTestHost(t, map[string]string{"a.txt": "ABCD"})
	clk := clock.Fake(clientEpoch)
	clientSender := &fakeSender{}
	client := NewClient(workspace.NewMirror(), clk, nil)
	client.Attach(clientSender, true)

	snapshot, err := host.Open("a.txt")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := client.HandleFullSync(snapshot); err != nil {
		t.Fatalf("HandleFullSync: %v", err)
	}

	// Concurrently: the client replaces "CD" with "EF", the host
	// inserts "X" at offset 1.
	if err := client.LocalChange("a.txt", 2, 2, "EF"); err != nil {
		t.Fatalf("LocalChange: %v", err)
	}
	if _, err := host.LocalReplace("a.txt", 1, 0, "X"); err != nil {
		t.Fatalf("LocalReplace: %v", err)
	}

	// Host's edit reaches the client while its own batch is still in
	// the coalescing window.
	deliverToClient(t, client, hostSender.take())

	// The window closes; the client's transformed batch reaches the
	// host, which rebases nothing (the base is current) and acks.
	clk.Advance(DefaultCoalesceWindow)
	deliverToHost(t, host, clientSender.take())
	deliverToClient(t, client, hostSender.take())

	hostContent, hostVersion, _ := host.Content("a.txt")
	clientContent, clientVersion, _ := client.Document("a.txt")
	if hostContent != "AXEF" || clientContent != "AXEF" {
		t.Fatalf("host = %q, client = %q, want both AXEF", hostContent, clientContent)
	}
	if hostVersion != 2 || clientVersion != 2 {
		t.Fatalf("host version = %d, client version = %d", hostVersion, clientVersion)
	}
	state, _ := client.DocumentState("a.txt")
	if state != StateSynchronized {
		t.Fatalf("client state = %v", state)
	}
	if leftover := clientSender.take(); len(leftover) != 0 {
		t.Fatalf("client still has traffic queued: %+v", leftover)
	}
}
