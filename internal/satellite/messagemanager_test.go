package satellite

import "testing"

func TestMessageManagerInboundAssemblyS4(t *testing.T) {
	m := newMessageManager()
	m.HandleIncoming(false, []byte{2, 9, 'A', 'A', 'A'})
	m.HandleIncoming(true, []byte{'B', 'B', 'B'})

	msg, ok := m.PopIncoming()
	if !ok {
		t.Fatal("expected an assembled message")
	}
	if msg.TagCount != 2 || msg.Tag != 9 {
		t.Fatalf("msg = %+v, want TagCount=2 Tag=9", msg)
	}
	if string(msg.Data) != "AAABBB" {
		t.Fatalf("msg.Data = %q, want AAABBB", msg.Data)
	}

	if _, ok := m.PopIncoming(); ok {
		t.Fatal("expected queue to be drained")
	}
}

func TestMessageManagerOutboundHandshakeS6(t *testing.T) {
	m := newMessageManager()
	m.AcceptOutgoing(1, 5, []byte{0xAA, 0xBB})

	if m.OutState() != MessageReady {
		t.Fatalf("state = %v, want MessageReady", m.OutState())
	}

	if !m.IsOutgoingReady() {
		t.Fatal("expected IsOutgoingReady to report true")
	}
	if m.OutState() != MessageBeingSent {
		t.Fatalf("state = %v, want MessageBeingSent", m.OutState())
	}

	buf := make([]byte, 1)
	var last bool
	for !last {
		slice := m.GetOutgoingSlice(buf, 1)
		last = slice.Last
		if !last {
			if !m.AckSlice(nil) {
				t.Fatal("expected AckSlice to return true while BeingSent")
			}
		}
	}
	if m.OutState() != MessageSent {
		t.Fatalf("state = %v, want MessageSent", m.OutState())
	}

	if m.AckSlice(nil) {
		t.Fatal("expected final AckSlice (Sent) to return false")
	}
	if m.OutState() != MessageAcknowledged {
		t.Fatalf("state = %v, want MessageAcknowledged", m.OutState())
	}

	if !m.WasMessageAcknowledged() {
		t.Fatal("expected WasMessageAcknowledged to report true")
	}
	if m.OutState() != NoMessage {
		t.Fatalf("state = %v, want NoMessage", m.OutState())
	}
	if m.WasMessageAcknowledged() {
		t.Fatal("expected second call to report false")
	}
}

func TestMessageManagerUnsolicitedAck(t *testing.T) {
	m := newMessageManager()
	if m.AckSlice(nil) {
		t.Fatal("expected unsolicited ack on NoMessage to return false")
	}
}
