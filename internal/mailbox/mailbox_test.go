package mailbox

import "testing"

func TestSimMailboxReceiveAcknowledge(t *testing.T) {
	m := NewSimMailbox()
	m.Push(RunFinished{})

	msg, err := m.Receive()
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if _, ok := msg.(RunFinished); !ok {
		t.Fatalf("got %T, want RunFinished", msg)
	}

	// Receive again before ack must return the same pending message.
	msg2, _ := m.Receive()
	if msg2 != msg {
		t.Fatalf("expected the same pending message before acknowledge")
	}

	m.Acknowledge()
	msg3, _ := m.Receive()
	if msg3 != nil {
		t.Fatalf("expected nil after acknowledge with empty queue, got %v", msg3)
	}
}

func TestSimMailboxSendAcknowledged(t *testing.T) {
	m := NewSimMailbox()
	if err := m.Send(LoadReply{Success: true}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if m.Acknowledged() {
		t.Fatal("expected not acknowledged immediately after Send")
	}
	m.SimulateKernelConsume()
	if !m.Acknowledged() {
		t.Fatal("expected acknowledged after SimulateKernelConsume")
	}
}

func TestSimMailboxInvalidPointer(t *testing.T) {
	m := NewSimMailbox()
	m.Push(RunFinished{})
	m.ForceInvalidPointer()

	_, err := m.Receive()
	if err != ErrInvalidPointer {
		t.Fatalf("err = %v, want ErrInvalidPointer", err)
	}
}
