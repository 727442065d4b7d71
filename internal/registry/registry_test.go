package registry

import "testing"

func TestAddSubkernel(t *testing.T) {
	r := New()
	r.Add(7, 2, []byte("B"))

	e, ok := r.Get(7)
	if !ok {
		t.Fatal("expected entry to exist")
	}
	if e.Destination != 2 || string(e.Image) != "B" || e.State != StateNotLoaded {
		t.Fatalf("got %+v, want {dest:2 image:B state:NotLoaded}", e)
	}
}

func TestHappyPathS1(t *testing.T) {
	r := New()
	r.Add(7, 2, []byte("B"))

	if _, _, err := r.BeginUpload(7); err != nil {
		t.Fatalf("BeginUpload: %v", err)
	}
	r.CompleteUpload(7)
	if e, _ := r.Get(7); e.State != StateUploaded {
		t.Fatalf("state after upload = %v, want Uploaded", e.State)
	}

	if _, err := r.BeginLoad(7); err != nil {
		t.Fatalf("BeginLoad: %v", err)
	}
	r.CompleteLoad(7, true)
	if e, _ := r.Get(7); e.State != StateRunning {
		t.Fatalf("state after load(run=true) = %v, want Running", e.State)
	}

	r.SubkernelFinished(7, false)
	if e, _ := r.Get(7); e.State != StateFinishedOk {
		t.Fatalf("state after finished = %v, want Finished{Ok}", e.State)
	}

	needExc, commLost, err := r.BeginRetrieveFinishStatus(7)
	if err != nil {
		t.Fatalf("BeginRetrieveFinishStatus: %v", err)
	}
	if needExc || commLost {
		t.Fatalf("needExc=%v commLost=%v, want false,false", needExc, commLost)
	}
	r.CompleteRetrieveFinishStatus(7)
	if e, _ := r.Get(7); e.State != StateUploaded {
		t.Fatalf("state after retrieve = %v, want Uploaded", e.State)
	}
}

func TestRetrieveFinishStatusTwiceIsIncorrectState(t *testing.T) {
	r := New()
	r.Add(7, 2, nil)
	r.CompleteUpload(7)
	r.CompleteLoad(7, true)
	r.SubkernelFinished(7, true)

	needExc, _, err := r.BeginRetrieveFinishStatus(7)
	if err != nil || !needExc {
		t.Fatalf("first retrieve: needExc=%v err=%v", needExc, err)
	}
	r.CompleteRetrieveFinishStatus(7)

	if _, _, err := r.BeginRetrieveFinishStatus(7); err != ErrIncorrectState {
		t.Fatalf("second retrieve err = %v, want ErrIncorrectState", err)
	}
}

func TestDestinationDownClearsRunning(t *testing.T) {
	r := New()
	r.Add(7, 2, nil)
	r.CompleteUpload(7)
	r.CompleteLoad(7, true)

	r.ApplyDestinationDown(2)

	e, _ := r.Get(7)
	if e.State != StateFinishedCommLost {
		t.Fatalf("state = %v, want Finished{CommLost}", e.State)
	}
}

func TestDestinationDownClearsNonRunningToNotLoaded(t *testing.T) {
	r := New()
	r.Add(7, 2, nil)
	r.CompleteUpload(7)

	r.ApplyDestinationDown(2)

	e, _ := r.Get(7)
	if e.State != StateNotLoaded {
		t.Fatalf("state = %v, want NotLoaded", e.State)
	}
}

func TestClearWipesMessageQueue(t *testing.T) {
	r := New()
	r.Add(7, 2, nil)
	r.MessageHandleIncoming(7, true, []byte{2, 9, 'A'}, nil)

	if _, ok := r.MessageAwaitPoll(7); !ok {
		t.Fatal("expected a queued message before clear")
	}
	r.MessageHandleIncoming(7, true, []byte{2, 9, 'A'}, nil)
	r.Clear()

	if _, found := r.State(7); found {
		t.Fatal("expected entry to be gone after Clear")
	}
	if _, ok := r.MessageAwaitPoll(7); ok {
		t.Fatal("expected message queue to be empty after Clear")
	}
}

func TestMessageAssemblyS4(t *testing.T) {
	r := New()
	r.Add(7, 2, nil)

	frame1 := []byte{2, 9, 'A', 'A', 'A'}
	frame2 := []byte{'B', 'B', 'B'}

	r.MessageHandleIncoming(7, false, frame1, nil)
	r.MessageHandleIncoming(7, true, frame2, nil)

	msg, ok := r.MessageAwaitPoll(7)
	if !ok {
		t.Fatal("expected an assembled message")
	}
	if msg.FromID != 7 || msg.TagCount != 2 || msg.Tag != 9 {
		t.Fatalf("header = %+v, want {from:7 count:2 tag:9}", msg)
	}
	if string(msg.Data) != "AAABBB" {
		t.Fatalf("data = %q, want AAABBB", msg.Data)
	}
}

func TestMessageHandleIncomingDropsForUnknownID(t *testing.T) {
	r := New()
	r.MessageHandleIncoming(99, true, []byte{1, 1, 'x'}, nil)
	if _, ok := r.MessageAwaitPoll(99); ok {
		t.Fatal("expected message for unknown id to be dropped")
	}
}

func TestSubkernelFinishedIgnoresUnknownID(t *testing.T) {
	r := New()
	r.SubkernelFinished(404, true) // must not panic
}

func TestLoadRequiresUploaded(t *testing.T) {
	r := New()
	r.Add(7, 2, nil)
	if _, err := r.BeginLoad(7); err != ErrIncorrectState {
		t.Fatalf("BeginLoad from NotLoaded = %v, want ErrIncorrectState", err)
	}
}

func TestTryObserveNonBlocking(t *testing.T) {
	r := New()
	r.Add(7, 2, nil)

	state, found, locked := r.TryObserve(7)
	if !locked || !found || state != StateNotLoaded {
		t.Fatalf("TryObserve = (%v,%v,%v), want (NotLoaded,true,true)", state, found, locked)
	}
}
