package approval

import (
	"errors"
	"testing"
)

func TestEveryActionRequiresPending(t *testing.T) {
	actions := []Action{ActionApprove, ActionReject, ActionRecall, ActionEdit}
	for _, action := range actions {
		if err := Check(StatusPending, action); err != nil {
			t.Fatalf("Check(PENDING, %s) = %v, want nil", action, err)
		}
		for _, terminal := range []string{StatusApproved, StatusRejected, StatusRecalled} {
			err := Check(terminal, action)
			if !errors.Is(err, ErrTerminal) {
				t.Fatalf("Check(%s, %s) = %v, want ErrTerminal", terminal, action, err)
			}
		}
	}
}

func TestCheckRejectsUnknownStatus(t *testing.T) {
	err := Check("DRAFT", ActionApprove)
	if err == nil {
		t.Fatal("Check(DRAFT, approve) = nil, want error")
	}
	if errors.Is(err, ErrTerminal) {
		t.Fatal("unknown status must not be reported as terminal")
	}
}

func TestNext(t *testing.T) {
	cases := map[Action]string{
		ActionApprove: StatusApproved,
		ActionReject:  StatusRejected,
		ActionRecall:  StatusRecalled,
		ActionEdit:    StatusPending,
	}
	for action, want := range cases {
		if got := Next(action); got != want {
			t.Fatalf("Next(%s) = %s, want %s", action, got, want)
		}
	}
}
