package detect

import "testing"

func TestScan_CompleteCaseInsensitive(t *testing.T) {
	tests := []string{
		"<promise>ALL TESTS PASS</promise>",
		"<promise>all tests pass</promise>",
		"<promise>All Tests Pass</promise>",
		"<PROMISE>all tests pass</PROMISE>",
		"work is finished.\n\n<promise>  ALL TESTS PASS  </promise>\n",
		"<promise>\nALL TESTS PASS\n</promise>",
	}

	for _, input := range tests {
		if got := Scan(input, "ALL TESTS PASS"); got != Complete {
			t.Errorf("Scan(%q) = %v, want Complete", input, got)
		}
	}
}

func TestScan_NoDelimitersIsNone(t *testing.T) {
	tests := []string{
		"ALL TESTS PASS",
		"I promise: ALL TESTS PASS",
		"<promise>ALL TESTS PASS",
		"ALL TESTS PASS</promise>",
		"the promise is ALL TESTS PASS, emitted when done",
	}

	for _, input := range tests {
		if got := Scan(input, "ALL TESTS PASS"); got != None {
			t.Errorf("Scan(%q) = %v, want None", input, got)
		}
	}
}

func TestScan_WrongTokenIsNone(t *testing.T) {
	if got := Scan("<promise>SOME OTHER TEXT</promise>", "ALL TESTS PASS"); got != None {
		t.Errorf("Scan = %v, want None", got)
	}
}

func TestScan_Blocked(t *testing.T) {
	tests := []string{
		"<promise>LOOP STUCK</promise>",
		"<promise>loop stuck</promise>",
		"I cannot make progress.\n<promise> LOOP STUCK </promise>",
	}

	for _, input := range tests {
		if got := Scan(input, "ALL TESTS PASS"); got != Blocked {
			t.Errorf("Scan(%q) = %v, want Blocked", input, got)
		}
	}
}

func TestScan_BlockedTakesPriority(t *testing.T) {
	input := "<promise>ALL TESTS PASS</promise>\n<promise>LOOP STUCK</promise>"
	if got := Scan(input, "ALL TESTS PASS"); got != Blocked {
		t.Errorf("Scan = %v, want Blocked", got)
	}

	// Order must not matter.
	input = "<promise>LOOP STUCK</promise>\n<promise>ALL TESTS PASS</promise>"
	if got := Scan(input, "ALL TESTS PASS"); got != Blocked {
		t.Errorf("Scan = %v, want Blocked", got)
	}
}

func TestScan_EmptyText(t *testing.T) {
	if got := Scan("", "ALL TESTS PASS"); got != None {
		t.Errorf("Scan = %v, want None", got)
	}
}

func TestScan_EmptyPromiseNeverCompletes(t *testing.T) {
	if got := Scan("<promise></promise>", ""); got != None {
		t.Errorf("Scan = %v, want None", got)
	}
}

func TestScan_BlockedWhenPromiseIsBlockedToken(t *testing.T) {
	// Even a pathological configuration cannot turn the abort token into a
	// completion.
	if got := Scan("<promise>LOOP STUCK</promise>", "LOOP STUCK"); got != Blocked {
		t.Errorf("Scan = %v, want Blocked", got)
	}
}
