package srcp

import "testing"

func TestParse_Roundtrip(t *testing.T) {
	cases := []string{
		"SET 1 POWER ON",
		"INIT 1 GL 3 M 2 14 5",
		"SET 1 GL 3 1 7 14 1 0 0 0 0",
		"INIT 2 GA 5 N 1",
		"VERIFY 1 SM 3 CV 1 5",
	}
	for _, line := range cases {
		cmd, errEv := Parse(line)
		if errEv != nil {
			t.Fatalf("Parse(%q) returned error event: %+v", line, errEv)
		}
		if got := Serialize(cmd); got != line {
			t.Errorf("Serialize(Parse(%q)) = %q, want %q", line, got, line)
		}
	}
}

func TestParse_LowerCaseNormalizes(t *testing.T) {
	cmd, errEv := Parse("set 1 power on")
	if errEv != nil {
		t.Fatalf("unexpected error event: %+v", errEv)
	}
	if cmd.Verb != VerbSet || cmd.Device != KindPower {
		t.Fatalf("expected SET/POWER, got %v/%v", cmd.Verb, cmd.Device)
	}
}

func TestParse_UnknownVerb(t *testing.T) {
	_, errEv := Parse("FROB 1 POWER ON")
	if errEv == nil || errEv.Code != CodeUnknownCommand {
		t.Fatalf("expected unknown-command error, got %+v", errEv)
	}
}

func TestParse_TooShort(t *testing.T) {
	_, errEv := Parse("GET 1")
	if errEv == nil || errEv.Code != CodeListTooShort {
		t.Fatalf("expected list-too-short error, got %+v", errEv)
	}
}

func TestParse_BadBusNumber(t *testing.T) {
	_, errEv := Parse("GET x POWER")
	if errEv == nil || errEv.Code != CodeWrongValue {
		t.Fatalf("expected wrong-value error, got %+v", errEv)
	}
}

func TestParse_UnknownDevice(t *testing.T) {
	_, errEv := Parse("GET 1 FROBNICATOR")
	if errEv == nil || errEv.Code != CodeUnsupportedDevice {
		t.Fatalf("expected unsupported-device error, got %+v", errEv)
	}
}

func TestParse_QuotedSubstring(t *testing.T) {
	cmd, errEv := Parse(`INIT 1 GL 9 M 2 14 0 "Big Boy"`)
	if errEv != nil {
		t.Fatalf("unexpected error event: %+v", errEv)
	}
	if len(cmd.Params) == 0 || cmd.Params[len(cmd.Params)-1] != "Big Boy" {
		t.Fatalf("expected quoted substring preserved as one token, got %v", cmd.Params)
	}
}

func TestEvent_RenderInfoAndError(t *testing.T) {
	ev := InfoAddr(1, KindGL, 3, "1", "7", "14", "1")
	if got, want := ev.Render(), "100 INFO 1 GL 3 1 7 14 1"; got != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}

	power := Info(1, KindPower, "ON")
	if got, want := power.Render(), "100 INFO 1 POWER ON"; got != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}

	if got, want := errWrongValue.Render(), "412 ERROR wrong value"; got != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}
}
