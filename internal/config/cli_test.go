package config

import "testing"

func TestParseCLI_Defaults(t *testing.T) {
	opts, usage := ParseCLI(nil, "/etc/srcpd.conf")
	if usage {
		t.Fatal("expected no usage with empty args")
	}
	if opts.Foreground {
		t.Fatal("expected foreground=false by default")
	}
	if opts.ConfigFile != "/etc/srcpd.conf" {
		t.Fatalf("expected default config file, got %q", opts.ConfigFile)
	}
}

func TestParseCLI_ForegroundAndConfigFile(t *testing.T) {
	opts, usage := ParseCLI([]string{"-n", "-f", "/tmp/x.conf"}, "/etc/srcpd.conf")
	if usage {
		t.Fatal("unexpected usage")
	}
	if !opts.Foreground {
		t.Fatal("expected foreground=true")
	}
	if opts.ConfigFile != "/tmp/x.conf" {
		t.Fatalf("expected overridden config file, got %q", opts.ConfigFile)
	}
}

func TestParseCLI_UnknownFlagShowsUsageNotError(t *testing.T) {
	_, usage := ParseCLI([]string{"--bogus"}, "/etc/srcpd.conf")
	if !usage {
		t.Fatal("expected unknown flag to request usage, not fail")
	}
}

func TestParseCLI_QuestionMarkShowsUsage(t *testing.T) {
	_, usage := ParseCLI([]string{"-?"}, "/etc/srcpd.conf")
	if !usage {
		t.Fatal("expected -? to request usage")
	}
}

func TestParseCLI_DanglingDashF(t *testing.T) {
	_, usage := ParseCLI([]string{"-f"}, "/etc/srcpd.conf")
	if !usage {
		t.Fatal("expected dangling -f to request usage")
	}
}
