package cmd

import "testing"

func resetConfigVars() {
	baseDir = ""
	dbType = ""
	dbDSN = ""
	dbPath = ""
	crashLogDir = ""
}

func TestInitConfig_EnvFallbacks(t *testing.T) {
	resetConfigVars()
	t.Setenv("BOOTGUARD_CRASH_DIR", "/tmp/dumps")
	t.Setenv("BOOTGUARD_DB_PATH", "/tmp/bootguard-test.db")
	t.Setenv("BOOTGUARD_DB_DSN", "postgres://localhost/bootguard")

	initConfig()

	if crashLogDir != "/tmp/dumps" {
		t.Errorf("crashLogDir = %q, want /tmp/dumps", crashLogDir)
	}
	if dbPath != "/tmp/bootguard-test.db" {
		t.Errorf("dbPath = %q, want /tmp/bootguard-test.db", dbPath)
	}
	if dbDSN != "postgres://localhost/bootguard" {
		t.Errorf("dbDSN = %q, want postgres DSN", dbDSN)
	}
}

func TestInitConfig_Defaults(t *testing.T) {
	resetConfigVars()

	initConfig()

	if crashLogDir != "/var/crash" {
		t.Errorf("crashLogDir = %q, want /var/crash", crashLogDir)
	}
	if baseDir == "" {
		t.Error("baseDir was not defaulted")
	}
}
