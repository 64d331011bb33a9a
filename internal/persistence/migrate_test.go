package persistence

import "testing"

func TestParseMigrationName(t *testing.T) {
	tests := []struct {
		name            string
		file            string
		wantVersion     int
		wantDescription string
		wantOK          bool
	}{
		{"standard", "001_initial_schema.sql", 1, "initial schema", true},
		{"multiword", "012_add_event_tables.sql", 12, "add event tables", true},
		{"no version", "notes.sql", 0, "", false},
		{"non-numeric version", "abc_thing.sql", 0, "", false},
	}
	for _, tt := range tests {
		version, description, ok := parseMigrationName(tt.file)
		if ok != tt.wantOK || version != tt.wantVersion || description != tt.wantDescription {
			t.Errorf("%s: parseMigrationName(%q) = (%d, %q, %v), want (%d, %q, %v)",
				tt.name, tt.file, version, description, ok,
				tt.wantVersion, tt.wantDescription, tt.wantOK)
		}
	}
}

func TestPendingMigrations(t *testing.T) {
	available := []Migration{{Version: 1}, {Version: 2}, {Version: 3}}

	pending := pendingMigrations(available, []int{1, 3})
	if len(pending) != 1 || pending[0].Version != 2 {
		t.Errorf("pending = %v, want just version 2", pending)
	}

	if got := pendingMigrations(available, []int{1, 2, 3}); len(got) != 0 {
		t.Errorf("fully applied set still pending: %v", got)
	}
}
