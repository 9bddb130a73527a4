package notify

import (
	"context"
	"testing"
)

func TestDirectoryLookup(t *testing.T) {
	dir := NewDirectory(map[string]string{
		"user-1": "pastor@church.org",
	})

	tests := []struct {
		name    string
		userID  string
		want    string
		wantErr bool
	}{
		{"mapped user", "user-1", "pastor@church.org", false},
		{"id is an address", "admin@church.org", "admin@church.org", false},
		{"unknown opaque id", "user-2", "", true},
		{"empty id", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := dir.Lookup(context.Background(), tt.userID)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Lookup error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Lookup = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDirectoryNilMap(t *testing.T) {
	dir := NewDirectory(nil)
	if _, err := dir.Lookup(context.Background(), "user-1"); err == nil {
		t.Fatal("Lookup on empty directory accepted an opaque id")
	}
	got, err := dir.Lookup(context.Background(), "creator@church.org")
	if err != nil || got != "creator@church.org" {
		t.Fatalf("Lookup = %q, %v", got, err)
	}
}
