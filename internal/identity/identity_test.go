package identity

import (
	"errors"
	"net/http/httptest"
	"testing"
)

func TestHeaderProvider(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		value    string
		wantID   string
		wantErr  error
		provider *HeaderProvider
	}{
		{
			name:     "default header",
			header:   DefaultHeader,
			value:    "alice",
			wantID:   "alice",
			provider: NewHeaderProvider(""),
		},
		{
			name:     "custom header",
			header:   "X-Forwarded-User",
			value:    "bob",
			wantID:   "bob",
			provider: NewHeaderProvider("X-Forwarded-User"),
		},
		{
			name:     "value is trimmed",
			header:   DefaultHeader,
			value:    "  alice \t",
			wantID:   "alice",
			provider: NewHeaderProvider(""),
		},
		{
			name:     "missing header",
			header:   "",
			value:    "",
			wantErr:  ErrNoIdentity,
			provider: NewHeaderProvider(""),
		},
		{
			name:     "whitespace only",
			header:   DefaultHeader,
			value:    "   ",
			wantErr:  ErrNoIdentity,
			provider: NewHeaderProvider(""),
		},
		{
			name:     "wrong header set",
			header:   "X-Forwarded-User",
			value:    "alice",
			wantErr:  ErrNoIdentity,
			provider: NewHeaderProvider(""),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				r.Header.Set(tt.header, tt.value)
			}
			id, err := tt.provider.UserID(r)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("UserID: %v", err)
			}
			if id != tt.wantID {
				t.Errorf("expected %q, got %q", tt.wantID, id)
			}
		})
	}
}
