package cli

import (
	"strings"
	"testing"
)

func TestResolveBody(t *testing.T) {
	tests := []struct {
		name    string
		flag    string
		stdin   string
		piped   bool
		want    string
		wantErr bool
	}{
		{
			name: "flag value wins",
			flag: "from the flag",
			want: "from the flag",
		},
		{
			name:  "flag ignores piped input",
			flag:  "from the flag",
			stdin: "from the pipe",
			piped: true,
			want:  "from the flag",
		},
		{
			name:  "piped stdin joins lines",
			stdin: "first line\nsecond line\n",
			piped: true,
			want:  "first line\nsecond line",
		},
		{
			name:    "empty pipe is rejected",
			piped:   true,
			wantErr: true,
		},
		{
			name:    "no body at all is rejected",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveBody(tt.flag, strings.NewReader(tt.stdin), tt.piped)
			if tt.wantErr {
				if err == nil {
					t.Fatal("resolveBody succeeded, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("resolveBody: %v", err)
			}
			if got != tt.want {
				t.Errorf("resolveBody = %q, want %q", got, tt.want)
			}
		})
	}
}
