package api

import "testing"

func TestImageTag(t *testing.T) {
	tests := []struct {
		name    string
		repo    string
		jobID   int64
		want    string
		wantErr bool
	}{
		{
			name:  "valid slug",
			repo:  "apache/commons-lang",
			jobID: 123456789,
			want:  "apache-commons-lang-123456789",
		},
		{
			name:    "empty slug",
			repo:    "",
			jobID:   1,
			wantErr: true,
		},
		{
			name:    "no slash",
			repo:    "commons-lang",
			jobID:   1,
			wantErr: true,
		},
		{
			name:    "too many slashes",
			repo:    "a/b/c",
			jobID:   1,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ImageTag(tt.repo, tt.jobID)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ImageTag() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ImageTag() = %q, want %q", got, tt.want)
			}
		})
	}
}
