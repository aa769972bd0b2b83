package backup

import "testing"

func TestParseS3URI(t *testing.T) {
	cases := []struct {
		uri        string
		wantBucket string
		wantPrefix string
		wantErr    bool
	}{
		{"s3://my-bucket", "my-bucket", "", false},
		{"s3://my-bucket/", "my-bucket", "", false},
		{"s3://my-bucket/neb/backups", "my-bucket", "neb/backups", false},
		{"s3://my-bucket/neb/backups/", "my-bucket", "neb/backups", false},
		{"/local/dir", "", "", true},
		{"s3://", "", "", true},
	}
	for _, c := range cases {
		bucket, prefix, err := parseS3URI(c.uri)
		if c.wantErr {
			if err == nil {
				t.Errorf("parseS3URI(%q): expected error, got none", c.uri)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseS3URI(%q): unexpected error: %v", c.uri, err)
		}
		if bucket != c.wantBucket || prefix != c.wantPrefix {
			t.Errorf("parseS3URI(%q) = (%q, %q), want (%q, %q)", c.uri, bucket, prefix, c.wantBucket, c.wantPrefix)
		}
	}
}

func TestS3ArchiverKey(t *testing.T) {
	a := &S3Archiver{bucket: "b", prefix: ""}
	if got, want := a.key(3, 7), "chunk-3/7.seg.snappy"; got != want {
		t.Errorf("key() = %q, want %q", got, want)
	}

	a.prefix = "neb/backups"
	if got, want := a.key(3, 7), "neb/backups/chunk-3/7.seg.snappy"; got != want {
		t.Errorf("key() with prefix = %q, want %q", got, want)
	}
}
