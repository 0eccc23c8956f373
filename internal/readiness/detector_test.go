package readiness

import "testing"

func TestScanMarkers(t *testing.T) {
	d := New()

	tests := []struct {
		name       string
		chunk      string
		wantReady  bool
		wantMarker string
	}{
		{"building", "building...", false, ""},
		{"compiled", "webpack compiled successfully in 812 ms", true, "compiled successfully"},
		{"case sensitive", "Compiled Successfully", false, ""},
		{"listening", "server listening on port 3000", true, "listening on"},
		{"vite banner", "  \x1b[32m➜\x1b[39m  \x1b[1mLocal\x1b[22m:   http://localhost:5173/", true, "Local:"},
		{"first marker wins", "ready - compiled successfully", true, "ready"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := d.Scan(tt.chunk)
			if res.Ready != tt.wantReady {
				t.Errorf("Ready = %v, want %v", res.Ready, tt.wantReady)
			}
			if res.Marker != tt.wantMarker {
				t.Errorf("Marker = %q, want %q", res.Marker, tt.wantMarker)
			}
		})
	}
}

func TestScanStripsEscapes(t *testing.T) {
	d := New("Local:")
	res := d.Scan("  \x1b[1mLocal:\x1b[22m   http://localhost:\x1b[1m5173\x1b[22m/")
	if !res.Ready {
		t.Error("expected marker to match after stripping escapes")
	}
	if res.URL != "http://localhost:5173/" {
		t.Errorf("URL = %q", res.URL)
	}
}

func TestScanURL(t *testing.T) {
	d := New()

	tests := []struct {
		chunk string
		want  string
	}{
		{"http://localhost:4321/", "http://localhost:4321/"},
		{"open https://127.0.0.1:8443 in a browser", "https://127.0.0.1:8443"},
		{"on http://[::1]:3000/ now", "http://[::1]:3000/"},
		{"no port http://localhost/", ""},
		{"nothing here", ""},
	}
	for _, tt := range tests {
		if got := d.Scan(tt.chunk).URL; got != tt.want {
			t.Errorf("Scan(%q).URL = %q, want %q", tt.chunk, got, tt.want)
		}
	}
}

func TestCustomMarkers(t *testing.T) {
	d := New("", "Server started")
	if got := d.Markers(); len(got) != 1 || got[0] != "Server started" {
		t.Fatalf("Markers() = %v", got)
	}
	if d.Scan("ready").Ready {
		t.Error("default markers should not apply when custom markers are given")
	}
	if !d.Scan("Server started in 3s").Ready {
		t.Error("custom marker not matched")
	}
}

func TestLatchSequence(t *testing.T) {
	l := NewLatch(New())

	chunks := []string{"building...", "compiled successfully", "http://localhost:4321/", "moved to http://localhost:9999/", "rebuilding..."}

	type step struct {
		ready bool
		url   string
	}
	want := []step{
		{false, ""},
		{true, ""},
		{true, "http://localhost:4321/"},
		{true, "http://localhost:4321/"},
		{true, "http://localhost:4321/"},
	}

	for i, chunk := range chunks {
		l.Feed(chunk)
		if l.Ready() != want[i].ready {
			t.Errorf("chunk %d: Ready = %v, want %v", i+1, l.Ready(), want[i].ready)
		}
		if l.URL() != want[i].url {
			t.Errorf("chunk %d: URL = %q, want %q", i+1, l.URL(), want[i].url)
		}
	}
}

func TestLatchReportsTransitionsOnce(t *testing.T) {
	l := NewLatch(New())

	ready, found := l.Feed("ready on http://localhost:3000/")
	if !ready || !found {
		t.Fatalf("first feed = (%v, %v), want (true, true)", ready, found)
	}
	ready, found = l.Feed("ready on http://localhost:3001/")
	if ready || found {
		t.Errorf("second feed = (%v, %v), want (false, false)", ready, found)
	}
}

func TestPortFromURL(t *testing.T) {
	tests := []struct {
		raw  string
		port int
		ok   bool
	}{
		{"http://localhost:4321/", 4321, true},
		{"http://[::1]:3000/", 3000, true},
		{"http://localhost/", 0, false},
		{"://bad", 0, false},
	}
	for _, tt := range tests {
		port, ok := PortFromURL(tt.raw)
		if port != tt.port || ok != tt.ok {
			t.Errorf("PortFromURL(%q) = (%d, %v), want (%d, %v)", tt.raw, port, ok, tt.port, tt.ok)
		}
	}
}
