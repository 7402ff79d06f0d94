package updater

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// withRelease points the checker at a test server for the duration of t.
func withRelease(t *testing.T, handler http.HandlerFunc) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	origEndpoint, origClient := releaseEndpoint, httpClient
	releaseEndpoint, httpClient = srv.URL, srv.Client()
	t.Cleanup(func() { releaseEndpoint, httpClient = origEndpoint, origClient })
}

func releaseHandler(tag string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(release{
			TagName: tag,
			HTMLURL: "https://github.com/" + githubRepo + "/releases/tag/" + tag,
		})
	}
}

// --- normalizeVersion ---

func TestNormalizeVersion_StripsV(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"v1.2.3", "1.2.3"},
		{"1.2.3", "1.2.3"},
		{"", ""},
		{"vv1.0.0", "v1.0.0"}, // only strips one leading v
	}
	for _, tt := range tests {
		if got := normalizeVersion(tt.input); got != tt.want {
			t.Errorf("normalizeVersion(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

// --- isNewer ---

func TestIsNewer(t *testing.T) {
	tests := []struct {
		name    string
		current string
		latest  string
		want    bool
	}{
		{"newer patch", "0.2.0", "0.2.1", true},
		{"newer minor", "0.2.0", "0.3.0", true},
		{"newer major", "0.2.0", "1.0.0", true},
		{"same version", "0.2.0", "0.2.0", false},
		{"older version", "0.3.0", "0.2.0", false},
		{"empty latest", "0.2.0", "", false},
		{"dev current", "dev", "0.2.0", false},
		{"two part version", "0.2", "0.3.0", true},
		{"minor jump", "0.9.0", "0.10.0", true},
		{"pre-release suffix", "0.2.0", "0.2.1-rc1", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isNewer(tt.current, tt.latest); got != tt.want {
				t.Errorf("isNewer(%q, %q) = %v, want %v", tt.current, tt.latest, got, tt.want)
			}
		})
	}
}

// --- Check ---

func TestCheck_UpdateAvailable(t *testing.T) {
	withRelease(t, releaseHandler("v0.3.0"))

	got := Check(context.Background(), "v0.2.0")
	if !got.UpdateAvailable {
		t.Fatalf("expected update, got %+v", got)
	}
	if got.LatestVersion != "0.3.0" || got.CurrentVersion != "0.2.0" {
		t.Errorf("got %+v", got)
	}
	if got.ReleaseURL == "" {
		t.Error("ReleaseURL should be set")
	}
}

func TestCheck_AlreadyLatest(t *testing.T) {
	withRelease(t, releaseHandler("v0.2.0"))

	if got := Check(context.Background(), "0.2.0"); got.UpdateAvailable {
		t.Errorf("expected no update, got %+v", got)
	}
}

func TestCheck_APIErrorStatus(t *testing.T) {
	withRelease(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	got := Check(context.Background(), "0.2.0")
	if got.UpdateAvailable || got.LatestVersion != "" {
		t.Errorf("expected unknown result, got %+v", got)
	}
}

func TestCheck_DevSkipsNetwork(t *testing.T) {
	called := false
	withRelease(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		releaseHandler("v9.9.9")(w, r)
	})

	if got := Check(context.Background(), "dev"); got.UpdateAvailable {
		t.Errorf("dev build should never report updates: %+v", got)
	}
	if called {
		t.Error("dev build should not query GitHub")
	}
}

func TestCheck_CancelledContext(t *testing.T) {
	withRelease(t, releaseHandler("v0.3.0"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if got := Check(ctx, "0.2.0"); got.UpdateAvailable {
		t.Errorf("cancelled check should report nothing: %+v", got)
	}
}
