package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sitegrade/sitegrade/internal/urlguard"
)

// openGuard admits every URL. The production guard would reject the loopback
// hosts the test servers listen on.
type openGuard struct{}

func (openGuard) GuardURL(_ context.Context, input string) (*urlguard.GuardedURL, error) {
	return &urlguard.GuardedURL{URL: input}, nil
}

// denyGuard rejects every URL the way the guard rejects private space.
type denyGuard struct{}

func (denyGuard) GuardURL(_ context.Context, _ string) (*urlguard.GuardedURL, error) {
	return nil, &urlguard.Error{Code: urlguard.CodePrivateIP, Status: 400, Message: "host resolves to a private or reserved address"}
}

func fetchCode(t *testing.T, err error) string {
	t.Helper()
	var fetchErr *Error
	if errors.As(err, &fetchErr) {
		return fetchErr.Code
	}
	var guardErr *urlguard.Error
	if errors.As(err, &guardErr) {
		return guardErr.Code
	}
	t.Fatalf("expected typed error, got: %v", err)
	return ""
}

func newTestFetcher(server *httptest.Server, guard URLGuard, cfg Config) *Fetcher {
	return New(guard, server.Client(), cfg)
}

func htmlPage(size int) string {
	var b strings.Builder
	b.WriteString("<html><head><title>t</title></head><body>")
	for b.Len() < size {
		b.WriteString("<p>lorem ipsum dolor sit amet</p>")
	}
	b.WriteString("</body></html>")
	return b.String()
}

func TestFetchSuccess(t *testing.T) {
	page := htmlPage(600)
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	}))
	defer server.Close()

	f := newTestFetcher(server, openGuard{}, Config{})
	result, err := f.Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if result.HTML != page {
		t.Fatalf("unexpected body, got %d bytes", len(result.HTML))
	}
	if result.Bytes != int64(len(page)) {
		t.Fatalf("unexpected byte count: %d", result.Bytes)
	}
	if result.FinalURL != server.URL {
		t.Fatalf("unexpected final url: %s", result.FinalURL)
	}
}

func TestFetchFollowsRedirectsWithinBudget(t *testing.T) {
	page := htmlPage(600)
	mux := http.NewServeMux()
	server := httptest.NewTLSServer(mux)
	defer server.Close()

	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/middle", http.StatusFound)
	})
	mux.HandleFunc("/middle", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(page))
	})

	f := newTestFetcher(server, openGuard{}, Config{})
	result, err := f.Fetch(context.Background(), server.URL+"/start")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if result.FinalURL != server.URL+"/final" {
		t.Fatalf("unexpected final url: %s", result.FinalURL)
	}
}

func TestFetchRejectsRedirectLoop(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewTLSServer(mux)
	defer server.Close()
	mux.HandleFunc("/loop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	})

	f := newTestFetcher(server, openGuard{}, Config{MaxRedirects: 3})
	_, err := f.Fetch(context.Background(), server.URL+"/loop")
	if code := fetchCode(t, err); code != CodeTooManyRedirects {
		t.Fatalf("expected TOO_MANY_REDIRECTS, got %s", code)
	}
}

func TestFetchReguardsRedirectTarget(t *testing.T) {
	// A redirect chain whose hop is rejected by the guard must fail the same
	// way a direct request would.
	mux := http.NewServeMux()
	server := httptest.NewTLSServer(mux)
	defer server.Close()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://internal.example.com/admin", http.StatusFound)
	})

	f := newTestFetcher(server, denyGuard{}, Config{})
	_, err := f.Fetch(context.Background(), server.URL+"/start")
	if code := fetchCode(t, err); code != urlguard.CodePrivateIP {
		t.Fatalf("expected PRIVATE_IP, got %s", code)
	}
}

func TestFetchRejectsNon2xx(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	f := newTestFetcher(server, openGuard{}, Config{})
	_, err := f.Fetch(context.Background(), server.URL)
	if code := fetchCode(t, err); code != CodeHTTPError {
		t.Fatalf("expected HTTP_ERROR, got %s", code)
	}
}

func TestFetchRejectsNonHTML(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"not":"html"}`))
	}))
	defer server.Close()

	f := newTestFetcher(server, openGuard{}, Config{})
	_, err := f.Fetch(context.Background(), server.URL)
	if code := fetchCode(t, err); code != CodeNonHTML {
		t.Fatalf("expected NON_HTML, got %s", code)
	}
}

func TestFetchRejectsOversizedBody(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(htmlPage(4096)))
	}))
	defer server.Close()

	f := newTestFetcher(server, openGuard{}, Config{MaxBytes: 1024})
	_, err := f.Fetch(context.Background(), server.URL)
	if code := fetchCode(t, err); code != CodeHTMLTooLarge {
		t.Fatalf("expected HTML_TOO_LARGE, got %s", code)
	}
}

func TestFetchRejectsTinyBody(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer server.Close()

	f := newTestFetcher(server, openGuard{}, Config{})
	_, err := f.Fetch(context.Background(), server.URL)
	if code := fetchCode(t, err); code != CodeHTMLTooSmall {
		t.Fatalf("expected HTML_TOO_SMALL, got %s", code)
	}
}

func TestFetchTimesOut(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(htmlPage(600)))
	}))
	defer server.Close()

	f := newTestFetcher(server, openGuard{}, Config{Timeout: 50 * time.Millisecond})
	_, err := f.Fetch(context.Background(), server.URL)
	code := fetchCode(t, err)
	if code != CodeTimeout {
		t.Fatalf("expected TIMEOUT, got %s", code)
	}
	var fetchErr *Error
	if !errors.As(err, &fetchErr) || !fetchErr.Retryable() {
		t.Fatalf("timeout must be retryable")
	}
}

func TestFetchNetworkError(t *testing.T) {
	f := New(openGuard{}, &http.Client{}, Config{Timeout: 2 * time.Second})
	_, err := f.Fetch(context.Background(), "https://127.0.0.1:1")
	if code := fetchCode(t, err); code != CodeNetworkError {
		t.Fatalf("expected NETWORK_ERROR, got %s", code)
	}
}
