package httpmw

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/keithlinneman/linnemanlabs-monitoring/internal/log"
)

func withLogger(r *http.Request, l log.Logger) *http.Request {
	return r.WithContext(log.WithContext(r.Context(), l))
}

func TestRequestLogging_EntryAndExitRecords(t *testing.T) {
	L := newRecLogger()
	h := RequestLogging()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Order", "42")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("created"))
	}))

	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"qty":3}`))
	req.Header.Set("Accept", "application/json")
	h.ServeHTTP(httptest.NewRecorder(), withLogger(req, L))

	recs := L.all()
	if len(recs) != 2 || recs[0].msg != "incoming request" || recs[1].msg != "outgoing response" {
		t.Fatalf("records = %+v, want incoming then outgoing", recs)
	}

	in := recs[0].fields
	if in["http.request.method"] != http.MethodPost || in["url.path"] != "/orders" {
		t.Fatalf("entry fields = %v", in)
	}
	if in["http.request.body.size"] != int64(9) {
		t.Fatalf("request body size = %v, want 9", in["http.request.body.size"])
	}
	if hdr := in["http.request.headers"].(map[string]string); hdr["Accept"] != "application/json" {
		t.Fatalf("request headers = %v", hdr)
	}

	out := recs[1].fields
	if out["http.response.status_code"] != http.StatusCreated {
		t.Fatalf("status = %v, want 201", out["http.response.status_code"])
	}
	if out["http.response.body.size"] != int64(7) {
		t.Fatalf("response body size = %v, want 7", out["http.response.body.size"])
	}
	if hdr := out["http.response.headers"].(map[string]string); hdr["X-Order"] != "42" {
		t.Fatalf("response headers = %v", hdr)
	}
}

func TestRequestLogging_EntryPrecedesHandler(t *testing.T) {
	L := newRecLogger()
	var seenBefore int
	h := RequestLogging()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		seenBefore = len(L.all())
	}))
	h.ServeHTTP(httptest.NewRecorder(), withLogger(httptest.NewRequest(http.MethodGet, "/", http.NoBody), L))
	if seenBefore != 1 {
		t.Fatalf("records before handler = %d, want 1", seenBefore)
	}
}

func TestRequestLogging_DefaultStatus200(t *testing.T) {
	L := newRecLogger()
	h := RequestLogging()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	h.ServeHTTP(httptest.NewRecorder(), withLogger(httptest.NewRequest(http.MethodGet, "/", http.NoBody), L))

	out := L.byMsg("outgoing response")
	if len(out) != 1 || out[0].fields["http.response.status_code"] != http.StatusOK {
		t.Fatalf("outgoing = %+v, want status 200", out)
	}
}

func TestRequestLogging_RedactsSensitiveHeaders(t *testing.T) {
	L := newRecLogger()
	h := RequestLogging()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Set-Cookie", "session=abc")
	}))
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set("Authorization", "Bearer secret")
	req.Header.Set("Cookie", "session=abc")
	req.Header.Set("X-Api-Key", "k")
	h.ServeHTTP(httptest.NewRecorder(), withLogger(req, L))

	in := L.byMsg("incoming request")[0].fields["http.request.headers"].(map[string]string)
	for _, k := range []string{"Authorization", "Cookie", "X-Api-Key"} {
		if in[k] != redacted {
			t.Fatalf("%s = %q, want redacted", k, in[k])
		}
	}
	out := L.byMsg("outgoing response")[0].fields["http.response.headers"].(map[string]string)
	if out["Set-Cookie"] != redacted {
		t.Fatalf("Set-Cookie = %q, want redacted", out["Set-Cookie"])
	}
}

func TestRequestLogging_BodyUntouched(t *testing.T) {
	var got string
	h := RequestLogging()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got = string(b)
		_, _ = w.Write([]byte("pong"))
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("ping")))

	if got != "ping" || rec.Body.String() != "pong" {
		t.Fatalf("handler saw %q, client got %q", got, rec.Body.String())
	}
}

func TestRequestLogging_PanicSkipsExitRecord(t *testing.T) {
	L := newRecLogger()
	h := RequestLogging()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("panic was swallowed")
			}
		}()
		h.ServeHTTP(httptest.NewRecorder(), withLogger(httptest.NewRequest(http.MethodGet, "/", http.NoBody), L))
	}()

	if len(L.byMsg("incoming request")) != 1 || len(L.byMsg("outgoing response")) != 0 {
		t.Fatalf("records = %+v, want only the entry record", L.all())
	}
}

func TestHeaderFields_JoinsRepeatedValues(t *testing.T) {
	h := http.Header{}
	h.Add("Accept", "text/html")
	h.Add("Accept", "application/json")
	if got := headerFields(h)["Accept"]; got != "text/html, application/json" {
		t.Fatalf("Accept = %q", got)
	}
}
