package c2dm_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-push-dispatch/gateway/c2dm"
	"github.com/tinywideclouds/go-push-dispatch/pkg/push"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func baseOptions(authURL, pushURL string) push.Options {
	return push.Options{
		"email":              "a@b.com",
		"password":           "p",
		"source":             "s",
		"authentication_url": authURL,
		"push_url":           pushURL,
	}
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	t.Run("missing required option fails before any network call", func(t *testing.T) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
		}))
		defer srv.Close()

		opts := baseOptions(srv.URL, srv.URL)
		delete(opts, "password")

		_, err := c2dm.New(ctx, opts, discardLogger())

		var optErr *push.OptionError
		require.ErrorAs(t, err, &optErr)
		assert.Equal(t, "password", optErr.Key)
		assert.Zero(t, hits.Load())
	})

	t.Run("successful handshake stores the token", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "a@b.com", r.PostForm.Get("Email"))
			assert.Equal(t, "p", r.PostForm.Get("Passwd"))
			assert.Equal(t, "s", r.PostForm.Get("source"))
			assert.Equal(t, "ac2dm", r.PostForm.Get("service"))
			_, _ = w.Write([]byte("SID=123\nLSID=456\nAuth=XYZ123"))
		}))
		defer srv.Close()

		gw, err := c2dm.New(ctx, baseOptions(srv.URL, srv.URL), discardLogger())
		require.NoError(t, err)
		assert.Equal(t, "XYZ123", gw.Token())
	})

	t.Run("rejected credentials fail with AuthenticationFailed", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte("Error=BadAuthentication"))
		}))
		defer srv.Close()

		_, err := c2dm.New(ctx, baseOptions(srv.URL, srv.URL), discardLogger())

		var authErr *push.AuthenticationFailedError
		require.ErrorAs(t, err, &authErr)
		assert.Equal(t, http.StatusForbidden, authErr.Status)
		assert.Contains(t, authErr.Body, "BadAuthentication")
	})

	t.Run("unparsable auth body fails with AuthenticationFailed", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("SID=only-session-ids-here"))
		}))
		defer srv.Close()

		_, err := c2dm.New(ctx, baseOptions(srv.URL, srv.URL), discardLogger())

		var authErr *push.AuthenticationFailedError
		require.ErrorAs(t, err, &authErr)
		assert.Contains(t, err.Error(), "no Auth token")
	})
}

func TestDeliver(t *testing.T) {
	ctx := context.Background()
	msg := push.Message{Body: "hello", Payload: map[string]string{"thread": "42"}}
	dev := push.Device{Identifier: "tok1", Kind: push.KindAndroid}

	authHandler := func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("Auth=XYZ123"))
	}

	t.Run("happy path sends the session token and form fields", func(t *testing.T) {
		authSrv := httptest.NewServer(http.HandlerFunc(authHandler))
		defer authSrv.Close()

		pushSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "GoogleLogin auth=XYZ123", r.Header.Get("Authorization"))
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "tok1", r.PostForm.Get("registration_id"))
			assert.NotEmpty(t, r.PostForm.Get("collapse_key"))
			assert.Equal(t, "hello", r.PostForm.Get("data.body"))
			assert.Empty(t, r.PostForm.Get("data.thread"), "payload is off by default")
			_, _ = w.Write([]byte("id=0:12345"))
		}))
		defer pushSrv.Close()

		gw, err := c2dm.New(ctx, baseOptions(authSrv.URL, pushSrv.URL), discardLogger())
		require.NoError(t, err)
		require.NoError(t, gw.Deliver(ctx, msg, dev, nil))
	})

	t.Run("collapse_key prefers the option, then the subject", func(t *testing.T) {
		authSrv := httptest.NewServer(http.HandlerFunc(authHandler))
		defer authSrv.Close()

		var keys []string
		pushSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			keys = append(keys, r.PostForm.Get("collapse_key"))
			_, _ = w.Write([]byte("id=0:12345"))
		}))
		defer pushSrv.Close()

		subjectGw, err := c2dm.New(ctx, baseOptions(authSrv.URL, pushSrv.URL), discardLogger())
		require.NoError(t, err)
		require.NoError(t, subjectGw.Deliver(ctx, push.Message{Subject: "alerts", Body: "hi"}, dev, nil))

		opts := baseOptions(authSrv.URL, pushSrv.URL)
		opts["collapse_key"] = "pinned"
		pinnedGw, err := c2dm.New(ctx, opts, discardLogger())
		require.NoError(t, err)
		require.NoError(t, pinnedGw.Deliver(ctx, push.Message{Subject: "alerts", Body: "hi"}, dev, nil))

		assert.Equal(t, []string{"alerts", "pinned"}, keys)
	})

	t.Run("payload option forwards extra data fields", func(t *testing.T) {
		authSrv := httptest.NewServer(http.HandlerFunc(authHandler))
		defer authSrv.Close()

		pushSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "42", r.PostForm.Get("data.thread"))
			_, _ = w.Write([]byte("id=0:12345"))
		}))
		defer pushSrv.Close()

		opts := baseOptions(authSrv.URL, pushSrv.URL)
		opts["payload"] = true
		gw, err := c2dm.New(ctx, opts, discardLogger())
		require.NoError(t, err)
		require.NoError(t, gw.Deliver(ctx, msg, dev, nil))
	})

	t.Run("non-success status fails with DeliveryFailed carrying diagnostics", func(t *testing.T) {
		authSrv := httptest.NewServer(http.HandlerFunc(authHandler))
		defer authSrv.Close()

		pushSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("upstream unavailable"))
		}))
		defer pushSrv.Close()

		gw, err := c2dm.New(ctx, baseOptions(authSrv.URL, pushSrv.URL), discardLogger())
		require.NoError(t, err)

		err = gw.Deliver(ctx, msg, dev, nil)

		var deliveryErr *push.DeliveryFailedError
		require.ErrorAs(t, err, &deliveryErr)
		assert.Equal(t, msg, deliveryErr.Message)
		assert.Equal(t, dev, deliveryErr.Device)
		assert.Equal(t, http.StatusServiceUnavailable, deliveryErr.Status)
		assert.Contains(t, err.Error(), "503")
		assert.Contains(t, err.Error(), "upstream unavailable")
	})

	t.Run("backend error marker in a success body fails with DeliveryFailed", func(t *testing.T) {
		authSrv := httptest.NewServer(http.HandlerFunc(authHandler))
		defer authSrv.Close()

		pushSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("Error=QuotaExceeded"))
		}))
		defer pushSrv.Close()

		gw, err := c2dm.New(ctx, baseOptions(authSrv.URL, pushSrv.URL), discardLogger())
		require.NoError(t, err)

		err = gw.Deliver(ctx, msg, dev, nil)

		var deliveryErr *push.DeliveryFailedError
		require.ErrorAs(t, err, &deliveryErr)
		assert.Contains(t, deliveryErr.Body, "QuotaExceeded")
	})

	t.Run("deliveries reuse the token until cleared", func(t *testing.T) {
		var authCalls atomic.Int32
		authSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCalls.Add(1)
			_, _ = w.Write([]byte("Auth=XYZ123"))
		}))
		defer authSrv.Close()

		pushSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("id=0:1"))
		}))
		defer pushSrv.Close()

		gw, err := c2dm.New(ctx, baseOptions(authSrv.URL, pushSrv.URL), discardLogger())
		require.NoError(t, err)
		require.NoError(t, gw.Deliver(ctx, msg, dev, nil))
		require.NoError(t, gw.Deliver(ctx, msg, dev, nil))
		assert.Equal(t, int32(1), authCalls.Load())

		gw.ClearToken()
		require.NoError(t, gw.Deliver(ctx, msg, dev, nil))
		assert.Equal(t, int32(2), authCalls.Load())
	})

	t.Run("concurrent deliveries after a cleared token authenticate once", func(t *testing.T) {
		var authCalls atomic.Int32
		authSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCalls.Add(1)
			_, _ = w.Write([]byte("Auth=XYZ123"))
		}))
		defer authSrv.Close()

		pushSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("id=0:1"))
		}))
		defer pushSrv.Close()

		gw, err := c2dm.New(ctx, baseOptions(authSrv.URL, pushSrv.URL), discardLogger())
		require.NoError(t, err)
		gw.ClearToken()

		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, gw.Deliver(ctx, msg, dev, nil))
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(2), authCalls.Load(), "one handshake at construction, one after the clear")
	})
}

// The adapter option swaps the HTTP transport, so the production endpoints can
// be exercised without real network access.
func TestAdapterOption(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodPost, "https://www.google.com/accounts/ClientLogin",
		httpmock.NewStringResponder(http.StatusOK, "Auth=MOCKTOKEN"))
	transport.RegisterResponder(http.MethodPost, "https://android.apis.google.com/c2dm/send",
		httpmock.NewStringResponder(http.StatusOK, "id=0:99"))

	opts := push.Options{
		"email":    "a@b.com",
		"password": "p",
		"source":   "s",
		"adapter":  transport,
	}

	gw, err := c2dm.New(context.Background(), opts, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, "MOCKTOKEN", gw.Token())

	dev := push.Device{Identifier: "tok1", Kind: push.KindAndroid}
	require.NoError(t, gw.Deliver(context.Background(), push.Message{Body: "hi"}, dev, nil))
	assert.Equal(t, 2, transport.GetTotalCallCount())
}
